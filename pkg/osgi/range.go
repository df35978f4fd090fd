// Copyright (C) 2021 Toitware ApS.
//
// This library is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; version
// 2.1 only.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// The license can be found in the file `LICENSE` in the top level
// directory of this repository.

package osgi

import (
	"fmt"
	"strings"
)

// VersionRange is an OSGi version range.
//
// Supported forms:
//   - "1.2.3": at least 1.2.3, no upper bound.
//   - "[1.0,2.0)", "(1.0,2.0]", ...: brackets are inclusive, parentheses exclusive.
//   - "": any version.
type VersionRange struct {
	Min          Version
	MinExclusive bool
	// Max is nil if there is no upper bound.
	Max          *Version
	MaxExclusive bool
}

// AnyRange accepts all versions.
var AnyRange = VersionRange{Min: EmptyVersion}

func ParseVersionRange(str string) (VersionRange, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return AnyRange, nil
	}
	first := str[0]
	if first != '[' && first != '(' {
		min, err := ParseVersion(str)
		if err != nil {
			return VersionRange{}, err
		}
		return VersionRange{Min: min}, nil
	}
	last := str[len(str)-1]
	if last != ']' && last != ')' {
		return VersionRange{}, fmt.Errorf("invalid version range '%s': missing closing bracket", str)
	}
	parts := strings.Split(str[1:len(str)-1], ",")
	if len(parts) != 2 {
		return VersionRange{}, fmt.Errorf("invalid version range '%s': expected two versions", str)
	}
	min, err := ParseVersion(parts[0])
	if err != nil {
		return VersionRange{}, err
	}
	max, err := ParseVersion(parts[1])
	if err != nil {
		return VersionRange{}, err
	}
	if max.LessThan(min) {
		return VersionRange{}, fmt.Errorf("invalid version range '%s': upper bound is below lower bound", str)
	}
	return VersionRange{
		Min:          min,
		MinExclusive: first == '(',
		Max:          &max,
		MaxExclusive: last == ')',
	}, nil
}

func MustParseVersionRange(str string) VersionRange {
	r, err := ParseVersionRange(str)
	if err != nil {
		panic(err)
	}
	return r
}

// ExactRange returns the range "[v,v]".
func ExactRange(v Version) VersionRange {
	max := v
	return VersionRange{Min: v, Max: &max}
}

// Includes returns whether v is in the range.
func (r VersionRange) Includes(v Version) bool {
	c := v.Compare(r.Min)
	if c < 0 || (c == 0 && r.MinExclusive) {
		return false
	}
	if r.Max == nil {
		return true
	}
	c = v.Compare(*r.Max)
	return c < 0 || (c == 0 && !r.MaxExclusive)
}

// IsExact returns whether the range accepts exactly one version.
func (r VersionRange) IsExact() bool {
	return r.Max != nil && !r.MinExclusive && !r.MaxExclusive && r.Min.Equal(*r.Max)
}

func (r VersionRange) String() string {
	if r.Max == nil {
		if r.Min.Equal(EmptyVersion) && !r.MinExclusive {
			return "0.0.0"
		}
		return r.Min.String()
	}
	open, close := "[", "]"
	if r.MinExclusive {
		open = "("
	}
	if r.MaxExclusive {
		close = ")"
	}
	return open + r.Min.String() + "," + r.Max.String() + close
}

func (r VersionRange) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

func (r *VersionRange) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	parsed, err := ParseVersionRange(str)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
