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

	"github.com/hashicorp/go-version"
)

// Version is an OSGi version: 'major.minor.micro.qualifier'.
// Missing numeric segments default to 0. The qualifier is compared
// lexically after the numeric segments.
type Version struct {
	core      *version.Version
	qualifier string
}

// EmptyVersion is "0.0.0".
var EmptyVersion = Version{}

var zeroCore = version.Must(version.NewVersion("0.0.0"))

func ParseVersion(str string) (Version, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return EmptyVersion, nil
	}
	parts := strings.SplitN(str, ".", 4)
	numeric := []string{"0", "0", "0"}
	for i := 0; i < len(parts) && i < 3; i++ {
		p := parts[i]
		if p == "" || strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			return Version{}, fmt.Errorf("invalid version '%s': segment %d is not numeric", str, i)
		}
		numeric[i] = p
	}
	qualifier := ""
	if len(parts) == 4 {
		qualifier = parts[3]
		if qualifier == "" {
			return Version{}, fmt.Errorf("invalid version '%s': empty qualifier", str)
		}
		for _, r := range qualifier {
			if !isQualifierRune(r) {
				return Version{}, fmt.Errorf("invalid version '%s': bad qualifier character '%c'", str, r)
			}
		}
	}
	core, err := version.NewVersion(strings.Join(numeric, "."))
	if err != nil {
		return Version{}, fmt.Errorf("invalid version '%s': %w", str, err)
	}
	return Version{core: core, qualifier: qualifier}, nil
}

func MustParseVersion(str string) Version {
	v, err := ParseVersion(str)
	if err != nil {
		panic(err)
	}
	return v
}

func isQualifierRune(r rune) bool {
	return r == '_' || r == '-' ||
		('0' <= r && r <= '9') ||
		('a' <= r && r <= 'z') ||
		('A' <= r && r <= 'Z')
}

func (v Version) segments() []int {
	if v.core == nil {
		return []int{0, 0, 0}
	}
	return v.core.Segments()
}

func (v Version) Major() int { return v.segments()[0] }
func (v Version) Minor() int { return v.segments()[1] }
func (v Version) Micro() int { return v.segments()[2] }

func (v Version) Qualifier() string {
	return v.qualifier
}

// Compare returns -1, 0 or 1 if v is smaller, equal or greater than other.
func (v Version) Compare(other Version) int {
	a, b := v.core, other.core
	if a == nil {
		a = zeroCore
	}
	if b == nil {
		b = zeroCore
	}
	if c := a.Compare(b); c != 0 {
		return c
	}
	return strings.Compare(v.qualifier, other.qualifier)
}

func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

func (v Version) String() string {
	s := v.segments()
	result := fmt.Sprintf("%d.%d.%d", s[0], s[1], s[2])
	if v.qualifier != "" {
		result += "." + v.qualifier
	}
	return result
}

// WithoutQualifier returns the version with an empty qualifier.
func (v Version) WithoutQualifier() Version {
	return Version{core: v.core}
}

func (v Version) MarshalYAML() (interface{}, error) {
	return v.String(), nil
}

func (v *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	parsed, err := ParseVersion(str)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
