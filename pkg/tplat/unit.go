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

package tplat

import (
	"fmt"

	"github.com/osgi-build/tplat/pkg/osgi"
)

// UnitType is the kind of an installable unit.
type UnitType string

const (
	UnitBundle   UnitType = "bundle"
	UnitFragment UnitType = "fragment"
	UnitFeature  UnitType = "feature"
	UnitProduct  UnitType = "product"
)

// ArtifactType returns the artifact type of units of this kind.
func (t UnitType) ArtifactType() string {
	switch t {
	case UnitFeature:
		return TypeEclipseFeature
	case UnitProduct:
		return TypeEclipseProduct
	default:
		return TypeEclipsePlugin
	}
}

func (t UnitType) IsValid() bool {
	return t == UnitBundle || t == UnitFragment || t == UnitFeature || t == UnitProduct
}

// InstallableUnit is the metadata of a module.
type InstallableUnit struct {
	ID      string       `yaml:"id"`
	Version osgi.Version `yaml:"version"`
	Type    UnitType     `yaml:"type"`
	// Filter restricts the unit to matching environments. A nil filter
	// matches every environment.
	Filter     *osgi.Filter      `yaml:"filter,omitempty"`
	Requires   []Requirement     `yaml:"requires,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Key returns the artifact key of the unit.
func (u *InstallableUnit) Key() ArtifactKey {
	return NewArtifactKey(u.Type.ArtifactType(), u.ID, u.Version)
}

func (u *InstallableUnit) String() string {
	return fmt.Sprintf("%s %s", u.ID, u.Version)
}

func (u *InstallableUnit) validate() error {
	if u.ID == "" {
		return fmt.Errorf("unit without id")
	}
	if u.Type == "" {
		u.Type = UnitBundle
	}
	if !u.Type.IsValid() {
		return fmt.Errorf("unit '%s' has invalid type '%s'", u.ID, u.Type)
	}
	for _, req := range u.Requires {
		if req.ID == "" {
			return fmt.Errorf("unit '%s' has a requirement without id", u.ID)
		}
	}
	return nil
}

// Requirement is a dependency on other units.
type Requirement struct {
	ID string `yaml:"id"`
	// Type restricts the requirement to units of the given type. If empty,
	// units of any type with the id match.
	Type     UnitType          `yaml:"type,omitempty"`
	Range    osgi.VersionRange `yaml:"range,omitempty"`
	Optional bool              `yaml:"optional,omitempty"`
	// Greedy requirements pull in the required unit. Non-greedy ones are
	// only satisfied by units that are included for other reasons.
	// Defaults to true.
	Greedy *bool `yaml:"greedy,omitempty"`
	// Filter restricts the requirement to matching environments.
	Filter *osgi.Filter `yaml:"filter,omitempty"`
}

func (r Requirement) IsGreedy() bool {
	return r.Greedy == nil || *r.Greedy
}

func (r Requirement) matchesType(t UnitType) bool {
	return r.Type == "" || r.Type == t
}

func (r Requirement) String() string {
	return fmt.Sprintf("%s %s", r.ID, r.Range)
}
