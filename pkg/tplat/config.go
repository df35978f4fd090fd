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

import "fmt"

// Resolver strategies.
const (
	// ResolverP2 resolves against repositories and reactor modules.
	ResolverP2 = "p2"
	// ResolverLocal resolves against reactor modules, plain bundle
	// dependencies and the bundles of a local Eclipse installation.
	ResolverLocal = "local"
)

// Dependency inclusion modes for plain build dependencies.
const (
	PomDependenciesConsider = "consider"
	PomDependenciesIgnore   = "ignore"
)

// TargetPlatformConfiguration is the build-time configuration of the
// target platform. It is read-only during resolution.
type TargetPlatformConfiguration struct {
	Resolver     string              `yaml:"resolver,omitempty"`
	Environments []TargetEnvironment `yaml:"environments,omitempty"`
	// Implicit is set when no environment was configured and the running
	// environment was used instead.
	Implicit        bool   `yaml:"-"`
	Target          string `yaml:"target,omitempty"`
	PomDependencies string `yaml:"pom-dependencies,omitempty"`
	// Installation is the directory of an Eclipse installation. Only
	// used by the local resolver.
	Installation string `yaml:"installation,omitempty"`

	AllowConflictingDependencies bool `yaml:"allow-conflicting-dependencies,omitempty"`
	DisableMirrors               bool `yaml:"disable-mirrors,omitempty"`
}

// Normalize fills in defaults and validates the configuration.
func (c *TargetPlatformConfiguration) Normalize() error {
	if c.Resolver == "" {
		c.Resolver = ResolverP2
	}
	if c.Resolver != ResolverP2 && c.Resolver != ResolverLocal {
		return fmt.Errorf("unknown resolver '%s'", c.Resolver)
	}
	if c.PomDependencies == "" {
		c.PomDependencies = PomDependenciesConsider
	}
	if c.PomDependencies != PomDependenciesConsider && c.PomDependencies != PomDependenciesIgnore {
		return fmt.Errorf("unknown pom-dependencies mode '%s'", c.PomDependencies)
	}
	if len(c.Environments) == 0 {
		c.Environments = []TargetEnvironment{RunningEnvironment()}
		c.Implicit = true
	}
	return nil
}
