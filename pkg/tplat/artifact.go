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

// Artifact types.
const (
	TypeEclipsePlugin     = "eclipse-plugin"
	TypeEclipseTestPlugin = "eclipse-test-plugin"
	TypeEclipseFeature    = "eclipse-feature"
	TypeEclipseProduct    = "eclipse-product"
	TypeEclipseRepository = "eclipse-repository"
)

// IsPluginType returns whether artifacts of the given type are bundles
// with a manifest.
func IsPluginType(t string) bool {
	return t == TypeEclipsePlugin || t == TypeEclipseTestPlugin
}

// ArtifactKey identifies a module.
// Keys with the same id and version but a different type are distinct.
type ArtifactKey struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
	// Version is the normalized string form of an osgi.Version. Keeping
	// it as a string keeps the key comparable.
	Version string `yaml:"version"`
}

func NewArtifactKey(t string, id string, v osgi.Version) ArtifactKey {
	return ArtifactKey{
		Type:    t,
		ID:      id,
		Version: v.String(),
	}
}

func (k ArtifactKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Type, k.ID, k.Version)
}

// ReactorProject describes a module that is built in the current build.
type ReactorProject struct {
	GroupID    string
	ArtifactID string
	Version    string
	Packaging  string
	BaseDir    string
}

func (p *ReactorProject) String() string {
	return fmt.Sprintf("%s:%s:%s", p.GroupID, p.ArtifactID, p.Version)
}

// ArtifactDescriptor is a resolved module.
type ArtifactDescriptor struct {
	Key ArtifactKey
	// Location is the file (or, for reactor modules, the base directory) of
	// the module.
	Location string
	// Project is set if the module is built in the current build.
	// It is only used for lookups and never modified.
	Project *ReactorProject
	// InstallableUnits contains the ids of the units the module provides.
	InstallableUnits []string
}

// IsReactor returns whether the descriptor refers to a module of the current
// build.
func (d ArtifactDescriptor) IsReactor() bool {
	return d.Project != nil
}
