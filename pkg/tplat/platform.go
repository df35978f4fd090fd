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
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/osgi-build/tplat/pkg/osgi"
	"github.com/osgi-build/tplat/pkg/set"
	"github.com/osgi-build/tplat/pkg/uripath"
	"gopkg.in/yaml.v2"
)

// PlatformFile is the project file ('platform.yaml') of a module.
// It describes the module itself, where its dependencies come from, and
// the modules that are built together with it.
type PlatformFile struct {
	path       string `yaml:"-"`
	GroupID    string `yaml:"group-id,omitempty"`
	ArtifactID string `yaml:"artifact-id"`
	// Version uses the build tool's format. A '-SNAPSHOT' suffix becomes
	// the '.qualifier' of the OSGi version.
	Version   string `yaml:"version"`
	Packaging string `yaml:"packaging,omitempty"`

	Repositories RepositoryReferences `yaml:"repositories,omitempty"`
	Requirements []Requirement        `yaml:"requirements,omitempty"`
	// Modules are directories of other modules of the same build. Each of
	// them has its own platform file.
	Modules []uripath.Path `yaml:"modules,omitempty"`
	// Dependencies are plain jar files. They are only used if the
	// configuration's pom-dependencies mode is 'consider'.
	Dependencies []uripath.Path `yaml:"dependencies,omitempty"`

	Configuration TargetPlatformConfiguration `yaml:"configuration,omitempty"`
}

func (p *PlatformFile) Parse(b []byte, ui UI) error {
	if err := yaml.Unmarshal(b, p); err != nil {
		return ui.ReportError("Failed to parse platform file: %v", err)
	}

	if err := p.Validate(ui); err != nil {
		if !IsErrAlreadyReported(err) {
			return ui.ReportError("Failed to parse platform file: %v", err)
		}
		return err
	}
	return nil
}

func (p *PlatformFile) ParseString(str string, ui UI) error {
	return p.Parse([]byte(str), ui)
}

func (p *PlatformFile) Validate(ui UI) error {
	if p.ArtifactID == "" {
		return ui.ReportError("Missing artifact-id")
	}
	if _, err := OSGiVersion(p.Version); err != nil {
		return ui.ReportError("Invalid version '%s': %v", p.Version, err)
	}
	if p.Packaging == "" {
		p.Packaging = TypeEclipsePlugin
	}
	for _, repo := range p.Repositories {
		if repo.Location == "" {
			return ui.ReportError("Repository without location")
		}
	}
	seen := set.String{}
	for _, req := range p.Requirements {
		if req.ID == "" {
			return ui.ReportError("Requirement without id")
		}
		if req.Type != "" && !req.Type.IsValid() {
			return ui.ReportError("Requirement '%s' has invalid type '%s'", req.ID, req.Type)
		}
		if seen.Contains(req.ID + "/" + string(req.Type)) {
			return ui.ReportError("Duplicate requirement '%s'", req.ID)
		}
		seen.Add(req.ID + "/" + string(req.Type))
	}
	if _, err := p.TargetConfiguration(); err != nil {
		return ui.ReportError("Invalid configuration: %v", err)
	}
	return nil
}

// TargetConfiguration returns the configuration with defaults filled in.
// The platform file itself isn't modified.
func (p *PlatformFile) TargetConfiguration() (*TargetPlatformConfiguration, error) {
	cfg := p.Configuration
	cfg.Environments = append([]TargetEnvironment{}, p.Configuration.Environments...)
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *PlatformFile) ParseFile(filename string, ui UI) error {
	p.path = filename
	b, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return p.Parse(b, ui)
}

// ReadPlatformFile reads the platform file at the given path.
func ReadPlatformFile(path string, ui UI) (*PlatformFile, error) {
	p := PlatformFile{}
	if err := p.ParseFile(path, ui); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *PlatformFile) WriteYAML(writer io.Writer) error {
	return yaml.NewEncoder(writer).Encode(p)
}

func (p *PlatformFile) WriteToFile() error {
	b, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return writeFileIfChanged(p.path, b)
}

// Dir returns the base directory of the module.
func (p *PlatformFile) Dir() string {
	return filepath.Dir(p.path)
}

// resolvePath returns the given path relative to the module's directory.
func (p *PlatformFile) resolvePath(path uripath.Path) string {
	fp := path.FilePath()
	if filepath.IsAbs(fp) {
		return fp
	}
	return filepath.Join(p.Dir(), fp)
}

// OSGiVersion converts a build version to an OSGi version.
// "1.2.3-SNAPSHOT" becomes "1.2.3.qualifier".
// repositoryLocation resolves relative local repository locations against
// the directory of the platform file.
func (p *PlatformFile) repositoryLocation(location string) string {
	if schemeOf(location) != "" {
		return location
	}
	return p.resolvePath(uripath.ToPath(location))
}

func OSGiVersion(v string) (osgi.Version, error) {
	if strings.HasSuffix(v, "-SNAPSHOT") {
		v = strings.TrimSuffix(v, "-SNAPSHOT") + ".qualifier"
	}
	return osgi.ParseVersion(v)
}

// Project returns the reactor description of the module.
func (p *PlatformFile) Project() *ReactorProject {
	return &ReactorProject{
		GroupID:    p.GroupID,
		ArtifactID: p.ArtifactID,
		Version:    p.Version,
		Packaging:  p.Packaging,
		BaseDir:    p.Dir(),
	}
}

// Unit returns the installable unit of the module.
// For plugins with a manifest, the bundle's symbolic name is the id.
func (p *PlatformFile) Unit() (*InstallableUnit, error) {
	v, err := OSGiVersion(p.Version)
	if err != nil {
		return nil, err
	}
	id := p.ArtifactID
	if IsPluginType(p.Packaging) {
		if m, err := osgi.ReadManifest(p.Dir()); err == nil && m.SymbolicName() != "" {
			id = m.SymbolicName()
		}
	}
	return &InstallableUnit{
		ID:       id,
		Version:  v,
		Type:     unitTypeFor(p.Packaging),
		Requires: p.Requirements,
	}, nil
}

// Descriptor returns the artifact descriptor of the module as a reactor
// artifact.
func (p *PlatformFile) Descriptor(project *ReactorProject) (ArtifactDescriptor, *InstallableUnit, error) {
	unit, err := p.Unit()
	if err != nil {
		return ArtifactDescriptor{}, nil, err
	}
	return ArtifactDescriptor{
		Key:              NewArtifactKey(p.Packaging, unit.ID, unit.Version),
		Location:         p.Dir(),
		Project:          project,
		InstallableUnits: []string{unit.ID},
	}, unit, nil
}

// TargetDefinition is a target file: a list of repositories with the units
// that should be taken from them.
type TargetDefinition struct {
	Locations []TargetLocation `yaml:"locations"`
}

type TargetLocation struct {
	Repository string          `yaml:"repository"`
	Units      []IUDescription `yaml:"units,omitempty"`
}

// ReadTargetDefinition reads the target file at the given path.
func ReadTargetDefinition(path string) (*TargetDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var td TargetDefinition
	if err := yaml.Unmarshal(b, &td); err != nil {
		return nil, fmt.Errorf("invalid target file '%s': %w", path, err)
	}
	for _, location := range td.Locations {
		if location.Repository == "" {
			return nil, fmt.Errorf("invalid target file '%s': location without repository", path)
		}
	}
	return &td, nil
}

// Requirements returns an exact requirement for every unit with a version,
// and an unbounded one for units without.
func (td *TargetDefinition) Requirements() ([]Requirement, error) {
	var result []Requirement
	for _, location := range td.Locations {
		for _, unit := range location.Units {
			req := Requirement{ID: unit.ID}
			if unit.Version != "" {
				v, err := osgi.ParseVersion(unit.Version)
				if err != nil {
					return nil, fmt.Errorf("unit '%s': %w", unit.ID, err)
				}
				req.Range = osgi.ExactRange(v)
			}
			result = append(result, req)
		}
	}
	return result, nil
}
