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
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/osgi-build/tplat/pkg/osgi"
)

const (
	ScopeProvided = "provided"
	ScopeSystem   = "system"

	// GroupIDPrefix is prepended to the artifact type to form the group id
	// of injected dependencies.
	GroupIDPrefix = "p2."
)

// Dependency is an entry of the host build model.
type Dependency struct {
	GroupID    string `yaml:"group-id"`
	ArtifactID string `yaml:"artifact-id"`
	Version    string `yaml:"version"`
	Type       string `yaml:"type,omitempty"`
	Classifier string `yaml:"classifier,omitempty"`
	Scope      string `yaml:"scope"`
	SystemPath string `yaml:"system-path,omitempty"`
}

func (d Dependency) String() string {
	s := fmt.Sprintf("%s:%s:%s", d.GroupID, d.ArtifactID, d.Version)
	if d.Classifier != "" {
		s += ":" + d.Classifier
	}
	return s
}

// DependencyProjector turns resolved artifacts into dependencies.
// Artifacts that can't be represented are skipped with a warning.
type DependencyProjector struct {
	ui UI
	// nestedDir is where nested class path entries of jars are extracted to.
	nestedDir string
}

func NewDependencyProjector(nestedDir string, ui UI) *DependencyProjector {
	return &DependencyProjector{
		ui:        ui,
		nestedDir: nestedDir,
	}
}

// Project returns the dependencies of project on the given artifacts.
// The project itself is skipped if it is among the artifacts.
func (p *DependencyProjector) Project(project *ReactorProject, artifacts []ArtifactDescriptor) []Dependency {
	var result []Dependency
	for _, artifact := range artifacts {
		if artifact.Project != nil {
			if artifact.Project == project {
				continue
			}
			result = append(result, p.projectReactor(artifact)...)
		} else {
			result = append(result, p.projectExternal(artifact)...)
		}
	}
	return result
}

func systemDependency(key ArtifactKey, classifier string, location string) Dependency {
	return Dependency{
		GroupID:    GroupIDPrefix + key.Type,
		ArtifactID: key.ID,
		Version:    key.Version,
		Type:       "jar",
		Classifier: classifier,
		Scope:      ScopeSystem,
		SystemPath: location,
	}
}

func (p *DependencyProjector) classPath(artifact ArtifactDescriptor, location string) []string {
	manifest, err := osgi.ReadManifest(location)
	if err != nil {
		p.ui.ReportWarning("Unable to read manifest of '%s': %v", artifact.Key, err)
		return []string{"."}
	}
	return manifest.BundleClassPath()
}

func (p *DependencyProjector) projectReactor(artifact ArtifactDescriptor) []Dependency {
	project := artifact.Project
	result := []Dependency{
		{
			GroupID:    project.GroupID,
			ArtifactID: project.ArtifactID,
			Version:    project.Version,
			Type:       project.Packaging,
			Scope:      ScopeProvided,
		},
	}
	if !IsPluginType(artifact.Key.Type) {
		return result
	}
	for _, entry := range p.classPath(artifact, project.BaseDir) {
		if entry == "." {
			continue
		}
		nested := filepath.Join(project.BaseDir, filepath.FromSlash(entry))
		if ok, _ := isFile(nested); !ok {
			p.ui.ReportWarning("Missing class path entry '%s' of '%s'", entry, project)
			continue
		}
		dep := systemDependency(artifact.Key, entry, nested)
		dep.GroupID = project.GroupID
		result = append(result, dep)
	}
	return result
}

func (p *DependencyProjector) projectExternal(artifact ArtifactDescriptor) []Dependency {
	if !isReadableFile(artifact.Location) {
		p.ui.ReportWarning("Dependency '%s' at '%s' is not a readable file", artifact.Key, artifact.Location)
		return nil
	}
	if !IsPluginType(artifact.Key.Type) {
		return []Dependency{systemDependency(artifact.Key, "", artifact.Location)}
	}
	var result []Dependency
	for _, entry := range p.classPath(artifact, artifact.Location) {
		if entry == "." {
			result = append(result, systemDependency(artifact.Key, "", artifact.Location))
			continue
		}
		nested, err := p.extractNested(artifact, entry)
		if err != nil {
			p.ui.ReportWarning("Class path entry '%s' of '%s': %v", entry, artifact.Key, err)
			continue
		}
		result = append(result, systemDependency(artifact.Key, entry, nested))
	}
	return result
}

var errNestedDirectory = fmt.Errorf("directories are not supported")
var errNestedOutside = fmt.Errorf("path leaves the extraction directory")

// extractNested extracts the nested class path entry of a jar.
// Returns an error if the entry doesn't exist or is a directory.
func (p *DependencyProjector) extractNested(artifact ArtifactDescriptor, entry string) (string, error) {
	zr, err := zip.OpenReader(artifact.Location)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	name := strings.TrimSuffix(strings.TrimPrefix(entry, "/"), "/")
	target := filepath.Join(p.nestedDir, artifact.Key.ID+"_"+artifact.Key.Version, filepath.FromSlash(name))
	if rel, err := filepath.Rel(p.nestedDir, target); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errNestedOutside
	}

	var file *zip.File
	for _, f := range zr.File {
		if f.Name == name && !f.FileInfo().IsDir() {
			file = f
			break
		}
		if f.Name == name+"/" || strings.HasPrefix(f.Name, name+"/") {
			return "", errNestedDirectory
		}
	}
	if file == nil {
		return "", fmt.Errorf("not found in '%s'", artifact.Location)
	}

	if info, err := os.Stat(target); err == nil && !info.IsDir() && info.Size() == int64(file.UncompressedSize64) {
		return target, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", err
	}
	r, err := file.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()
	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return "", err
	}
	return target, out.Close()
}

// FilterInjectedDependencies removes the system dependencies that were added
// by a projector.
func FilterInjectedDependencies(deps []Dependency) []Dependency {
	var result []Dependency
	for _, dep := range deps {
		if dep.Scope == ScopeSystem && strings.HasPrefix(dep.GroupID, GroupIDPrefix) {
			continue
		}
		result = append(result, dep)
	}
	return result
}
