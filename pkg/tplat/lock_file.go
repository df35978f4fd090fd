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
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/osgi-build/tplat/pkg/uripath"
	"gopkg.in/yaml.v2"
)

// A lock file records the result of a resolution: for each environment, the
// concrete artifacts that were selected.
// Lock files are commonly shared, so locations inside the project are
// stored relative to the lock file.

// LockFile represents a lock file.
type LockFile struct {
	// The path to the lock file. If any.
	path         string            `yaml:"-"`
	Environments []LockEnvironment `yaml:"environments,omitempty"`
}

type LockEnvironment struct {
	Environment string      `yaml:"environment"`
	Artifacts   []LockEntry `yaml:"artifacts,omitempty"`
}

// LockEntry corresponds to a resolved artifact.
type LockEntry struct {
	Type     string       `yaml:"type"`
	ID       string       `yaml:"id"`
	Version  string       `yaml:"version"`
	Location uripath.Path `yaml:"location,omitempty"`
	Reactor  bool         `yaml:"reactor,omitempty"`
}

// Validate ensures that the receiver is a valid LockEntry.
func (le LockEntry) Validate(ui UI) error {
	if le.ID == "" || le.Version == "" {
		return ui.ReportError("Invalid lock file: entry without id or version")
	}
	if le.Type == "" {
		return ui.ReportError("Invalid lock file: entry '%s' without type", le.ID)
	}
	return nil
}

func (le LockEntry) Key() ArtifactKey {
	return ArtifactKey{Type: le.Type, ID: le.ID, Version: le.Version}
}

// NewLockFile builds the lock file for the given result.
func NewLockFile(path string, result ResolutionResult) *LockFile {
	lf := &LockFile{path: path}
	dir := filepath.Dir(path)
	for _, er := range result {
		le := LockEnvironment{Environment: er.Environment.String()}
		artifacts := append([]ArtifactDescriptor{}, er.Artifacts...)
		sort.Slice(artifacts, func(i, j int) bool {
			return keyLess(artifacts[i].Key, artifacts[j].Key)
		})
		for _, artifact := range artifacts {
			le.Artifacts = append(le.Artifacts, LockEntry{
				Type:     artifact.Key.Type,
				ID:       artifact.Key.ID,
				Version:  artifact.Key.Version,
				Location: lockLocation(dir, artifact.Location),
				Reactor:  artifact.IsReactor(),
			})
		}
		lf.Environments = append(lf.Environments, le)
	}
	return lf
}

// lockLocation returns location relative to dir if it is inside dir.
func lockLocation(dir string, location string) uripath.Path {
	if location == "" {
		return ""
	}
	if rel, err := filepath.Rel(dir, location); err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel) {
		return uripath.ToPath(rel)
	}
	return uripath.ToPath(location)
}

// ReadLockFile reads the lock-file at the given path.
func ReadLockFile(path string) (*LockFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var res LockFile
	if err := yaml.Unmarshal(b, &res); err != nil {
		return nil, err
	}

	res.path = path
	return &res, nil
}

func (lf *LockFile) Validate(ui UI) error {
	for _, env := range lf.Environments {
		if _, err := ParseTargetEnvironment(env.Environment); err != nil {
			return ui.ReportError("Invalid lock file: %v", err)
		}
		for _, entry := range env.Artifacts {
			if err := entry.Validate(ui); err != nil {
				return err
			}
		}
	}
	return nil
}

// Artifacts returns the entries of the given environment.
func (lf *LockFile) Artifacts(env TargetEnvironment) []LockEntry {
	for _, le := range lf.Environments {
		if le.Environment == env.String() {
			return le.Artifacts
		}
	}
	return nil
}

// WriteToFile writes the lock file, unless the existing file already has
// the same content.
func (lf *LockFile) WriteToFile() error {
	b, err := yaml.Marshal(lf)
	if err != nil {
		return err
	}
	return writeFileIfChanged(lf.path, b)
}

func (lf *LockFile) WriteYAML(writer io.Writer) error {
	return yaml.NewEncoder(writer).Encode(lf)
}
