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
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/osgi-build/tplat/pkg/osgi"
	"gopkg.in/yaml.v2"
)

// ArtifactEntry locates the file of an artifact inside a repository.
type ArtifactEntry struct {
	Type    string       `yaml:"type"`
	ID      string       `yaml:"id"`
	Version osgi.Version `yaml:"version"`
	// Path is relative to the repository location, with '/' separators.
	Path string `yaml:"path"`
}

func (e ArtifactEntry) Key() ArtifactKey {
	return NewArtifactKey(e.Type, e.ID, e.Version)
}

type contentFile struct {
	Units []*InstallableUnit `yaml:"units"`
}

type artifactsFile struct {
	Properties map[string]string `yaml:"properties,omitempty"`
	Artifacts  []ArtifactEntry   `yaml:"artifacts,omitempty"`
}

// Repository is the loaded content of a metadata repository.
// Once published (through the repository cache) a repository is never
// modified.
type Repository struct {
	Location string `yaml:"location"`
	// Stamp is the freshness token of the transport at the time the
	// repository was loaded.
	Stamp      string             `yaml:"stamp,omitempty"`
	Properties map[string]string  `yaml:"properties,omitempty"`
	Units      []*InstallableUnit `yaml:"units,omitempty"`
	Artifacts  []ArtifactEntry    `yaml:"artifacts,omitempty"`

	artifactIndex map[ArtifactKey]int
}

// Name returns the display name of the repository.
func (r *Repository) Name() string {
	if name, ok := r.Properties[PropName]; ok {
		return name
	}
	return r.Location
}

// Property returns the value of the given repository property.
func (r *Repository) Property(name string) (string, bool) {
	v, ok := r.Properties[name]
	return v, ok
}

// Artifact returns the artifact entry for the given key.
func (r *Repository) Artifact(key ArtifactKey) (ArtifactEntry, bool) {
	i, ok := r.artifactIndex[key]
	if !ok {
		return ArtifactEntry{}, false
	}
	return r.Artifacts[i], true
}

func (r *Repository) finish() error {
	r.artifactIndex = map[ArtifactKey]int{}
	for _, unit := range r.Units {
		if unit == nil {
			return fmt.Errorf("repository '%s' has an empty unit", r.Location)
		}
		if err := unit.validate(); err != nil {
			return fmt.Errorf("repository '%s': %w", r.Location, err)
		}
	}
	for i, entry := range r.Artifacts {
		if entry.ID == "" || entry.Path == "" {
			return fmt.Errorf("repository '%s' has an incomplete artifact entry", r.Location)
		}
		r.artifactIndex[entry.Key()] = i
	}
	return nil
}

// withMirrorPolicy returns the view of the repository under the given mirror
// policy. If mirrors are disabled, the mirrors property is removed.
// The receiver isn't modified.
func (r *Repository) withMirrorPolicy(disableMirrors bool) *Repository {
	_, hasMirrors := r.Properties[PropMirrorsURL]
	if !disableMirrors || !hasMirrors {
		return r
	}
	view := *r
	view.Properties = map[string]string{}
	for k, v := range r.Properties {
		if k != PropMirrorsURL {
			view.Properties[k] = v
		}
	}
	return &view
}

func decodeYAML(r io.Reader, target interface{}) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, target)
}

// fetchRepository reads the repository at the given location with the
// given transport. Transport failures are returned as *UnreachableError.
func fetchRepository(ctx context.Context, transport Transport, location string) (*Repository, error) {
	result := &Repository{Location: location}

	af, err := openArtifactsFile(ctx, transport, location)
	if err != nil {
		return nil, err
	}

	result.Properties = af.Properties
	result.Artifacts = af.Artifacts

	var cf contentFile
	compressed := true
	rc, err := transport.Open(ctx, location, CompressedContentFileName)
	if errors.Is(err, os.ErrNotExist) {
		compressed = false
		rc, err = transport.Open(ctx, location, ContentFileName)
	}
	if err != nil {
		return nil, &UnreachableError{Location: location, Err: err}
	}
	defer rc.Close()
	var reader io.Reader = rc
	if compressed {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("repository '%s': %w", location, err)
		}
		defer gz.Close()
		reader = gz
	}
	if err := decodeYAML(reader, &cf); err != nil {
		return nil, fmt.Errorf("repository '%s': invalid content: %w", location, err)
	}
	result.Units = cf.Units
	if err := result.finish(); err != nil {
		return nil, err
	}
	return result, nil
}

func openArtifactsFile(ctx context.Context, transport Transport, location string) (*artifactsFile, error) {
	rc, err := transport.Open(ctx, location, ArtifactsFileName)
	if err != nil {
		return nil, &UnreachableError{Location: location, Err: err}
	}
	defer rc.Close()
	var af artifactsFile
	if err := decodeYAML(rc, &af); err != nil {
		return nil, fmt.Errorf("repository '%s': invalid artifacts file: %w", location, err)
	}
	return &af, nil
}

// WriteRepository writes the metadata of a repository into dir.
// Artifact files are not copied.
func WriteRepository(dir string, properties map[string]string, units []*InstallableUnit, artifacts []ArtifactEntry, compress bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	props := map[string]string{}
	for k, v := range properties {
		props[k] = v
	}
	if compress {
		props[PropCompressed] = "true"
	}
	b, err := yaml.Marshal(artifactsFile{Properties: props, Artifacts: artifacts})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ArtifactsFileName), b, 0644); err != nil {
		return err
	}

	content, err := yaml.Marshal(contentFile{Units: units})
	if err != nil {
		return err
	}
	if !compress {
		os.Remove(filepath.Join(dir, CompressedContentFileName))
		return os.WriteFile(filepath.Join(dir, ContentFileName), content, 0644)
	}
	os.Remove(filepath.Join(dir, ContentFileName))
	f, err := os.Create(filepath.Join(dir, CompressedContentFileName))
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
