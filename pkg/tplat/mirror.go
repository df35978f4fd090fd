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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/osgi-build/tplat/pkg/osgi"
	"github.com/osgi-build/tplat/pkg/set"
)

// RepositoryReference describes a source repository of a mirror operation.
type RepositoryReference struct {
	Location string `yaml:"location"`
	Name     string `yaml:"name,omitempty"`
	// Compressed is informational. Compressed content is detected
	// automatically.
	Compressed bool `yaml:"compressed,omitempty"`
}

type RepositoryReferences []RepositoryReference

// DestinationRepositoryDescriptor describes the target of a mirror
// operation. The location must be on the local file system.
type DestinationRepositoryDescriptor struct {
	Location string
	Name     string
	// Compress writes the unit metadata gzip compressed.
	Compress bool
	// Append keeps units and artifacts that are already in the destination.
	Append bool
}

// IUDescription names a unit to mirror. An empty version selects the
// highest available version.
type IUDescription struct {
	ID      string `yaml:"id"`
	Version string `yaml:"version,omitempty"`
}

type MirrorOptions struct {
	// LatestVersionOnly keeps only the highest version of each unit across
	// all sources.
	LatestVersionOnly bool
	// FollowStrictOnly only follows requirements with an exact version range.
	FollowStrictOnly bool
	IncludeOptional  bool
	IncludeNonGreedy bool
	// Environments restricts the mirrored units to those matching any of the
	// environments. Empty means all units.
	Environments []TargetEnvironment
}

func (o MirrorOptions) matches(f *osgi.Filter) bool {
	if len(o.Environments) == 0 {
		return true
	}
	for _, env := range o.Environments {
		if f.Match(env.FilterProperties()) {
			return true
		}
	}
	return false
}

// latestOnly keeps the highest version of each (type, id).
func latestOnly(u universe) universe {
	result := universe{}
	for id, list := range u {
		seen := set.Set[UnitType]{}
		for _, c := range list {
			if seen.Contains(c.Unit.Type) {
				continue
			}
			seen.Add(c.Unit.Type)
			result[id] = append(result[id], c)
		}
	}
	return result
}

// MirrorStandalone copies units of the source repositories, together with
// everything they require, into the destination repository.
//
// If no units are given, all units of the sources are mirrored. Explicitly
// named versions must exist; otherwise an *UnsatisfiedError is returned.
// Requirements that can't be satisfied during the closure are reported as
// warnings, since a mirror doesn't need to be complete.
//
// Returns the mirrored artifacts with their location in the destination.
func (r *Resolver) MirrorStandalone(ctx context.Context, rc *ResolutionContext, sources RepositoryReferences, dest DestinationRepositoryDescriptor, units []IUDescription, options MirrorOptions) ([]ArtifactDescriptor, error) {
	sourceKeys := set.String{}
	for _, source := range sources {
		if err := rc.AddRepository(ctx, source.Location); err != nil {
			return nil, err
		}
		key, err := CanonicalLocation(source.Location)
		if err != nil {
			return nil, err
		}
		sourceKeys.Add(key)
	}

	full := newUniverse(rc.Candidates(), func(c *Candidate) bool {
		return c.Repository != nil && sourceKeys.Contains(c.Repository.Location) && options.matches(c.Unit.Filter)
	})
	pool := full
	if options.LatestVersionOnly {
		pool = latestOnly(full)
	}

	var seeds []*Candidate
	if len(units) == 0 {
		ids := make([]string, 0, len(pool))
		for id := range pool {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			seeds = append(seeds, pool[id]...)
		}
	}
	for _, iu := range units {
		if iu.Version == "" {
			c := pool.best(Requirement{ID: iu.ID})
			if c == nil {
				return nil, &UnsatisfiedError{ID: iu.ID}
			}
			seeds = append(seeds, c)
			continue
		}
		v, err := osgi.ParseVersion(iu.Version)
		if err != nil {
			return nil, fmt.Errorf("unit '%s': %w", iu.ID, err)
		}
		c := full.best(Requirement{ID: iu.ID}, osgi.ExactRange(v))
		if c == nil {
			return nil, &UnsatisfiedError{ID: iu.ID, Range: v.String()}
		}
		seeds = append(seeds, c)
	}

	included := r.mirrorClosure(pool, seeds, options)
	return r.writeMirror(ctx, rc, dest, included)
}

func (r *Resolver) mirrorClosure(pool universe, seeds []*Candidate, options MirrorOptions) []*Candidate {
	var result []*Candidate
	visited := set.Set[ArtifactKey]{}
	queue := append([]*Candidate{}, seeds...)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		key := c.Unit.Key()
		if visited.Contains(key) {
			continue
		}
		visited.Add(key)
		result = append(result, c)

		for _, req := range c.Unit.Requires {
			if req.Optional && !options.IncludeOptional {
				continue
			}
			if !req.IsGreedy() && !options.IncludeNonGreedy {
				continue
			}
			if options.FollowStrictOnly && !req.Range.IsExact() {
				continue
			}
			if !options.matches(req.Filter) {
				continue
			}
			dep := pool.best(req, req.Range)
			if dep == nil {
				if !req.Optional {
					r.ui.ReportWarning("Unable to mirror requirement '%s' of '%s'", req, c.Unit)
				}
				continue
			}
			queue = append(queue, dep)
		}
	}
	return result
}

func mirrorPath(entry ArtifactEntry) string {
	name := fmt.Sprintf("%s_%s", entry.ID, entry.Version)
	ext := path.Ext(entry.Path)
	switch entry.Type {
	case TypeEclipsePlugin, TypeEclipseTestPlugin:
		return "plugins/" + name + ext
	case TypeEclipseFeature:
		return "features/" + name + ext
	default:
		return "binary/" + name + ext
	}
}

func (r *Resolver) writeMirror(ctx context.Context, rc *ResolutionContext, dest DestinationRepositoryDescriptor, included []*Candidate) ([]ArtifactDescriptor, error) {
	if scheme := schemeOf(dest.Location); scheme != "" && scheme != "file" {
		return nil, fmt.Errorf("mirror destination '%s' must be a local path", dest.Location)
	}
	dir, err := filePath(dest.Location)
	if err != nil {
		return nil, err
	}

	unitsByKey := map[ArtifactKey]*InstallableUnit{}
	entriesByKey := map[ArtifactKey]ArtifactEntry{}
	properties := map[string]string{}
	if dest.Append {
		existing, err := fetchRepository(ctx, FileTransport{}, dir)
		var unreachable *UnreachableError
		if err != nil && !(errors.As(err, &unreachable) && errors.Is(err, os.ErrNotExist)) {
			return nil, err
		}
		if existing != nil {
			for k, v := range existing.Properties {
				properties[k] = v
			}
			for _, unit := range existing.Units {
				unitsByKey[unit.Key()] = unit
			}
			for _, entry := range existing.Artifacts {
				entriesByKey[entry.Key()] = entry
			}
		}
	}
	if dest.Name != "" {
		properties[PropName] = dest.Name
	}
	delete(properties, PropMirrorsURL)
	delete(properties, PropCompressed)

	var result []ArtifactDescriptor
	for _, c := range included {
		key := c.Unit.Key()
		unitsByKey[key] = c.Unit
		entry, ok := c.Repository.Artifact(key)
		if !ok {
			continue
		}
		target := ArtifactEntry{
			Type:    entry.Type,
			ID:      entry.ID,
			Version: entry.Version,
			Path:    mirrorPath(entry),
		}
		targetPath := filepath.Join(dir, filepath.FromSlash(target.Path))
		if err := copyArtifact(ctx, rc.agent.cacheManager, c.Repository, entry, targetPath); err != nil {
			return nil, err
		}
		entriesByKey[key] = target
		result = append(result, ArtifactDescriptor{
			Key:              key,
			Location:         targetPath,
			InstallableUnits: []string{c.Unit.ID},
		})
	}

	keys := make([]ArtifactKey, 0, len(unitsByKey))
	for key := range unitsByKey {
		keys = append(keys, key)
	}
	sortKeys(keys)
	var outUnits []*InstallableUnit
	var outEntries []ArtifactEntry
	for _, key := range keys {
		outUnits = append(outUnits, unitsByKey[key])
		if entry, ok := entriesByKey[key]; ok {
			outEntries = append(outEntries, entry)
		}
	}
	if err := WriteRepository(dir, properties, outUnits, outEntries, dest.Compress); err != nil {
		return nil, err
	}
	r.ui.ReportInfo("Mirrored %d units (%d artifacts) to '%s'", len(included), len(result), dir)

	sort.Slice(result, func(i, j int) bool {
		return keyLess(result[i].Key, result[j].Key)
	})
	return result, nil
}

func copyArtifact(ctx context.Context, m *CacheManager, repo *Repository, entry ArtifactEntry, targetPath string) error {
	rc, err := m.OpenArtifact(ctx, repo, entry)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return err
	}
	f, err := os.Create(targetPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func keyLess(a ArtifactKey, b ArtifactKey) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return osgi.MustParseVersion(a.Version).LessThan(osgi.MustParseVersion(b.Version))
}

func sortKeys(keys []ArtifactKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keyLess(keys[i], keys[j])
	})
}
