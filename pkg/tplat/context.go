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
	"fmt"

	"github.com/osgi-build/tplat/pkg/osgi"
	"github.com/osgi-build/tplat/pkg/set"
)

// Candidate is a unit the resolver can select.
type Candidate struct {
	Unit *InstallableUnit
	// Repository is the repository the unit comes from. Nil for units that
	// were added directly to the context.
	Repository *Repository
	// Descriptor is set for units that were added directly to the context:
	// reactor modules and plain file dependencies.
	Descriptor *ArtifactDescriptor
}

// IsReactor returns whether the candidate is built in the current build.
func (c *Candidate) IsReactor() bool {
	return c.Descriptor != nil && c.Descriptor.IsReactor()
}

func (c *Candidate) Key() ArtifactKey {
	if c.Descriptor != nil {
		return c.Descriptor.Key
	}
	return c.Unit.Key()
}

func (c *Candidate) String() string {
	if c.Repository != nil {
		return fmt.Sprintf("%s (%s)", c.Unit, c.Repository.Name())
	}
	if c.IsReactor() {
		return fmt.Sprintf("%s (reactor)", c.Unit)
	}
	return c.Unit.String()
}

// ResolutionContext aggregates repositories and local modules into the
// universe of candidates for a resolution.
//
// A context is meant to be used by one build thread. The agent behind it
// may be shared.
type ResolutionContext struct {
	agent          *Agent
	disableMirrors bool
	ui             UI

	locations    []string
	repositories map[string]*Repository

	local     []*Candidate
	localKeys set.Set[ArtifactKey]
}

func newResolutionContext(agent *Agent, disableMirrors bool, ui UI) *ResolutionContext {
	return &ResolutionContext{
		agent:          agent,
		disableMirrors: disableMirrors,
		ui:             ui,
		repositories:   map[string]*Repository{},
		localKeys:      set.Set[ArtifactKey]{},
	}
}

func (c *ResolutionContext) Agent() *Agent {
	return c.agent
}

func (c *ResolutionContext) UI() UI {
	return c.ui
}

// AddRepository registers the repository at the given location.
// Adding the same location again has no effect.
func (c *ResolutionContext) AddRepository(ctx context.Context, location string) error {
	key, err := CanonicalLocation(location)
	if err != nil {
		return &UnreachableError{Location: location, Err: err}
	}
	if _, ok := c.repositories[key]; ok {
		return nil
	}
	repo, err := c.agent.cacheManager.Load(ctx, key, c.disableMirrors, c.ui)
	if err != nil {
		return err
	}
	c.locations = append(c.locations, key)
	c.repositories[key] = repo
	return nil
}

// Repositories returns the added repositories in the order they were added.
func (c *ResolutionContext) Repositories() []*Repository {
	result := make([]*Repository, 0, len(c.locations))
	for _, location := range c.locations {
		result = append(result, c.repositories[location])
	}
	return result
}

func unitTypeFor(artifactType string) UnitType {
	switch artifactType {
	case TypeEclipseFeature:
		return UnitFeature
	case TypeEclipseProduct, TypeEclipseRepository:
		return UnitProduct
	default:
		return UnitBundle
	}
}

// AddReactorArtifact registers a module of the current build.
// If unit is nil, a unit without requirements is derived from the key.
// Reactor modules replace repository units with the same key.
func (c *ResolutionContext) AddReactorArtifact(desc ArtifactDescriptor, unit *InstallableUnit) error {
	if desc.Project == nil {
		return fmt.Errorf("reactor artifact '%s' without project", desc.Key)
	}
	return c.addLocal(desc, unit)
}

// AddExternalArtifact registers a module that is available as a plain file,
// for example a bundle that was declared as a normal build dependency.
func (c *ResolutionContext) AddExternalArtifact(desc ArtifactDescriptor, unit *InstallableUnit) error {
	if desc.Project != nil {
		return fmt.Errorf("external artifact '%s' must not have a project", desc.Key)
	}
	return c.addLocal(desc, unit)
}

func (c *ResolutionContext) addLocal(desc ArtifactDescriptor, unit *InstallableUnit) error {
	if unit == nil {
		v, err := osgi.ParseVersion(desc.Key.Version)
		if err != nil {
			return fmt.Errorf("artifact '%s': %w", desc.Key, err)
		}
		unit = &InstallableUnit{
			ID:      desc.Key.ID,
			Version: v,
			Type:    unitTypeFor(desc.Key.Type),
		}
	}
	if err := unit.validate(); err != nil {
		return err
	}
	// Normalize the version of the key.
	v, err := osgi.ParseVersion(desc.Key.Version)
	if err != nil {
		return fmt.Errorf("artifact '%s': %w", desc.Key, err)
	}
	desc.Key.Version = v.String()
	if desc.Key.ID != unit.ID || !v.Equal(unit.Version) {
		return fmt.Errorf("artifact '%s' doesn't match unit '%s'", desc.Key, unit)
	}
	key := unit.Key()
	if c.localKeys.Contains(key) {
		return fmt.Errorf("duplicate artifact '%s'", desc.Key)
	}
	if len(desc.InstallableUnits) == 0 {
		desc.InstallableUnits = []string{unit.ID}
	}
	c.localKeys.Add(key)
	c.local = append(c.local, &Candidate{
		Unit:       unit,
		Descriptor: &desc,
	})
	return nil
}

// ReactorArtifacts returns the registered modules of the current build.
func (c *ResolutionContext) ReactorArtifacts() []ArtifactDescriptor {
	var result []ArtifactDescriptor
	for _, candidate := range c.local {
		if candidate.IsReactor() {
			result = append(result, *candidate.Descriptor)
		}
	}
	return result
}

// Candidates returns the universe of the context: all locally added units
// followed by the units of the repositories.
// Repository units with the key of a local unit are dropped. If two
// repositories provide the same key, the first added repository wins.
func (c *ResolutionContext) Candidates() []*Candidate {
	return c.candidates(true)
}

func (c *ResolutionContext) candidates(withRepositories bool) []*Candidate {
	result := append([]*Candidate{}, c.local...)
	if !withRepositories {
		return result
	}
	seen := set.New[ArtifactKey](c.localKeys.Values()...)
	for _, repo := range c.Repositories() {
		for _, unit := range repo.Units {
			key := unit.Key()
			if seen.Contains(key) {
				continue
			}
			seen.Add(key)
			result = append(result, &Candidate{
				Unit:       unit,
				Repository: repo,
			})
		}
	}
	return result
}
