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
	"sort"

	"github.com/osgi-build/tplat/pkg/osgi"
	"github.com/osgi-build/tplat/pkg/set"
)

// Resolver computes target platforms.
type Resolver struct {
	ui             UI
	allowConflicts bool
	strategy       string
}

// ResolverOption defines the optional parameters for NewResolver.
type ResolverOption interface {
	applyResolverOption(*Resolver)
}

type allowConflictsOption bool

func (o allowConflictsOption) applyResolverOption(r *Resolver) {
	r.allowConflicts = bool(o)
}

// WithAllowConflictingDependencies makes the resolver accept conflicting
// versions of a unit. The highest version is used and a warning is
// reported.
func WithAllowConflictingDependencies(allow bool) ResolverOption {
	return allowConflictsOption(allow)
}

type strategyOption string

func (o strategyOption) applyResolverOption(r *Resolver) {
	r.strategy = string(o)
}

// WithStrategy sets the resolver strategy (ResolverP2 or ResolverLocal).
func WithStrategy(name string) ResolverOption {
	return strategyOption(name)
}

// WithConfiguration applies the resolver related settings of the
// configuration.
func WithConfiguration(cfg *TargetPlatformConfiguration) ResolverOption {
	return configurationOption{cfg}
}

type configurationOption struct {
	cfg *TargetPlatformConfiguration
}

func (o configurationOption) applyResolverOption(r *Resolver) {
	r.allowConflicts = o.cfg.AllowConflictingDependencies
	if o.cfg.Resolver != "" {
		r.strategy = o.cfg.Resolver
	}
}

func NewResolver(ui UI, options ...ResolverOption) *Resolver {
	r := &Resolver{
		ui:       ui,
		strategy: ResolverP2,
	}
	for _, option := range options {
		option.applyResolverOption(r)
	}
	return r
}

// EnvironmentResult is the resolved target platform of one environment.
type EnvironmentResult struct {
	Environment TargetEnvironment
	Artifacts   []ArtifactDescriptor
}

type ResolutionResult []EnvironmentResult

// For returns the artifacts of the given environment.
func (r ResolutionResult) For(env TargetEnvironment) ([]ArtifactDescriptor, bool) {
	for _, er := range r {
		if er.Environment == env {
			return er.Artifacts, true
		}
	}
	return nil, false
}

// universe contains the eligible candidates, by unit id.
// Each list is sorted best first: higher versions first, and reactor
// modules before other candidates of the same version.
type universe map[string][]*Candidate

func newUniverse(candidates []*Candidate, accept func(c *Candidate) bool) universe {
	u := universe{}
	for _, c := range candidates {
		if accept(c) {
			u[c.Unit.ID] = append(u[c.Unit.ID], c)
		}
	}
	for _, list := range u {
		sort.SliceStable(list, func(i, j int) bool {
			return isBetter(list[i], list[j])
		})
	}
	return u
}

func isBetter(a *Candidate, b *Candidate) bool {
	if c := a.Unit.Version.Compare(b.Unit.Version); c != 0 {
		return c > 0
	}
	return a.IsReactor() && !b.IsReactor()
}

// best returns the best candidate for req whose version is in all ranges.
func (u universe) best(req Requirement, ranges ...osgi.VersionRange) *Candidate {
	for _, c := range u[req.ID] {
		if !req.matchesType(c.Unit.Type) {
			continue
		}
		ok := true
		for _, r := range ranges {
			if !r.Includes(c.Unit.Version) {
				ok = false
				break
			}
		}
		if ok {
			return c
		}
	}
	return nil
}

type selection struct {
	candidate *Candidate
	ranges    []osgi.VersionRange
}

type pendingRequirement struct {
	req        Requirement
	requiredBy string
}

// findSelection returns the selection of a unit the requirement applies to.
// Selections with a version inside the requirement's range are preferred.
func findSelection(selections []*selection, req Requirement) *selection {
	var first *selection
	for _, sel := range selections {
		if !req.matchesType(sel.candidate.Unit.Type) {
			continue
		}
		if req.Range.Includes(sel.candidate.Unit.Version) {
			return sel
		}
		if first == nil {
			first = sel
		}
	}
	return first
}

func containsRange(ranges []osgi.VersionRange, r osgi.VersionRange) bool {
	for _, existing := range ranges {
		if existing.String() == r.String() {
			return true
		}
	}
	return false
}

// Resolve computes the target platform for each of the environments.
// If no environment is given, the running environment is used.
//
// Resolution is all-or-nothing: if any requirement can't be satisfied in
// any environment, no result is returned.
func (r *Resolver) Resolve(ctx context.Context, rc *ResolutionContext, requirements []Requirement, environments []TargetEnvironment) (ResolutionResult, error) {
	if len(environments) == 0 {
		environments = []TargetEnvironment{RunningEnvironment()}
	}
	candidates := rc.candidates(r.strategy != ResolverLocal)

	result := ResolutionResult{}
	for _, env := range environments {
		selections, err := r.resolveEnvironment(candidates, requirements, env)
		if err != nil {
			return nil, err
		}
		artifacts, err := artifactsFor(ctx, rc, selections)
		if err != nil {
			return nil, err
		}
		result = append(result, EnvironmentResult{
			Environment: env,
			Artifacts:   artifacts,
		})
	}
	return result, nil
}

func (r *Resolver) resolveEnvironment(candidates []*Candidate, requirements []Requirement, env TargetEnvironment) ([]*selection, error) {
	props := env.FilterProperties()
	u := newUniverse(candidates, func(c *Candidate) bool {
		return c.Unit.Filter.Match(props)
	})

	// Pins narrow the versions of a unit when the closure needs a version
	// that satisfies more than the first requirement on it. Every restart adds
	// a new pin, so the loop terminates.
	pins := map[string][]osgi.VersionRange{}
	for {
		selections, restart, err := r.expand(u, requirements, env, pins)
		if err != nil {
			return nil, err
		}
		if !restart {
			return selections, nil
		}
	}
}

// expand computes the closure of the requirements.
// Returns restart=true if a pin was added and the expansion must be redone.
func (r *Resolver) expand(u universe, roots []Requirement, env TargetEnvironment, pins map[string][]osgi.VersionRange) ([]*selection, bool, error) {
	props := env.FilterProperties()
	selected := map[string][]*selection{}
	var order []*selection
	visited := set.Set[ArtifactKey]{}

	queue := make([]pendingRequirement, 0, len(roots))
	for _, req := range roots {
		queue = append(queue, pendingRequirement{req: req})
	}
	include := func(c *Candidate) {
		key := c.Unit.Key()
		if visited.Contains(key) {
			return
		}
		visited.Add(key)
		for _, req := range c.Unit.Requires {
			queue = append(queue, pendingRequirement{req: req, requiredBy: c.Unit.String()})
		}
	}
	unsatisfied := func(p pendingRequirement) error {
		e := env
		return &UnsatisfiedError{
			ID:          p.req.ID,
			Range:       p.req.Range.String(),
			Environment: &e,
			RequiredBy:  p.requiredBy,
		}
	}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		req := p.req
		if !req.Filter.Match(props) {
			continue
		}

		if sel := findSelection(selected[req.ID], req); sel != nil {
			current := sel.candidate.Unit.Version
			if req.Range.Includes(current) {
				sel.ranges = append(sel.ranges, req.Range)
				continue
			}
			if req.Optional {
				r.ui.ReportInfo("Ignoring optional requirement '%s' of '%s': '%s' is already selected", req, p.requiredBy, sel.candidate.Unit)
				continue
			}
			ranges := append(append([]osgi.VersionRange{}, pins[req.ID]...), sel.ranges...)
			ranges = append(ranges, req.Range)
			if alt := u.best(req, ranges...); alt != nil && alt != sel.candidate && !containsRange(pins[req.ID], req.Range) {
				pins[req.ID] = append(pins[req.ID], req.Range)
				return nil, true, nil
			}
			other := u.best(req, req.Range)
			if other == nil {
				return nil, false, unsatisfied(p)
			}
			if !r.allowConflicts {
				e := env
				return nil, false, &ConflictError{
					ID:          req.ID,
					Versions:    [2]string{current.String(), other.Unit.Version.String()},
					Environment: &e,
				}
			}
			highest := sel.candidate
			if other.Unit.Version.Compare(current) > 0 {
				highest = other
			}
			r.ui.ReportWarning("Conflicting versions of '%s' for %s: %s and %s. Using %s",
				req.ID, env, current, other.Unit.Version, highest.Unit.Version)
			if highest != sel.candidate {
				sel.candidate = highest
				include(highest)
			}
			sel.ranges = append(sel.ranges, req.Range)
			continue
		}

		if !req.IsGreedy() {
			continue
		}
		c := u.best(req, append(append([]osgi.VersionRange{}, pins[req.ID]...), req.Range)...)
		if c == nil {
			c = u.best(req, req.Range)
		}
		if c == nil {
			if req.Optional {
				r.ui.ReportInfo("Optional requirement '%s' of '%s' is not available for %s", req, p.requiredBy, env)
				continue
			}
			return nil, false, unsatisfied(p)
		}
		sel := &selection{
			candidate: c,
			ranges:    []osgi.VersionRange{req.Range},
		}
		selected[req.ID] = append(selected[req.ID], sel)
		order = append(order, sel)
		include(c)
	}
	return order, false, nil
}

// artifactsFor returns the descriptors of the selected units.
// Units without an artifact (pure metadata units) are skipped.
func artifactsFor(ctx context.Context, rc *ResolutionContext, selections []*selection) ([]ArtifactDescriptor, error) {
	var result []ArtifactDescriptor
	for _, sel := range selections {
		c := sel.candidate
		if c.Descriptor != nil {
			result = append(result, *c.Descriptor)
			continue
		}
		key := c.Unit.Key()
		entry, ok := c.Repository.Artifact(key)
		if !ok {
			continue
		}
		location, err := rc.agent.cacheManager.ArtifactFile(ctx, c.Repository, entry)
		if err != nil {
			return nil, err
		}
		result = append(result, ArtifactDescriptor{
			Key:              key,
			Location:         location,
			InstallableUnits: []string{c.Unit.ID},
		})
	}
	return result, nil
}
