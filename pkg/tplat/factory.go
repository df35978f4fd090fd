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

// ResolverFactory creates resolution contexts and resolvers.
type ResolverFactory struct {
	agents *AgentRegistry
}

// NewResolverFactory returns a factory that takes its agents from the
// given registry. If agents is nil, DefaultAgentRegistry is used.
func NewResolverFactory(agents *AgentRegistry) *ResolverFactory {
	if agents == nil {
		agents = DefaultAgentRegistry
	}
	return &ResolverFactory{agents: agents}
}

// CreateResolutionContext returns a new context that is backed by the
// agent for (localRepoRoot, offline).
// Returns an *AgentInitError if the agent can't be created.
func (f *ResolverFactory) CreateResolutionContext(localRepoRoot string, offline bool, disableMirrors bool, ui UI) (*ResolutionContext, error) {
	agent, err := f.agents.Agent(localRepoRoot, offline)
	if err != nil {
		return nil, err
	}
	return newResolutionContext(agent, disableMirrors, ui), nil
}

// CreateResolver returns a new resolver that reports to ui.
func (f *ResolverFactory) CreateResolver(ui UI, options ...ResolverOption) *Resolver {
	return NewResolver(ui, options...)
}
