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
	"os"
	"path/filepath"
	"sync"
)

// AgentKey identifies a provisioning agent.
type AgentKey struct {
	Root    string
	Offline bool
}

// Agent is the long-lived provisioning context for a local repository root
// and an offline flag. It owns the repository cache and the cache manager.
// Agents are never torn down.
type Agent struct {
	key          AgentKey
	cache        *RepositoryCache
	cacheManager *CacheManager
}

func (a *Agent) Key() AgentKey {
	return a.key
}

func (a *Agent) RepositoryCache() *RepositoryCache {
	return a.cache
}

func (a *Agent) CacheManager() *CacheManager {
	return a.cacheManager
}

// AgentRegistry maps (root, offline) pairs to agents.
// Lookup-or-create is a single critical section for the whole registry.
// Agents are created rarely, so a single lock is sufficient.
type AgentRegistry struct {
	mu     sync.Mutex
	agents map[AgentKey]*Agent

	newTransport func(root string) Transport
}

// AgentOption defines the optional parameters for NewAgentRegistry.
type AgentOption interface {
	applyAgentOption(*AgentRegistry)
}

type transportFactory func(root string) Transport

func (f transportFactory) applyAgentOption(r *AgentRegistry) {
	r.newTransport = f
}

// WithTransport sets the function that creates the transport of new agents.
// By default agents use NewDefaultTransport with git checkouts in the
// cache directory of the root.
func WithTransport(f func(root string) Transport) AgentOption {
	return transportFactory(f)
}

func defaultTransport(root string) Transport {
	return NewDefaultTransport(filepath.Join(root, filepath.FromSlash(CacheSubDir), "git"))
}

func NewAgentRegistry(options ...AgentOption) *AgentRegistry {
	r := &AgentRegistry{
		agents:       map[AgentKey]*Agent{},
		newTransport: defaultTransport,
	}
	for _, option := range options {
		option.applyAgentOption(r)
	}
	return r
}

// DefaultAgentRegistry is the process-wide registry used by the command
// line. Tests should create their own registries.
var DefaultAgentRegistry = NewAgentRegistry()

// Agent returns the agent for the given root and offline flag. The agent is
// created on first use.
func (r *AgentRegistry) Agent(root string, offline bool) (*Agent, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &AgentInitError{Root: root, Err: err}
	}
	key := AgentKey{Root: filepath.Clean(abs), Offline: offline}

	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[key]; ok {
		return agent, nil
	}
	if err := os.MkdirAll(key.Root, 0755); err != nil {
		return nil, &AgentInitError{Root: root, Err: err}
	}
	cache := NewRepositoryCache()
	agent := &Agent{
		key:          key,
		cache:        cache,
		cacheManager: NewCacheManager(key.Root, offline, r.newTransport(key.Root), cache),
	}
	r.agents[key] = agent
	return agent, nil
}
