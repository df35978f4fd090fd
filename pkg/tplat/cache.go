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
	"sync"

	"golang.org/x/sync/singleflight"
)

// RepositoryCache keeps loaded repositories keyed by their canonical
// location. It doesn't load repositories itself and never evicts entries.
//
// For each location the cache keeps the repository as it was loaded, and
// the view that was last handed out (which depends on the mirror policy of
// the caller).
//
// The cache is safe for concurrent use.
type RepositoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry

	loads singleflight.Group
}

type cacheEntry struct {
	loaded *Repository
	view   *Repository
}

func NewRepositoryCache() *RepositoryCache {
	return &RepositoryCache{
		entries: map[string]*cacheEntry{},
	}
}

// GetArtifactRepository returns the repository for the given location, or
// nil if it hasn't been loaded.
// The result is the view last handed out by the cache manager. Agents are
// shared between resolution contexts, so with different mirror policies
// the last load decides whether the mirrors property is present. Contexts
// keep the view they loaded themselves.
func (c *RepositoryCache) GetArtifactRepository(location string) *Repository {
	return c.get(location, func(e *cacheEntry) *Repository { return e.view })
}

// GetMetadataRepository returns the repository for the given location, or
// nil if it hasn't been loaded.
// Metadata and artifacts share one entry, since they are stored together.
func (c *RepositoryCache) GetMetadataRepository(location string) *Repository {
	return c.GetArtifactRepository(location)
}

func (c *RepositoryCache) loadedRepository(location string) *Repository {
	return c.get(location, func(e *cacheEntry) *Repository { return e.loaded })
}

func (c *RepositoryCache) get(location string, pick func(e *cacheEntry) *Repository) *Repository {
	key, err := CanonicalLocation(location)
	if err != nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[key]; ok {
		return pick(e)
	}
	return nil
}

// putLoaded stores a freshly loaded repository. The view is reset to the
// loaded repository.
func (c *RepositoryCache) putLoaded(key string, repo *Repository) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{loaded: repo, view: repo}
}

// putView records the view of an already loaded repository, replacing
// the view of any earlier load. Subsequent GetArtifactRepository and
// GetMetadataRepository calls return it, whatever mirror policy the
// caller uses.
func (c *RepositoryCache) putView(key string, view *Repository) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.view = view
	}
}

// loadOnce runs load for the key, unless a load for the same key is
// already in flight. Concurrent callers share the result of the in-flight
// load.
func (c *RepositoryCache) loadOnce(key string, load func() (*Repository, error)) (*Repository, error) {
	v, err, _ := c.loads.Do(key, func() (interface{}, error) {
		return load()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Repository), nil
}

// Locations returns the canonical locations of all cached repositories.
func (c *RepositoryCache) Locations() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]string, 0, len(c.entries))
	for k := range c.entries {
		result = append(result, k)
	}
	return result
}
