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
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_AgentRegistry(t *testing.T) {
	t.Run("Same key", func(t *testing.T) {
		registry := NewAgentRegistry()
		root := t.TempDir()
		a1, err := registry.Agent(root, false)
		require.NoError(t, err)
		a2, err := registry.Agent(root, false)
		require.NoError(t, err)
		assert.Same(t, a1, a2)
		assert.Same(t, a1.RepositoryCache(), a2.RepositoryCache())
		assert.Equal(t, AgentKey{Root: root, Offline: false}, a1.Key())
	})

	t.Run("Different keys", func(t *testing.T) {
		registry := NewAgentRegistry()
		root := t.TempDir()
		online, err := registry.Agent(root, false)
		require.NoError(t, err)
		offline, err := registry.Agent(root, true)
		require.NoError(t, err)
		other, err := registry.Agent(t.TempDir(), false)
		require.NoError(t, err)
		assert.NotSame(t, online, offline)
		assert.NotSame(t, online, other)
		assert.NotSame(t, online.RepositoryCache(), offline.RepositoryCache())
		assert.True(t, offline.CacheManager().Offline())
		assert.False(t, online.CacheManager().Offline())
	})

	t.Run("Unclean root", func(t *testing.T) {
		registry := NewAgentRegistry()
		root := t.TempDir()
		a1, err := registry.Agent(root, false)
		require.NoError(t, err)
		a2, err := registry.Agent(filepath.Join(root, "sub", ".."), false)
		require.NoError(t, err)
		assert.Same(t, a1, a2)
	})

	t.Run("Separate registries", func(t *testing.T) {
		root := t.TempDir()
		a1, err := NewAgentRegistry().Agent(root, false)
		require.NoError(t, err)
		a2, err := NewAgentRegistry().Agent(root, false)
		require.NoError(t, err)
		assert.NotSame(t, a1, a2)
	})

	t.Run("Concurrent", func(t *testing.T) {
		registry := NewAgentRegistry()
		root := t.TempDir()
		agents := make([]*Agent, 16)
		wg := sync.WaitGroup{}
		for i := range agents {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, err := registry.Agent(root, false)
				assert.NoError(t, err)
				agents[i] = a
			}(i)
		}
		wg.Wait()
		for _, a := range agents {
			assert.Same(t, agents[0], a)
		}
	})

	t.Run("Init failure", func(t *testing.T) {
		registry := NewAgentRegistry()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
		_, err := registry.Agent(filepath.Join(file, "root"), false)
		require.Error(t, err)
		var initErr *AgentInitError
		assert.True(t, errors.As(err, &initErr))
	})
}

func Test_ResolverFactory(t *testing.T) {
	t.Run("Shared agent", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		rc1, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		rc2, err := factory.CreateResolutionContext(root, false, true, NullUI)
		require.NoError(t, err)
		assert.NotSame(t, rc1, rc2)
		assert.Same(t, rc1.Agent(), rc2.Agent())
	})

	t.Run("Agent failure", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		file := filepath.Join(root, "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
		rc, err := factory.CreateResolutionContext(filepath.Join(file, "root"), false, false, NullUI)
		assert.Nil(t, rc)
		var initErr *AgentInitError
		assert.True(t, errors.As(err, &initErr))
	})

	t.Run("Resolver options", func(t *testing.T) {
		factory, _ := newTestFactory(t, nil)
		ui := &testUI{}
		r := factory.CreateResolver(ui, WithStrategy(ResolverLocal), WithAllowConflictingDependencies(true))
		assert.Equal(t, ResolverLocal, r.strategy)
		assert.True(t, r.allowConflicts)
		assert.Equal(t, ui, r.ui)
	})
}
