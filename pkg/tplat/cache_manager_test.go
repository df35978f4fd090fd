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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memRepo = "mem://repo.example.com/updates"

func Test_Mirrors(t *testing.T) {
	ctx := context.Background()
	props := map[string]string{
		PropName:       "with mirrors",
		PropMirrorsURL: "http://mirrors.example.com/list",
	}

	t.Run("Disabled", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		location := writeTestRepository(t, t.TempDir(), props, testUnit("a", "1.0.0"))
		rc, err := factory.CreateResolutionContext(root, false, true, NullUI)
		require.NoError(t, err)
		require.NoError(t, rc.AddRepository(ctx, location))

		repo := rc.Agent().RepositoryCache().GetArtifactRepository(location)
		require.NotNil(t, repo)
		_, ok := repo.Property(PropMirrorsURL)
		assert.False(t, ok)
		assert.Equal(t, "with mirrors", repo.Name())

		repo = rc.Agent().RepositoryCache().GetMetadataRepository(location)
		_, ok = repo.Property(PropMirrorsURL)
		assert.False(t, ok)
	})

	t.Run("Enabled", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		location := writeTestRepository(t, t.TempDir(), props, testUnit("a", "1.0.0"))
		rc, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		require.NoError(t, rc.AddRepository(ctx, location))

		repo := rc.Agent().RepositoryCache().GetArtifactRepository(location)
		require.NotNil(t, repo)
		v, ok := repo.Property(PropMirrorsURL)
		assert.True(t, ok)
		assert.Equal(t, "http://mirrors.example.com/list", v)
	})

	t.Run("Reapplied on every load", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		location := writeTestRepository(t, t.TempDir(), props, testUnit("a", "1.0.0"))
		for _, disable := range []bool{false, true, false, true} {
			rc, err := factory.CreateResolutionContext(root, false, disable, NullUI)
			require.NoError(t, err)
			require.NoError(t, rc.AddRepository(ctx, location))
			repo := rc.Agent().RepositoryCache().GetArtifactRepository(location)
			_, ok := repo.Property(PropMirrorsURL)
			assert.Equal(t, !disable, ok)
			_, ok = rc.Repositories()[0].Property(PropMirrorsURL)
			assert.Equal(t, !disable, ok)
		}
	})

	t.Run("Last view on shared agent", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		location := writeTestRepository(t, t.TempDir(), props, testUnit("a", "1.0.0"))
		withMirrors, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		require.NoError(t, withMirrors.AddRepository(ctx, location))
		withoutMirrors, err := factory.CreateResolutionContext(root, false, true, NullUI)
		require.NoError(t, err)
		require.Same(t, withMirrors.Agent(), withoutMirrors.Agent())
		require.NoError(t, withoutMirrors.AddRepository(ctx, location))

		repo := withMirrors.Agent().RepositoryCache().GetArtifactRepository(location)
		_, ok := repo.Property(PropMirrorsURL)
		assert.False(t, ok)
		_, ok = withMirrors.Repositories()[0].Property(PropMirrorsURL)
		assert.True(t, ok)
	})

	t.Run("Loaded repository untouched", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		location := writeTestRepository(t, t.TempDir(), props, testUnit("a", "1.0.0"))
		rc, err := factory.CreateResolutionContext(root, false, true, NullUI)
		require.NoError(t, err)
		require.NoError(t, rc.AddRepository(ctx, location))
		loaded := rc.Agent().RepositoryCache().loadedRepository(location)
		_, ok := loaded.Property(PropMirrorsURL)
		assert.True(t, ok)
	})
}

func Test_CacheManager(t *testing.T) {
	ctx := context.Background()

	t.Run("Unchanged repository is not fetched again", func(t *testing.T) {
		transport := newMemTransport()
		transport.putRepository(t, memRepo, nil, testUnit("a", "1.0.0"))
		factory, root := newTestFactory(t, transport)
		rc, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		m := rc.Agent().CacheManager()

		r1, err := m.Load(ctx, memRepo, false, NullUI)
		require.NoError(t, err)
		r2, err := m.Load(ctx, memRepo, false, NullUI)
		require.NoError(t, err)
		assert.Same(t, r1, r2)
		assert.Equal(t, 1, transport.openCount(memRepo, ContentFileName))
	})

	t.Run("Changed repository is fetched again", func(t *testing.T) {
		transport := newMemTransport()
		transport.putRepository(t, memRepo, nil, testUnit("a", "1.0.0"))
		factory, root := newTestFactory(t, transport)
		rc, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		m := rc.Agent().CacheManager()

		r1, err := m.Load(ctx, memRepo, false, NullUI)
		require.NoError(t, err)
		require.Len(t, r1.Units, 1)

		transport.putRepository(t, memRepo, nil, testUnit("a", "1.0.0"), testUnit("b", "1.0.0"))
		r2, err := m.Load(ctx, memRepo, false, NullUI)
		require.NoError(t, err)
		assert.Len(t, r2.Units, 2)
		assert.Len(t, r1.Units, 1)
		assert.Equal(t, 2, transport.openCount(memRepo, ContentFileName))
	})

	t.Run("Offline uses persisted copy", func(t *testing.T) {
		transport := newMemTransport()
		transport.putRepository(t, memRepo, nil, testUnit("a", "1.0.0"))
		factory, root := newTestFactory(t, transport)

		online, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		require.NoError(t, online.AddRepository(ctx, memRepo))

		transport.remove(memRepo)
		ui := &testUI{}
		offline, err := factory.CreateResolutionContext(root, true, false, ui)
		require.NoError(t, err)
		assert.NotSame(t, online.Agent(), offline.Agent())
		require.NoError(t, offline.AddRepository(ctx, memRepo))
		repos := offline.Repositories()
		require.Len(t, repos, 1)
		require.Len(t, repos[0].Units, 1)
		assert.Equal(t, "a", repos[0].Units[0].ID)
		assert.Empty(t, ui.withPrefix("Info: Loading"))
	})

	t.Run("Offline without copy", func(t *testing.T) {
		transport := newMemTransport()
		transport.putRepository(t, memRepo, nil, testUnit("a", "1.0.0"))
		factory, root := newTestFactory(t, transport)
		rc, err := factory.CreateResolutionContext(root, true, false, NullUI)
		require.NoError(t, err)
		err = rc.AddRepository(ctx, memRepo)
		require.Error(t, err)
		var unreachable *UnreachableError
		require.True(t, errors.As(err, &unreachable))
		assert.True(t, unreachable.Offline)
		assert.Equal(t, 0, transport.openCount(memRepo, ContentFileName))
	})

	t.Run("Offline local repository", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		location := writeTestRepository(t, t.TempDir(), nil, testUnit("a", "1.0.0"))
		rc, err := factory.CreateResolutionContext(root, true, false, NullUI)
		require.NoError(t, err)
		require.NoError(t, rc.AddRepository(ctx, location))
	})

	t.Run("Unreachable", func(t *testing.T) {
		factory, root := newTestFactory(t, newMemTransport())
		rc, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		err = rc.AddRepository(ctx, "mem://nowhere.example.com/repo")
		var unreachable *UnreachableError
		require.True(t, errors.As(err, &unreachable))
		assert.False(t, unreachable.Offline)
		assert.Empty(t, rc.Repositories())
	})

	t.Run("Missing directory", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		rc, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		err = rc.AddRepository(ctx, filepath.Join(t.TempDir(), "missing"))
		var unreachable *UnreachableError
		require.True(t, errors.As(err, &unreachable))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("Concurrent loads", func(t *testing.T) {
		transport := newMemTransport()
		transport.putRepository(t, memRepo, nil, testUnit("a", "1.0.0"))
		factory, root := newTestFactory(t, transport)
		rc, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		m := rc.Agent().CacheManager()

		repos := make([]*Repository, 8)
		wg := sync.WaitGroup{}
		for i := range repos {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r, err := m.Load(ctx, memRepo, false, NullUI)
				assert.NoError(t, err)
				repos[i] = r
			}(i)
		}
		wg.Wait()
		for _, r := range repos {
			assert.Same(t, repos[0], r)
		}
		assert.Equal(t, 1, transport.openCount(memRepo, ContentFileName))
	})

	t.Run("Compressed content", func(t *testing.T) {
		factory, root := newTestFactory(t, nil)
		dir := t.TempDir()
		units := []*InstallableUnit{testUnit("a", "1.0.0")}
		require.NoError(t, WriteRepository(dir, nil, units, nil, true))
		_, err := os.Stat(filepath.Join(dir, CompressedContentFileName))
		require.NoError(t, err)

		rc, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		require.NoError(t, rc.AddRepository(ctx, dir))
		repo := rc.Repositories()[0]
		require.Len(t, repo.Units, 1)
		v, _ := repo.Property(PropCompressed)
		assert.Equal(t, "true", v)
	})

	t.Run("Artifact download", func(t *testing.T) {
		transport := newMemTransport()
		u := testUnit("a", "1.0.0")
		transport.putRepository(t, memRepo, nil, u)
		factory, root := newTestFactory(t, transport)
		rc, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		m := rc.Agent().CacheManager()
		repo, err := m.Load(ctx, memRepo, false, NullUI)
		require.NoError(t, err)

		entry, ok := repo.Artifact(u.Key())
		require.True(t, ok)
		p, err := m.ArtifactFile(ctx, repo, entry)
		require.NoError(t, err)
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "artifact a 1.0.0", string(b))

		_, err = m.ArtifactFile(ctx, repo, entry)
		require.NoError(t, err)
		assert.Equal(t, 1, transport.openCount(memRepo, entry.Path))
	})

	t.Run("Clean", func(t *testing.T) {
		transport := newMemTransport()
		transport.putRepository(t, memRepo, nil, testUnit("a", "1.0.0"))
		factory, root := newTestFactory(t, transport)
		rc, err := factory.CreateResolutionContext(root, false, false, NullUI)
		require.NoError(t, err)
		require.NoError(t, rc.AddRepository(ctx, memRepo))
		m := rc.Agent().CacheManager()
		_, err = os.Stat(m.CacheDir())
		require.NoError(t, err)
		require.NoError(t, m.Clean())
		_, err = os.Stat(m.CacheDir())
		assert.True(t, os.IsNotExist(err))
	})
}
