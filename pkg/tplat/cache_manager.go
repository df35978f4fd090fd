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
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const diskCacheFileName = "repository.yaml"

// CacheManager loads repositories through the transport and keeps them in
// the repository cache and on disk.
//
// Online, a cached repository is reused as long as the transport reports the
// same freshness stamp. Offline, remote repositories are only served from
// memory or disk; a missing copy is an error and nothing is retried.
type CacheManager struct {
	root      string
	offline   bool
	transport Transport
	cache     *RepositoryCache
}

func NewCacheManager(root string, offline bool, transport Transport, cache *RepositoryCache) *CacheManager {
	return &CacheManager{
		root:      root,
		offline:   offline,
		transport: transport,
		cache:     cache,
	}
}

// CacheDir returns the directory where repositories are persisted.
func (m *CacheManager) CacheDir() string {
	return filepath.Join(m.root, filepath.FromSlash(CacheSubDir))
}

func (m *CacheManager) Offline() bool {
	return m.offline
}

func (m *CacheManager) repositoryCacheDir(key string) string {
	return filepath.Join(m.CacheDir(), "repositories", locationToRelPath(key))
}

// Load returns the repository at the given location.
//
// If disableMirrors is set, the returned repository (and the entry of the
// repository cache) has no mirrors property. The policy is applied to every
// load, so an entry that was cached under a different policy is normalized
// again.
func (m *CacheManager) Load(ctx context.Context, location string, disableMirrors bool, ui UI) (*Repository, error) {
	key, err := CanonicalLocation(location)
	if err != nil {
		return nil, &UnreachableError{Location: location, Err: err}
	}
	repo, err := m.cache.loadOnce(key, func() (*Repository, error) {
		return m.load(ctx, key, ui)
	})
	if err != nil {
		return nil, err
	}
	view := repo.withMirrorPolicy(disableMirrors)
	if view != repo {
		ui.ReportInfo("Ignoring mirrors of repository '%s'", key)
	}
	m.cache.putView(key, view)
	return view, nil
}

func (m *CacheManager) load(ctx context.Context, key string, ui UI) (*Repository, error) {
	cached := m.cache.loadedRepository(key)
	remote := m.transport.Remote(key)

	if m.offline && remote {
		if cached != nil {
			return cached, nil
		}
		disk, err := m.readDisk(key)
		if err != nil {
			return nil, &UnreachableError{Location: key, Offline: true, Err: err}
		}
		m.cache.putLoaded(key, disk)
		return disk, nil
	}

	stamp, err := m.stamp(ctx, key)
	if err != nil {
		return nil, &UnreachableError{Location: key, Err: err}
	}
	if cached != nil && stamp != "" && cached.Stamp == stamp {
		return cached, nil
	}
	if remote && stamp != "" {
		if disk, err := m.readDisk(key); err == nil && disk.Stamp == stamp {
			m.cache.putLoaded(key, disk)
			return disk, nil
		}
	}

	ui.ReportInfo("Loading repository '%s'", key)
	repo, err := fetchRepository(ctx, m.transport, key)
	if err != nil {
		return nil, err
	}
	repo.Stamp = stamp
	if remote {
		if err := m.writeDisk(ctx, repo); err != nil {
			ui.ReportWarning("Unable to cache repository '%s': %v", key, err)
		}
	}
	m.cache.putLoaded(key, repo)
	return repo, nil
}

// stamp combines the stamps of the index files of the repository.
// Returns "" if any of them is unknown.
func (m *CacheManager) stamp(ctx context.Context, key string) (string, error) {
	artifactsStamp, err := m.transport.Stat(ctx, key, ArtifactsFileName)
	if err != nil {
		return "", err
	}
	contentStamp, err := m.transport.Stat(ctx, key, CompressedContentFileName)
	if errors.Is(err, os.ErrNotExist) {
		contentStamp, err = m.transport.Stat(ctx, key, ContentFileName)
	}
	if err != nil {
		return "", err
	}
	if artifactsStamp == "" || contentStamp == "" {
		return "", nil
	}
	return artifactsStamp + "|" + contentStamp, nil
}

func (m *CacheManager) readDisk(key string) (*Repository, error) {
	b, err := os.ReadFile(filepath.Join(m.repositoryCacheDir(key), diskCacheFileName))
	if err != nil {
		return nil, err
	}
	var repo Repository
	if err := yaml.Unmarshal(b, &repo); err != nil {
		return nil, err
	}
	if repo.Location != key {
		return nil, fmt.Errorf("cached repository at '%s' is for '%s'", key, repo.Location)
	}
	if err := repo.finish(); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (m *CacheManager) writeDisk(ctx context.Context, repo *Repository) error {
	dir := m.repositoryCacheDir(repo.Location)
	b, err := yaml.Marshal(repo)
	if err != nil {
		return err
	}
	return withFileLock(ctx, filepath.Join(filepath.Dir(dir), syncLockName), func() error {
		return writeFileIfChanged(filepath.Join(dir, diskCacheFileName), b)
	})
}

// ArtifactFile returns a local file for the given artifact of the
// repository. Remote artifacts are downloaded into the cache first.
func (m *CacheManager) ArtifactFile(ctx context.Context, repo *Repository, entry ArtifactEntry) (string, error) {
	if lt, ok := m.transport.(localTransport); ok {
		if p, ok := lt.LocalPath(repo.Location, entry.Path); ok {
			return p, nil
		}
	}
	target := filepath.Join(m.repositoryCacheDir(repo.Location), "artifacts", filepath.FromSlash(entry.Path))
	if ok, err := isFile(target); err != nil {
		return "", err
	} else if ok {
		return target, nil
	}
	if m.offline {
		return "", &UnreachableError{Location: fileURL(repo.Location, entry.Path), Offline: true}
	}
	rc, err := m.transport.Open(ctx, repo.Location, entry.Path)
	if err != nil {
		return "", &UnreachableError{Location: fileURL(repo.Location, entry.Path), Err: err}
	}
	defer rc.Close()
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return "", err
	}
	_, err = io.Copy(tmp, rc)
	if e := tmp.Close(); err == nil {
		err = e
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", &UnreachableError{Location: fileURL(repo.Location, entry.Path), Err: err}
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return target, nil
}

// OpenArtifact opens the file of the given artifact.
func (m *CacheManager) OpenArtifact(ctx context.Context, repo *Repository, entry ArtifactEntry) (io.ReadCloser, error) {
	p, err := m.ArtifactFile(ctx, repo, entry)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Clean removes all persisted repositories and extracted files.
func (m *CacheManager) Clean() error {
	return os.RemoveAll(m.CacheDir())
}
