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
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/osgi-build/tplat/pkg/osgi"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

type testUI struct {
	mu       sync.Mutex
	messages []string
}

func (ui *testUI) add(msg string) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.messages = append(ui.messages, msg)
}

func (ui *testUI) ReportError(format string, a ...interface{}) error {
	ui.add(fmt.Sprintf("Error: "+format, a...))
	return ErrAlreadyReported
}

func (ui *testUI) ReportWarning(format string, a ...interface{}) {
	ui.add(fmt.Sprintf("Warning: "+format, a...))
}

func (ui *testUI) ReportInfo(format string, a ...interface{}) {
	ui.add(fmt.Sprintf("Info: "+format, a...))
}

// withPrefix returns the messages that start with the given prefix.
func (ui *testUI) withPrefix(prefix string) []string {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	var result []string
	for _, msg := range ui.messages {
		if strings.HasPrefix(msg, prefix) {
			result = append(result, msg)
		}
	}
	return result
}

func testUnit(id string, v string, requires ...Requirement) *InstallableUnit {
	return &InstallableUnit{
		ID:       id,
		Version:  osgi.MustParseVersion(v),
		Type:     UnitBundle,
		Requires: requires,
	}
}

func testReq(id string, r string) Requirement {
	return Requirement{
		ID:    id,
		Range: osgi.MustParseVersionRange(r),
	}
}

func testArtifactEntry(u *InstallableUnit) ArtifactEntry {
	entry := ArtifactEntry{
		Type:    u.Type.ArtifactType(),
		ID:      u.ID,
		Version: u.Version,
		Path:    u.ID + ".jar",
	}
	entry.Path = mirrorPath(entry)
	return entry
}

// writeTestJar writes a jar with the given manifest headers and entries.
func writeTestJar(t *testing.T, path string, headers map[string]string, entries map[string]string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	if headers != nil {
		mf, err := w.Create(osgi.ManifestPath)
		require.NoError(t, err)
		_, err = io.WriteString(mf, "Manifest-Version: 1.0\r\n")
		require.NoError(t, err)
		for k, v := range headers {
			_, err = fmt.Fprintf(mf, "%s: %s\r\n", k, v)
			require.NoError(t, err)
		}
	}
	for name, content := range entries {
		e, err := w.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(e, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func bundleHeaders(u *InstallableUnit) map[string]string {
	return map[string]string{
		osgi.HeaderBundleSymbolicName: u.ID,
		osgi.HeaderBundleVersion:      u.Version.String(),
	}
}

// writeTestRepository writes a repository with the given units into dir.
// Every unit gets an artifact.
// Returns the location of the repository.
func writeTestRepository(t *testing.T, dir string, properties map[string]string, units ...*InstallableUnit) string {
	var artifacts []ArtifactEntry
	for _, u := range units {
		entry := testArtifactEntry(u)
		artifacts = append(artifacts, entry)
		writeTestJar(t, filepath.Join(dir, filepath.FromSlash(entry.Path)), bundleHeaders(u), nil)
	}
	require.NoError(t, WriteRepository(dir, properties, units, artifacts, false))
	location, err := CanonicalLocation(dir)
	require.NoError(t, err)
	return location
}

// memTransport serves repositories from memory. All its locations are
// remote.
type memTransport struct {
	mu    sync.Mutex
	files map[string][]byte
	opens map[string]int
}

func newMemTransport() *memTransport {
	return &memTransport{
		files: map[string][]byte{},
		opens: map[string]int{},
	}
}

func (m *memTransport) put(location string, name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[fileURL(location, name)] = content
}

// putRepository stores the index files and the artifacts of a repository.
func (m *memTransport) putRepository(t *testing.T, location string, properties map[string]string, units ...*InstallableUnit) {
	var artifacts []ArtifactEntry
	for _, u := range units {
		entry := testArtifactEntry(u)
		artifacts = append(artifacts, entry)
		m.put(location, entry.Path, []byte("artifact "+u.String()))
	}
	b, err := yaml.Marshal(artifactsFile{Properties: properties, Artifacts: artifacts})
	require.NoError(t, err)
	m.put(location, ArtifactsFileName, b)
	b, err = yaml.Marshal(contentFile{Units: units})
	require.NoError(t, err)
	m.put(location, ContentFileName, b)
}

func (m *memTransport) remove(location string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.files {
		if strings.HasPrefix(k, location+"/") {
			delete(m.files, k)
		}
	}
}

func (m *memTransport) openCount(location string, name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[fileURL(location, name)]
}

func (m *memTransport) Remote(location string) bool {
	return true
}

func (m *memTransport) Stat(ctx context.Context, location string, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[fileURL(location, name)]
	if !ok {
		return "", fmt.Errorf("%s: %w", fileURL(location, name), os.ErrNotExist)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b)), nil
}

func (m *memTransport) Open(ctx context.Context, location string, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := fileURL(location, name)
	b, ok := m.files[url]
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, os.ErrNotExist)
	}
	m.opens[url]++
	return io.NopCloser(bytes.NewReader(b)), nil
}

// newTestFactory returns a factory on a fresh agent registry, together with
// a local repository root.
// If transport is nil, agents use the default transport.
func newTestFactory(t *testing.T, transport Transport) (*ResolverFactory, string) {
	var options []AgentOption
	if transport != nil {
		options = append(options, WithTransport(func(root string) Transport {
			return transport
		}))
	}
	return NewResolverFactory(NewAgentRegistry(options...)), t.TempDir()
}

func artifactKeys(artifacts []ArtifactDescriptor) []string {
	var result []string
	for _, a := range artifacts {
		result = append(result, a.Key.String())
	}
	return result
}
