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

package osgi

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = "Manifest-Version: 1.0\r\n" +
	"Bundle-SymbolicName: org.example.core;singleton:=true\r\n" +
	"Bundle-Version: 1.0.0.qualifier\r\n" +
	"Bundle-ClassPath: .,\r\n" +
	" lib/extra.jar;x=y,\r\n" +
	"  lib/other.jar\r\n" +
	"\r\n" +
	"Name: some/Class.class\r\n" +
	"SHA-256-Digest: abc\r\n"

func Test_ParseManifest(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(testManifest))
	require.NoError(t, err)
	assert.Equal(t, "org.example.core", m.SymbolicName())
	v, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0.qualifier", v.String())
	assert.Equal(t, []string{".", "lib/extra.jar", "lib/other.jar"}, m.BundleClassPath())
	_, hasDigest := m["SHA-256-Digest"]
	assert.False(t, hasDigest)

	t.Run("Default class path", func(t *testing.T) {
		assert.Equal(t, []string{"."}, Manifest{}.BundleClassPath())
		assert.Equal(t, []string{"."}, ParseClassPath(" , "))
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ParseManifest(strings.NewReader(" continuation\n"))
		assert.Error(t, err)
		_, err = ParseManifest(strings.NewReader("no colon\n"))
		assert.Error(t, err)
	})
}

func Test_ReadManifest(t *testing.T) {
	dir := t.TempDir()

	t.Run("Jar", func(t *testing.T) {
		jarPath := filepath.Join(dir, "bundle.jar")
		f, err := os.Create(jarPath)
		require.NoError(t, err)
		zw := zip.NewWriter(f)
		w, err := zw.Create(ManifestPath)
		require.NoError(t, err)
		_, err = w.Write([]byte(testManifest))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())

		m, err := ReadManifest(jarPath)
		require.NoError(t, err)
		assert.Equal(t, "org.example.core", m.SymbolicName())
	})

	t.Run("Directory", func(t *testing.T) {
		bundleDir := filepath.Join(dir, "bundle")
		require.NoError(t, os.MkdirAll(filepath.Join(bundleDir, "META-INF"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "META-INF", "MANIFEST.MF"), []byte(testManifest), 0644))
		m, err := ReadManifest(bundleDir)
		require.NoError(t, err)
		assert.Len(t, m.BundleClassPath(), 3)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := ReadManifest(filepath.Join(dir, "missing"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
