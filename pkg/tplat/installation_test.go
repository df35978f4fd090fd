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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, p string, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func writeTestBundleDir(t *testing.T, dir string, id string, v string) {
	writeTestFile(t, filepath.Join(dir, "META-INF", "MANIFEST.MF"),
		"Manifest-Version: 1.0\nBundle-SymbolicName: "+id+"\nBundle-Version: "+v+"\n")
}

// writeTestInstallation writes an installation with two dropins and two
// links, one of them pointing to a missing directory.
func writeTestInstallation(t *testing.T, base string) string {
	dir := filepath.Join(base, "eclipse")
	writeTestJar(t, filepath.Join(dir, "plugins", "a_1.0.0.jar"), map[string]string{
		"Bundle-SymbolicName": "a",
		"Bundle-Version":      "1.0.0",
	}, nil)
	writeTestBundleDir(t, filepath.Join(dir, "plugins", "b_2.0.0"), "b", "2.0.0")
	writeTestFile(t, filepath.Join(dir, "plugins", "readme.txt"), "not a plugin")

	writeTestJar(t, filepath.Join(dir, "dropins", "zest", "plugins", "c_1.0.0.jar"), map[string]string{
		"Bundle-SymbolicName": "c",
		"Bundle-Version":      "1.0.0",
	}, nil)
	writeTestJar(t, filepath.Join(dir, "dropins", "other", "eclipse", "plugins", "a_1.0.0.jar"), map[string]string{
		"Bundle-SymbolicName": "a",
		"Bundle-Version":      "1.0.0",
	}, nil)
	writeTestFile(t, filepath.Join(dir, "dropins", "loose.jar"), "")

	writeTestJar(t, filepath.Join(base, "ext", "plugins", "plain.jar"), map[string]string{}, nil)
	writeTestFile(t, filepath.Join(dir, "links", "ext.link"), "# extension\npath=../ext\n")
	writeTestFile(t, filepath.Join(dir, "links", "missing.link"), "path=../missing\n")
	writeTestFile(t, filepath.Join(dir, "links", "notes.txt"), "path=../ext\n")
	return dir
}

func Test_Installation(t *testing.T) {
	t.Run("Sites", func(t *testing.T) {
		base := t.TempDir()
		dir := writeTestInstallation(t, base)
		sites, err := InstallationSites(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{
			dir,
			filepath.Join(dir, "dropins", "other", "eclipse"),
			filepath.Join(dir, "dropins", "zest"),
			filepath.Join(base, "ext"),
		}, sites)
	})

	t.Run("Absolute link", func(t *testing.T) {
		base := t.TempDir()
		dir := filepath.Join(base, "eclipse")
		ext := filepath.Join(base, "ext")
		require.NoError(t, os.MkdirAll(filepath.Join(ext, eclipseSubDir), 0755))
		writeTestFile(t, filepath.Join(dir, "links", "ext.link"), "path="+filepath.ToSlash(ext)+"\n")
		sites, err := InstallationSites(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{dir, filepath.Join(ext, eclipseSubDir)}, sites)
	})

	t.Run("Plugins", func(t *testing.T) {
		base := t.TempDir()
		dir := writeTestInstallation(t, base)
		plugins, err := InstallationPlugins(dir)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			filepath.Join(dir, "plugins", "a_1.0.0.jar"),
			filepath.Join(dir, "plugins", "b_2.0.0"),
			filepath.Join(dir, "dropins", "other", "eclipse", "plugins", "a_1.0.0.jar"),
			filepath.Join(dir, "dropins", "zest", "plugins", "c_1.0.0.jar"),
			filepath.Join(base, "ext", "plugins", "plain.jar"),
		}, plugins)
	})

	t.Run("Empty", func(t *testing.T) {
		dir := t.TempDir()
		sites, err := InstallationSites(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{dir}, sites)
		plugins, err := InstallationPlugins(dir)
		require.NoError(t, err)
		assert.Empty(t, plugins)
	})
}
