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

	"github.com/osgi-build/tplat/pkg/osgi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func externalPlugin(t *testing.T, dir string, classPath string, entries map[string]string) ArtifactDescriptor {
	location := filepath.Join(dir, "lib_1.0.0.jar")
	headers := map[string]string{
		osgi.HeaderBundleSymbolicName: "lib",
		osgi.HeaderBundleVersion:      "1.0.0",
	}
	if classPath != "" {
		headers[osgi.HeaderBundleClassPath] = classPath
	}
	writeTestJar(t, location, headers, entries)
	return ArtifactDescriptor{
		Key:      ArtifactKey{Type: TypeEclipsePlugin, ID: "lib", Version: "1.0.0"},
		Location: location,
	}
}

func Test_DependencyProjector(t *testing.T) {
	t.Run("Nested class path", func(t *testing.T) {
		ui := &testUI{}
		nestedDir := t.TempDir()
		artifact := externalPlugin(t, t.TempDir(), ".,lib/extra.jar", map[string]string{
			"lib/extra.jar": "nested",
		})
		deps := NewDependencyProjector(nestedDir, ui).Project(nil, []ArtifactDescriptor{artifact})
		require.Len(t, deps, 2)
		assert.Equal(t, Dependency{
			GroupID:    "p2.eclipse-plugin",
			ArtifactID: "lib",
			Version:    "1.0.0",
			Type:       "jar",
			Scope:      ScopeSystem,
			SystemPath: artifact.Location,
		}, deps[0])
		assert.Equal(t, "lib/extra.jar", deps[1].Classifier)
		assert.Equal(t, ScopeSystem, deps[1].Scope)
		b, err := os.ReadFile(deps[1].SystemPath)
		require.NoError(t, err)
		assert.Equal(t, "nested", string(b))
		assert.Empty(t, ui.messages)
	})

	t.Run("Missing nested entry", func(t *testing.T) {
		ui := &testUI{}
		artifact := externalPlugin(t, t.TempDir(), ".,lib/extra.jar", nil)
		deps := NewDependencyProjector(t.TempDir(), ui).Project(nil, []ArtifactDescriptor{artifact})
		require.Len(t, deps, 1)
		assert.Equal(t, artifact.Location, deps[0].SystemPath)
		assert.Len(t, ui.withPrefix("Warning: Class path entry 'lib/extra.jar'"), 1)
	})

	t.Run("Nested entry outside extraction directory", func(t *testing.T) {
		ui := &testUI{}
		base := t.TempDir()
		nestedDir := filepath.Join(base, "nested")
		artifact := externalPlugin(t, filepath.Join(base, "repo"), ".,../../../escaped.jar", map[string]string{
			"../../../escaped.jar": "escaped",
		})
		deps := NewDependencyProjector(nestedDir, ui).Project(nil, []ArtifactDescriptor{artifact})
		require.Len(t, deps, 1)
		assert.Equal(t, artifact.Location, deps[0].SystemPath)
		assert.Len(t, ui.withPrefix("Warning: Class path entry '../../../escaped.jar'"), 1)
		assert.NoFileExists(t, filepath.Join(base, "escaped.jar"))
		assert.NoFileExists(t, filepath.Join(filepath.Dir(base), "escaped.jar"))
	})

	t.Run("Nested directory", func(t *testing.T) {
		ui := &testUI{}
		artifact := externalPlugin(t, t.TempDir(), "classes/", map[string]string{
			"classes/A.class": "a",
		})
		deps := NewDependencyProjector(t.TempDir(), ui).Project(nil, []ArtifactDescriptor{artifact})
		assert.Empty(t, deps)
		assert.Len(t, ui.withPrefix("Warning:"), 1)
	})

	t.Run("No class path", func(t *testing.T) {
		ui := &testUI{}
		artifact := externalPlugin(t, t.TempDir(), "", nil)
		deps := NewDependencyProjector(t.TempDir(), ui).Project(nil, []ArtifactDescriptor{artifact})
		require.Len(t, deps, 1)
		assert.Equal(t, "", deps[0].Classifier)
	})

	t.Run("Unreadable location", func(t *testing.T) {
		ui := &testUI{}
		artifact := ArtifactDescriptor{
			Key:      ArtifactKey{Type: TypeEclipsePlugin, ID: "lib", Version: "1.0.0"},
			Location: filepath.Join(t.TempDir(), "missing.jar"),
		}
		deps := NewDependencyProjector(t.TempDir(), ui).Project(nil, []ArtifactDescriptor{artifact})
		assert.Empty(t, deps)
		assert.Len(t, ui.withPrefix("Warning: Dependency 'eclipse-plugin:lib:1.0.0'"), 1)
	})

	t.Run("Feature", func(t *testing.T) {
		ui := &testUI{}
		location := filepath.Join(t.TempDir(), "f_1.0.0.jar")
		writeTestJar(t, location, nil, map[string]string{"feature.xml": "<feature/>"})
		artifact := ArtifactDescriptor{
			Key:      ArtifactKey{Type: TypeEclipseFeature, ID: "f", Version: "1.0.0"},
			Location: location,
		}
		deps := NewDependencyProjector(t.TempDir(), ui).Project(nil, []ArtifactDescriptor{artifact})
		require.Len(t, deps, 1)
		assert.Equal(t, "p2.eclipse-feature", deps[0].GroupID)
		assert.Equal(t, location, deps[0].SystemPath)
	})

	t.Run("Reactor", func(t *testing.T) {
		ui := &testUI{}
		baseDir := t.TempDir()
		mf := "Manifest-Version: 1.0\nBundle-SymbolicName: mod\nBundle-Version: 1.0.0\nBundle-ClassPath: .,lib/a.jar,lib/b.jar\n"
		require.NoError(t, os.MkdirAll(filepath.Join(baseDir, "META-INF"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(baseDir, filepath.FromSlash(osgi.ManifestPath)), []byte(mf), 0644))
		require.NoError(t, os.MkdirAll(filepath.Join(baseDir, "lib"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(baseDir, "lib", "a.jar"), []byte("a"), 0644))

		self := &ReactorProject{ArtifactID: "self", BaseDir: t.TempDir()}
		mod := &ReactorProject{
			GroupID:    "org.example",
			ArtifactID: "mod",
			Version:    "1.0.0-SNAPSHOT",
			Packaging:  TypeEclipsePlugin,
			BaseDir:    baseDir,
		}
		artifacts := []ArtifactDescriptor{
			{Key: ArtifactKey{Type: TypeEclipsePlugin, ID: "self", Version: "1.0.0"}, Location: self.BaseDir, Project: self},
			{Key: ArtifactKey{Type: TypeEclipsePlugin, ID: "mod", Version: "1.0.0"}, Location: baseDir, Project: mod},
		}
		deps := NewDependencyProjector(t.TempDir(), ui).Project(self, artifacts)
		require.Len(t, deps, 2)
		assert.Equal(t, Dependency{
			GroupID:    "org.example",
			ArtifactID: "mod",
			Version:    "1.0.0-SNAPSHOT",
			Type:       TypeEclipsePlugin,
			Scope:      ScopeProvided,
		}, deps[0])
		assert.Equal(t, filepath.Join(baseDir, "lib", "a.jar"), deps[1].SystemPath)
		assert.Equal(t, "lib/a.jar", deps[1].Classifier)
		assert.Equal(t, "org.example", deps[1].GroupID)
		assert.Equal(t, ScopeSystem, deps[1].Scope)
		assert.Len(t, ui.withPrefix("Warning: Missing class path entry 'lib/b.jar'"), 1)
		assert.Len(t, FilterInjectedDependencies(deps), 2)
	})
}

func Test_FilterInjectedDependencies(t *testing.T) {
	deps := []Dependency{
		{GroupID: "org.example", ArtifactID: "a", Scope: ScopeProvided},
		{GroupID: "p2.eclipse-plugin", ArtifactID: "b", Scope: ScopeSystem},
		{GroupID: "org.example", ArtifactID: "c", Scope: ScopeSystem},
		{GroupID: "p2.eclipse-plugin", ArtifactID: "d", Scope: ScopeProvided},
	}
	filtered := FilterInjectedDependencies(deps)
	var ids []string
	for _, dep := range filtered {
		ids = append(ids, dep.ArtifactID)
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids)
}
