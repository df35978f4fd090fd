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

func mustFileSet(t *testing.T, pattern string) *FileSet {
	fs, err := NewFileSet("", pattern)
	require.NoError(t, err)
	return fs
}

func Test_FileSet(t *testing.T) {
	t.Run("Double star", func(t *testing.T) {
		fs := mustFileSet(t, "test/**")
		assert.True(t, fs.Matches("test/me/foo.txt"))
		assert.False(t, fs.Matches("me/foo.txt"))

		fs = mustFileSet(t, "test/**/")
		assert.True(t, fs.Matches("test/me/foo.txt"))
		assert.False(t, fs.Matches("me/foo.txt"))

		fs = mustFileSet(t, "**/FILE")
		assert.True(t, fs.Matches("test/me/FILE"))
		assert.True(t, fs.Matches("FILE"))

		fs = mustFileSet(t, "**/DIR/**")
		assert.True(t, fs.Matches("test/me/DIR/bar/test.txt"))
		assert.True(t, fs.Matches("DIR/test.txt"))
		assert.False(t, fs.Matches("test/me/foobar/test.txt"))
		assert.False(t, fs.Matches("test/me/DIR"))

		fs = mustFileSet(t, "src/**/Main.java")
		assert.True(t, fs.Matches("src/Main.java"))
		assert.True(t, fs.Matches("src/a/b/Main.java"))
		assert.False(t, fs.Matches("test/Main.java"))
	})

	t.Run("Single star", func(t *testing.T) {
		assert.True(t, mustFileSet(t, "*.txt").Matches("foo.txt"))
		assert.False(t, mustFileSet(t, "*.txt").Matches("tmp/foo.txt"))

		fs := mustFileSet(t, "bar*")
		assert.True(t, fs.Matches("barfoo"))
		assert.False(t, fs.Matches("foobar"))

		fs = mustFileSet(t, "bar*foo")
		assert.True(t, fs.Matches("bar_test_foo"))
		assert.False(t, fs.Matches("bar_test_fooX"))
	})

	t.Run("Question mark", func(t *testing.T) {
		fs := mustFileSet(t, "foo?.txt")
		assert.True(t, fs.Matches("fooX.txt"))
		assert.False(t, fs.Matches("fooXY.txt"))
		assert.False(t, fs.Matches("XfooY.txt"))
	})

	t.Run("Combined", func(t *testing.T) {
		fs := mustFileSet(t, "**/*.txt")
		assert.True(t, fs.Matches("tmp/foo.txt"))
		assert.True(t, fs.Matches("foo.txt"))
		assert.False(t, fs.Matches("foo.txt_"))

		assert.True(t, mustFileSet(t, "**/prefix*").Matches("tmp/prefixfoo.txt"))
	})

	t.Run("Literal characters", func(t *testing.T) {
		fs := mustFileSet(t, "lib/{a}[1].jar")
		assert.True(t, fs.Matches("lib/{a}[1].jar"))
		assert.False(t, fs.Matches("lib/a.jar"))
	})

	t.Run("Default excludes", func(t *testing.T) {
		fs := mustFileSet(t, "test/**")
		assert.True(t, fs.Matches("test/me/foo.txt"))
		assert.False(t, fs.Matches("test/CVS/foo.txt"))
		assert.False(t, fs.Matches("test/.git/foo.txt"))
		assert.False(t, fs.Matches("test/.svn/foo.txt"))
		assert.False(t, fs.Matches("test/me/.svn"))

		all, err := NewFileSetWithoutDefaultExcludes("", "test/**")
		require.NoError(t, err)
		assert.True(t, all.Matches("test/.git/foo.txt"))
	})

	t.Run("Scan", func(t *testing.T) {
		dir := t.TempDir()
		files := []string{
			"a.txt",
			"sub/b.txt",
			"sub/deeper/c.txt",
			"sub/deeper/d.txt",
			"sub/ignored.bin",
			".git/e.txt",
			"sub/CVS/f.txt",
		}
		for _, f := range files {
			p := filepath.Join(dir, filepath.FromSlash(f))
			require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
			require.NoError(t, os.WriteFile(p, []byte(f), 0644))
		}
		fs, err := NewFileSet(dir, "**/*.txt")
		require.NoError(t, err)
		result, err := fs.Scan()
		require.NoError(t, err)
		assert.Len(t, result, 4)
		assert.Equal(t, "sub/deeper/c.txt", result[filepath.Join(dir, "sub", "deeper", "c.txt")])
	})
}
