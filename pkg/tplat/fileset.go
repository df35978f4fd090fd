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
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExcludes are path segments that are never part of a file set.
var DefaultExcludes = []string{"CVS", ".git", ".svn"}

// FileSet selects files below a base directory with an ant-style pattern:
//   - '**' matches any number of path segments.
//   - '*' matches any characters inside one segment.
//   - '?' matches one character inside one segment.
//   - A trailing '/' is the same as a trailing '/**'.
//
// Paths with a segment from DefaultExcludes never match.
type FileSet struct {
	baseDir  string
	pattern  string
	globs    []glob.Glob
	excludes bool
}

// escapeGlob escapes the characters that gobwas/glob treats specially, but
// that are literal in file set patterns.
func escapeGlob(pattern string) string {
	sb := strings.Builder{}
	for _, c := range pattern {
		switch c {
		case '{', '}', '[', ']', '\\', '!':
			sb.WriteRune('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// NewFileSet creates a file set with default excludes.
func NewFileSet(baseDir string, pattern string) (*FileSet, error) {
	return newFileSet(baseDir, pattern, true)
}

// NewFileSetWithoutDefaultExcludes creates a file set that doesn't apply
// the default excludes.
func NewFileSetWithoutDefaultExcludes(baseDir string, pattern string) (*FileSet, error) {
	return newFileSet(baseDir, pattern, false)
}

func newFileSet(baseDir string, pattern string, useDefaultExcludes bool) (*FileSet, error) {
	p := filepath.ToSlash(pattern)
	if strings.HasSuffix(p, "/") {
		p += "**"
	}
	for strings.Contains(p, "**/**") {
		p = strings.ReplaceAll(p, "**/**", "**")
	}
	variants := patternVariants(p)
	fs := &FileSet{
		baseDir:  baseDir,
		pattern:  pattern,
		excludes: useDefaultExcludes,
	}
	for _, v := range variants {
		g, err := glob.Compile(escapeGlob(v), '/')
		if err != nil {
			return nil, err
		}
		fs.globs = append(fs.globs, g)
	}
	return fs, nil
}

// patternVariants returns the glob patterns for p. A '**/' also matches
// zero segments, which the glob library doesn't support directly.
func patternVariants(p string) []string {
	if strings.HasPrefix(p, "**/") {
		rest := patternVariants(p[len("**/"):])
		result := append([]string{}, rest...)
		for _, r := range rest {
			result = append(result, "**/"+r)
		}
		return result
	}
	i := strings.Index(p, "/**/")
	if i < 0 {
		return []string{p}
	}
	var result []string
	for _, r := range patternVariants(p[i+len("/**/"):]) {
		result = append(result, p[:i]+"/**/"+r, p[:i]+"/"+r)
	}
	return result
}

func (fs *FileSet) String() string {
	return fs.pattern
}

func isDefaultExcluded(p string) bool {
	for _, segment := range strings.Split(p, "/") {
		for _, exclude := range DefaultExcludes {
			if segment == exclude {
				return true
			}
		}
	}
	return false
}

// Matches returns whether the relative path is part of the set.
func (fs *FileSet) Matches(p string) bool {
	p = filepath.ToSlash(p)
	if fs.excludes && isDefaultExcluded(p) {
		return false
	}
	for _, g := range fs.globs {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// Scan walks the base directory and returns the matching files, as a map
// from absolute path to the path relative to the base directory.
func (fs *FileSet) Scan() (map[string]string, error) {
	result := map[string]string{}
	err := filepath.Walk(fs.baseDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(fs.baseDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			if fs.excludes && isDefaultExcluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if fs.Matches(rel) {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			result[abs] = rel
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
