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
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	ManifestPath = "META-INF/MANIFEST.MF"

	HeaderBundleClassPath    = "Bundle-ClassPath"
	HeaderBundleSymbolicName = "Bundle-SymbolicName"
	HeaderBundleVersion      = "Bundle-Version"
	HeaderFragmentHost       = "Fragment-Host"
)

// Manifest contains the main-section headers of a jar manifest.
type Manifest map[string]string

// ParseManifest reads the main section of a manifest.
// Lines starting with a single space continue the previous header.
func ParseManifest(r io.Reader) (Manifest, error) {
	result := Manifest{}
	scanner := bufio.NewScanner(r)
	lastKey := ""
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if len(result) != 0 {
				// End of the main section.
				break
			}
			continue
		}
		if strings.HasPrefix(line, " ") {
			if lastKey == "" {
				return nil, fmt.Errorf("invalid manifest: continuation line without header")
			}
			result[lastKey] += line[1:]
			continue
		}
		colon := strings.Index(line, ":")
		if colon <= 0 {
			return nil, fmt.Errorf("invalid manifest line '%s'", line)
		}
		lastKey = line[:colon]
		result[lastKey] = strings.TrimPrefix(line[colon+1:], " ")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReadManifest reads the manifest of a bundle.
// The location may be a jar file or an unpacked bundle directory.
// Returns an error wrapping os.ErrNotExist if the bundle has no manifest.
func ReadManifest(location string) (Manifest, error) {
	info, err := os.Stat(location)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		f, err := os.Open(filepath.Join(location, filepath.FromSlash(ManifestPath)))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ParseManifest(f)
	}

	zr, err := zip.OpenReader(location)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	f, err := zr.Open(ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	defer f.Close()
	return ParseManifest(f)
}

// SymbolicName returns the bundle's symbolic name without directives.
func (m Manifest) SymbolicName() string {
	return stripParameters(m[HeaderBundleSymbolicName])
}

func (m Manifest) Version() (Version, error) {
	return ParseVersion(m[HeaderBundleVersion])
}

// BundleClassPath returns the entries of the Bundle-ClassPath header.
// A missing or empty header is equivalent to ".".
func (m Manifest) BundleClassPath() []string {
	return ParseClassPath(m[HeaderBundleClassPath])
}

// ParseClassPath splits a Bundle-ClassPath value into its entries.
// Parameters (after ';') are dropped.
func ParseClassPath(value string) []string {
	var result []string
	for _, entry := range strings.Split(value, ",") {
		entry = stripParameters(entry)
		if entry == "" {
			continue
		}
		result = append(result, entry)
	}
	if len(result) == 0 {
		return []string{"."}
	}
	return result
}

func stripParameters(clause string) string {
	if i := strings.Index(clause, ";"); i >= 0 {
		clause = clause[:i]
	}
	return strings.Trim(strings.TrimSpace(clause), `"`)
}
