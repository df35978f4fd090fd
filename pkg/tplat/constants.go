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

const (
	DefaultPlatformFileName = "platform.yaml"
	DefaultLockFileName     = "platform.lock"

	// CacheSubDir is the directory, relative to the local repository root,
	// where loaded repositories are persisted.
	CacheSubDir = ".cache/tplat"

	// NestedSubDir is the directory, relative to the cache dir, where nested
	// class path entries of bundles are extracted to.
	NestedSubDir = "nested"

	// Files of a repository.
	ContentFileName           = "content.yaml"
	CompressedContentFileName = "content.yaml.gz"
	ArtifactsFileName         = "artifacts.yaml"

	// PropMirrorsURL is the repository property that advertises a mirror list.
	PropMirrorsURL = "p2.mirrorsURL"
	// PropCompressed marks repositories with compressed content.
	PropCompressed = "p2.compressed"
	// PropName is the display name of a repository.
	PropName = "name"
)
