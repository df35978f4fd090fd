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

// Package tplat resolves Eclipse/OSGi target platforms.
//
// Key concepts:
// * Installable unit: the metadata of a module (bundle, feature, product) as
//   published in a repository. Units declare requirements on other units and
//   may carry an environment filter.
// * Repository: a location (directory, http(s) or git) that contains unit
//   metadata and the artifacts (jars) of the units.
// * Agent: a long-lived provisioning context for a (local repository root,
//   offline) pair. It owns the repository cache and the cache manager, so
//   repeated resolutions in one process don't reload repositories.
// * Resolution context: the repositories and reactor modules (modules that are
//   built in the current build) that form the universe of candidates.
// * Resolver: computes, for each target environment, a consistent set of
//   concrete artifacts that satisfies the requirements.
// * Projector: turns resolved artifacts into dependency entries for the host
//   build model.
// * Platform file: the project's 'platform.yaml'. The lock file
//   ('platform.lock') records the result of a resolution.
package tplat
