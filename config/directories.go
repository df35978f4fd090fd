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

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	localRepositorySubDir = "repository"
	// LocalRepositoryEnv overrides the root of the local repository.
	LocalRepositoryEnv = "TPLAT_LOCAL_REPOSITORY"
	// OfflineEnv forces offline mode if set to a true value.
	OfflineEnv = "TPLAT_OFFLINE"
	// UserConfigDirEnv if set, will be the directory the user config will be loaded from.
	UserConfigDirEnv = "TPLAT_USER_CONFIG_DIR"
)

func EnsureDirectory(dir string, err error) (string, error) {
	if err != nil {
		return dir, err
	}
	return dir, os.MkdirAll(dir, 0755)
}

func CachePath() (string, error) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homedir, ".cache", "tplat"), nil
}

// LocalRepositoryPath returns the root of the local repository.
// The environment variable takes precedence over the default location in
// the cache directory.
func LocalRepositoryPath() (string, error) {
	if path, ok := os.LookupEnv(LocalRepositoryEnv); ok && strings.TrimSpace(path) != "" {
		return filepath.Abs(strings.TrimSpace(path))
	}
	cachePath, err := CachePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(cachePath, localRepositorySubDir), nil
}

// Offline returns whether the environment forces offline mode.
func Offline() bool {
	v, ok := os.LookupEnv(OfflineEnv)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
