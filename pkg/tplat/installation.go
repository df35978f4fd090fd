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

	"github.com/spf13/viper"
)

// Layout of an Eclipse installation.
const (
	installationPlugins = "plugins"
	installationDropins = "dropins"
	installationLinks   = "links"
	linkFileExtension   = ".link"
	linkPathKey         = "path"
	eclipseSubDir       = "eclipse"
)

// InstallationSites returns the directories of an Eclipse installation
// that may contain a plugins directory.
// The first site is the installation itself, followed by the directories
// in 'dropins' and the locations referenced by '.link' files in 'links'.
// Relative link paths are resolved against the installation directory.
func InstallationSites(dir string) ([]string, error) {
	sites := []string{dir}

	dropins, err := readDirIfExists(filepath.Join(dir, installationDropins))
	if err != nil {
		return nil, err
	}
	for _, entry := range dropins {
		p := filepath.Join(dir, installationDropins, entry.Name())
		if ok, _ := isDirectory(p); ok {
			sites = append(sites, siteDir(p))
		}
	}

	links, err := readDirIfExists(filepath.Join(dir, installationLinks))
	if err != nil {
		return nil, err
	}
	for _, entry := range links {
		if entry.IsDir() || filepath.Ext(entry.Name()) != linkFileExtension {
			continue
		}
		p, err := readLinkFile(filepath.Join(dir, installationLinks, entry.Name()))
		if err != nil {
			return nil, err
		}
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if ok, _ := isDirectory(p); ok {
			sites = append(sites, siteDir(p))
		}
	}
	return sites, nil
}

// InstallationPlugins returns the bundle locations of all sites of the
// installation: jar files and unpacked bundle directories in 'plugins'.
func InstallationPlugins(dir string) ([]string, error) {
	sites, err := InstallationSites(dir)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, site := range sites {
		entries, err := readDirIfExists(filepath.Join(site, installationPlugins))
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			p := filepath.Join(site, installationPlugins, entry.Name())
			if entry.IsDir() {
				result = append(result, p)
				continue
			}
			if strings.HasSuffix(entry.Name(), ".jar") {
				result = append(result, p)
			}
		}
	}
	return result, nil
}

// siteDir returns the 'eclipse' sub-directory of p if there is one.
func siteDir(p string) string {
	nested := filepath.Join(p, eclipseSubDir)
	if ok, _ := isDirectory(nested); ok {
		return nested
	}
	return p
}

func readDirIfExists(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return entries, err
}

// readLinkFile returns the value of the 'path' property of a link file.
// Link files are Java properties files.
func readLinkFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	v := viper.New()
	v.SetConfigType("properties")
	if err := v.ReadConfig(f); err != nil {
		return "", err
	}
	return filepath.FromSlash(strings.TrimSpace(v.GetString(linkPathKey))), nil
}
