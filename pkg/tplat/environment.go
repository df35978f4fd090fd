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
	"fmt"
	"runtime"
	"strings"
)

// Filter property names.
const (
	PropOS   = "osgi.os"
	PropWS   = "osgi.ws"
	PropArch = "osgi.arch"
	PropNL   = "osgi.nl"
)

// TargetEnvironment is an (os, ws, arch) triple, optionally with a locale.
type TargetEnvironment struct {
	OS   string `yaml:"os" mapstructure:"os"`
	WS   string `yaml:"ws" mapstructure:"ws"`
	Arch string `yaml:"arch" mapstructure:"arch"`
	NL   string `yaml:"nl,omitempty" mapstructure:"nl"`
}

func (e TargetEnvironment) String() string {
	s := fmt.Sprintf("%s/%s/%s", e.OS, e.WS, e.Arch)
	if e.NL != "" {
		s += "/" + e.NL
	}
	return s
}

// ParseTargetEnvironment parses "os/ws/arch[/nl]".
func ParseTargetEnvironment(str string) (TargetEnvironment, error) {
	parts := strings.Split(str, "/")
	if len(parts) != 3 && len(parts) != 4 {
		return TargetEnvironment{}, fmt.Errorf("invalid environment '%s': expected os/ws/arch", str)
	}
	for _, p := range parts {
		if p == "" {
			return TargetEnvironment{}, fmt.Errorf("invalid environment '%s': empty segment", str)
		}
	}
	env := TargetEnvironment{OS: parts[0], WS: parts[1], Arch: parts[2]}
	if len(parts) == 4 {
		env.NL = parts[3]
	}
	return env, nil
}

// FilterProperties returns the properties environment filters are evaluated
// against.
func (e TargetEnvironment) FilterProperties() map[string]string {
	props := map[string]string{
		PropOS:   e.OS,
		PropWS:   e.WS,
		PropArch: e.Arch,
	}
	if e.NL != "" {
		props[PropNL] = e.NL
	}
	return props
}

// RunningEnvironment returns the environment of the current process.
func RunningEnvironment() TargetEnvironment {
	return environmentFor(runtime.GOOS, runtime.GOARCH)
}

func environmentFor(goos string, goarch string) TargetEnvironment {
	env := TargetEnvironment{OS: goos, WS: goos, Arch: goarch}
	switch goos {
	case "windows":
		env.OS, env.WS = "win32", "win32"
	case "darwin":
		env.OS, env.WS = "macosx", "cocoa"
	case "linux", "freebsd", "openbsd":
		env.WS = "gtk"
	}
	switch goarch {
	case "amd64":
		env.Arch = "x86_64"
	case "386":
		env.Arch = "x86"
	case "arm64":
		env.Arch = "aarch64"
	case "ppc64le":
		env.Arch = "ppc64le"
	}
	return env
}
