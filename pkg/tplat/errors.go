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
	"strings"
)

// UnreachableError is returned when a repository can't be loaded.
// Loads are not retried.
type UnreachableError struct {
	Location string
	// Offline is set if the repository was needed in offline mode, but no
	// cached copy was available.
	Offline bool
	Err     error
}

func (e *UnreachableError) Error() string {
	if e.Offline {
		return fmt.Sprintf("repository '%s' is not available offline", e.Location)
	}
	return fmt.Sprintf("repository '%s' is unreachable: %v", e.Location, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// UnsatisfiedError is returned when no candidate satisfies a requirement.
type UnsatisfiedError struct {
	ID string
	// Range is the requested version range, or the exact version for
	// explicitly named units.
	Range       string
	Environment *TargetEnvironment
	// RequiredBy names the unit that declared the requirement. Empty for
	// root requirements.
	RequiredBy string
}

func (e *UnsatisfiedError) Error() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("missing requirement '%s'", e.ID))
	if e.Range != "" {
		sb.WriteString(fmt.Sprintf(" %s", e.Range))
	}
	if e.RequiredBy != "" {
		sb.WriteString(fmt.Sprintf(" required by '%s'", e.RequiredBy))
	}
	if e.Environment != nil {
		sb.WriteString(fmt.Sprintf(" for environment %s", e.Environment))
	}
	return sb.String()
}

// ConflictError is returned when two different versions of the same unit
// are required and conflicts are not allowed.
type ConflictError struct {
	ID          string
	Versions    [2]string
	Environment *TargetEnvironment
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("conflicting versions of '%s': %s and %s", e.ID, e.Versions[0], e.Versions[1])
	if e.Environment != nil {
		msg += fmt.Sprintf(" for environment %s", e.Environment)
	}
	return msg
}

// AgentInitError is returned when the provisioning agent for a local
// repository root can't be created. Nothing can be resolved without it.
type AgentInitError struct {
	Root string
	Err  error
}

func (e *AgentInitError) Error() string {
	return fmt.Sprintf("unable to create provisioning agent for '%s': %v", e.Root, e.Err)
}

func (e *AgentInitError) Unwrap() error {
	return e.Err
}
