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

package commands

import (
	"errors"

	"github.com/osgi-build/tplat/pkg/tplat"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Status converts the given error into a status.
// Resolution errors get a dedicated code. Other errors keep the code of
// their status, or codes.Unknown.
func Status(err error) *status.Status {
	var unreachable *tplat.UnreachableError
	var unsatisfied *tplat.UnsatisfiedError
	var conflict *tplat.ConflictError
	var agentInit *tplat.AgentInitError
	switch {
	case errors.As(err, &unreachable):
		return status.New(codes.Unavailable, unreachable.Error())
	case errors.As(err, &unsatisfied):
		return status.New(codes.NotFound, unsatisfied.Error())
	case errors.As(err, &conflict):
		return status.New(codes.FailedPrecondition, conflict.Error())
	case errors.As(err, &agentInit):
		return status.New(codes.Internal, agentInit.Error())
	}
	return status.Convert(err)
}

func ErrorMessage(err error) string {
	return Status(err).Message()
}

// IsResolutionError returns whether the error is one of the typed errors
// of a resolution.
func IsResolutionError(err error) bool {
	switch Status(err).Code() {
	case codes.Unavailable, codes.NotFound, codes.FailedPrecondition, codes.Internal:
		return true
	}
	return false
}

// ExitCode returns the exit code of the process for the given error.
func ExitCode(err error) int {
	switch Status(err).Code() {
	case codes.OK:
		return 0
	case codes.Unavailable:
		return 3
	case codes.NotFound, codes.FailedPrecondition:
		return 2
	}
	return 1
}
