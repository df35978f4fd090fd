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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexflint/go-filemutex"
)

const syncLockName = ".tplat_sync.lock"

// withFileLock runs f while holding the file lock at lockPath.
// The lock is shared between processes, so two builds don't write the same
// cache entry at the same time.
func withFileLock(ctx context.Context, lockPath string, f func() error) error {
	err := os.MkdirAll(filepath.Dir(lockPath), 0755)
	if err != nil {
		return err
	}
	m, err := filemutex.New(lockPath)
	if err != nil {
		return err
	}

	unlocked := make(chan struct{})
	ctx, cancel := context.WithTimeout(ctx, time.Minute*3)
	defer cancel()

	// If the context is done after the lock was acquired but before the
	// channel is closed, the goroutine releases the lock again.
	go func() {
		m.Lock()
		select {
		case <-ctx.Done():
			m.Unlock()
		default:
			close(unlocked)
		}
	}()
	select {
	case <-unlocked:
		defer m.Unlock()
	case <-ctx.Done():
		return fmt.Errorf("unable to acquire sync lock %s", lockPath)
	}

	return f()
}
