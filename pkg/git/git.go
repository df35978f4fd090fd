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

// Package git fetches repositories that are hosted in git.
package git

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

type CloneOptions struct {
	URL string
	// Branch to check out. If empty, the remote HEAD is used.
	Branch  string
	Depth   int
	SSHPath string
}

// NormalizeURL adds the 'https' scheme to URLs without scheme.
// Absolute paths are kept as is.
func NormalizeURL(u string) string {
	if filepath.IsAbs(u) || strings.Contains(u, "://") {
		return u
	}
	return "https://" + u
}

func convertURLToSSH(str string) (string, error) {
	u, err := url.Parse(str)
	if err != nil {
		return "", err
	}
	return "ssh://git@" + u.Host + ":" + u.Path + ".git", nil
}

func sshAuth(sshPath string) (transport.AuthMethod, error) {
	if sshPath == "" {
		return nil, nil
	}
	return ssh.NewPublicKeysFromFile("git", sshPath, "")
}

// Clone clones the repository with the given [options] into [dir].
// Returns the checked out hash.
func Clone(ctx context.Context, dir string, options CloneOptions) (string, error) {
	u := NormalizeURL(options.URL)
	gogitOptions := &gogit.CloneOptions{
		URL:          u,
		SingleBranch: options.Branch != "",
		Depth:        options.Depth,
	}
	if options.Branch != "" {
		gogitOptions.ReferenceName = plumbing.NewBranchReferenceName(options.Branch)
	}

	if options.SSHPath != "" {
		sshURL, err := convertURLToSSH(u)
		if err != nil {
			return "", fmt.Errorf("invalid URL '%s': %v", u, err)
		}
		gogitOptions.URL = sshURL
		auth, err := sshAuth(options.SSHPath)
		if err != nil {
			return "", err
		}
		gogitOptions.Auth = auth
	}

	repository, err := gogit.PlainCloneContext(ctx, dir, false, gogitOptions)
	if err == transport.ErrAuthenticationRequired && options.SSHPath == "" {
		// Try again with ssh, but without explicit keys.
		if sshURL, errURL := convertURLToSSH(u); errURL == nil {
			gogitOptions.URL = sshURL
			repository, err = gogit.PlainCloneContext(ctx, dir, false, gogitOptions)
		}
	}
	if err != nil {
		return "", err
	}

	head, err := repository.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

type PullOptions struct {
	SSHPath string
}

// Pull fetches and merges the latest changes of the checkout at [path].
// Returns the new head hash.
func Pull(ctx context.Context, path string, options PullOptions) (string, error) {
	repository, err := gogit.PlainOpen(path)
	if err != nil {
		return "", err
	}
	wt, err := repository.Worktree()
	if err != nil {
		return "", err
	}

	pullOptions := &gogit.PullOptions{
		Force: true,
	}
	auth, err := sshAuth(options.SSHPath)
	if err != nil {
		return "", err
	}
	pullOptions.Auth = auth

	err = wt.PullContext(ctx, pullOptions)
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return "", err
	}
	return Head(path)
}

// Head returns the hash of the checked out commit at [path].
func Head(path string) (string, error) {
	repository, err := gogit.PlainOpen(path)
	if err != nil {
		return "", err
	}
	head, err := repository.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}
