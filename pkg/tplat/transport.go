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
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/osgi-build/tplat/pkg/git"
	"github.com/osgi-build/tplat/pkg/set"
	"github.com/osgi-build/tplat/pkg/uripath"
)

// Transport gives access to the files of a repository.
//
// Missing files are reported with an error that wraps os.ErrNotExist.
type Transport interface {
	// Remote returns whether the location requires network access.
	Remote(location string) bool
	// Stat returns a freshness stamp for the named file of the repository.
	// The stamp changes when the file changes. An empty stamp means that the
	// freshness can't be determined.
	Stat(ctx context.Context, location string, name string) (string, error)
	// Open opens the named file of the repository.
	Open(ctx context.Context, location string, name string) (io.ReadCloser, error)
}

// localTransport is implemented by transports that have the repository
// files on the local file system.
type localTransport interface {
	LocalPath(location string, name string) (string, bool)
}

func schemeOf(location string) string {
	i := strings.Index(location, "://")
	if i <= 1 {
		// No scheme, or a Windows drive letter.
		return ""
	}
	return strings.ToLower(location[:i])
}

// CanonicalLocation normalizes a repository location.
// Local paths become absolute 'file://' URIs. Remote URIs get a lower-case
// scheme and host, and no trailing '/'.
func CanonicalLocation(location string) (string, error) {
	scheme := schemeOf(location)
	switch {
	case scheme == "":
		abs, err := filepath.Abs(location)
		if err != nil {
			return "", err
		}
		return fileURI(abs), nil
	case scheme == "file":
		p, err := filePath(location)
		if err != nil {
			return "", err
		}
		return fileURI(p), nil
	case strings.HasPrefix(scheme, "git+"):
		inner, err := CanonicalLocation(location[len("git+"):])
		if err != nil {
			return "", err
		}
		return "git+" + inner, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid repository location '%s': %w", location, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

func fileURI(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

func filePath(location string) (string, error) {
	if schemeOf(location) == "" {
		return location, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid file location '%s': %w", location, err)
	}
	p := u.Path
	if runtime.GOOS == "windows" {
		p = strings.TrimPrefix(p, "/")
	}
	return filepath.FromSlash(p), nil
}

// FileTransport reads repositories from the local file system.
type FileTransport struct{}

func (FileTransport) Remote(location string) bool {
	return false
}

func (FileTransport) LocalPath(location string, name string) (string, bool) {
	dir, err := filePath(location)
	if err != nil {
		return "", false
	}
	return filepath.Join(dir, filepath.FromSlash(name)), true
}

// Stat hashes the file content.
func (t FileTransport) Stat(ctx context.Context, location string, name string) (string, error) {
	p, _ := t.LocalPath(location, name)
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func (t FileTransport) Open(ctx context.Context, location string, name string) (io.ReadCloser, error) {
	p, ok := t.LocalPath(location, name)
	if !ok {
		return nil, fmt.Errorf("invalid file location '%s'", location)
	}
	return os.Open(p)
}

// HTTPTransport reads repositories over http(s).
type HTTPTransport struct {
	Client *http.Client
}

func (t *HTTPTransport) client() *http.Client {
	if t.Client == nil {
		return http.DefaultClient
	}
	return t.Client
}

func (t *HTTPTransport) Remote(location string) bool {
	return true
}

func fileURL(location string, name string) string {
	return strings.TrimSuffix(location, "/") + "/" + name
}

func (t *HTTPTransport) do(ctx context.Context, method string, location string, name string) (*http.Response, error) {
	u := fileURL(location, name)
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", u, os.ErrNotExist)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: unexpected status %s", u, resp.Status)
	}
	return resp, nil
}

// Stat uses the ETag or, if absent, the Last-Modified header of the file.
func (t *HTTPTransport) Stat(ctx context.Context, location string, name string) (string, error) {
	resp, err := t.do(ctx, http.MethodHead, location, name)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if etag := resp.Header.Get("ETag"); etag != "" {
		return etag, nil
	}
	return resp.Header.Get("Last-Modified"), nil
}

func (t *HTTPTransport) Open(ctx context.Context, location string, name string) (io.ReadCloser, error) {
	resp, err := t.do(ctx, http.MethodGet, location, name)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GitTransport reads repositories that are stored in git.
// Locations have the form 'git+<url>'. Each repository is cloned (or
// pulled) at most once per transport.
type GitTransport struct {
	checkoutDir string
	sshPath     string

	mu     sync.Mutex
	synced set.String
}

func NewGitTransport(checkoutDir string, sshPath string) *GitTransport {
	return &GitTransport{
		checkoutDir: checkoutDir,
		sshPath:     sshPath,
	}
}

func (t *GitTransport) Remote(location string) bool {
	return true
}

func gitURL(location string) string {
	return strings.TrimPrefix(location, "git+")
}

func (t *GitTransport) checkoutPath(location string) string {
	return filepath.Join(t.checkoutDir, uripath.ToURIPath(gitURL(location)).FilePath())
}

func (t *GitTransport) LocalPath(location string, name string) (string, bool) {
	p := t.checkoutPath(location)
	if ok, _ := isDirectory(p); !ok {
		return "", false
	}
	return filepath.Join(p, filepath.FromSlash(name)), true
}

func (t *GitTransport) sync(ctx context.Context, location string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.checkoutPath(location)
	if t.synced.Contains(location) {
		return p, nil
	}
	// The lock is in the directory above the checkout, so that cloning isn't
	// disturbed by it.
	lockPath := filepath.Join(filepath.Dir(p), syncLockName)
	err := withFileLock(ctx, lockPath, func() error {
		if ok, _ := isDirectory(filepath.Join(p, ".git")); ok {
			_, err := git.Pull(ctx, p, git.PullOptions{SSHPath: t.sshPath})
			return err
		}
		_, err := git.Clone(ctx, p, git.CloneOptions{
			URL:     gitURL(location),
			Depth:   1,
			SSHPath: t.sshPath,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	t.synced.Add(location)
	return p, nil
}

// Stat returns the hash of the checked out commit.
func (t *GitTransport) Stat(ctx context.Context, location string, name string) (string, error) {
	p, err := t.sync(ctx, location)
	if err != nil {
		return "", err
	}
	if ok, err := isFile(filepath.Join(p, filepath.FromSlash(name))); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("%s: %w", fileURL(location, name), os.ErrNotExist)
	}
	return git.Head(p)
}

func (t *GitTransport) Open(ctx context.Context, location string, name string) (io.ReadCloser, error) {
	p, err := t.sync(ctx, location)
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(p, filepath.FromSlash(name)))
}

// MuxTransport dispatches on the scheme of the location.
type MuxTransport struct {
	transports map[string]Transport
	fallback   Transport
}

// NewMuxTransport returns a transport that uses fallback for locations
// without a registered scheme.
func NewMuxTransport(fallback Transport) *MuxTransport {
	return &MuxTransport{
		transports: map[string]Transport{},
		fallback:   fallback,
	}
}

// NewDefaultTransport supports local paths, 'file', 'http(s)' and
// 'git+<url>' locations. Git repositories are checked out in gitDir.
func NewDefaultTransport(gitDir string) *MuxTransport {
	mux := NewMuxTransport(FileTransport{})
	mux.Register("file", FileTransport{})
	httpTransport := &HTTPTransport{}
	mux.Register("http", httpTransport)
	mux.Register("https", httpTransport)
	gitTransport := NewGitTransport(gitDir, "")
	for _, scheme := range []string{"git+https", "git+http", "git+ssh", "git+file"} {
		mux.Register(scheme, gitTransport)
	}
	return mux
}

func (m *MuxTransport) Register(scheme string, t Transport) {
	m.transports[scheme] = t
}

func (m *MuxTransport) transportFor(location string) Transport {
	if t, ok := m.transports[schemeOf(location)]; ok {
		return t
	}
	return m.fallback
}

func (m *MuxTransport) Remote(location string) bool {
	return m.transportFor(location).Remote(location)
}

func (m *MuxTransport) Stat(ctx context.Context, location string, name string) (string, error) {
	return m.transportFor(location).Stat(ctx, location, name)
}

func (m *MuxTransport) Open(ctx context.Context, location string, name string) (io.ReadCloser, error) {
	return m.transportFor(location).Open(ctx, location, name)
}

func (m *MuxTransport) LocalPath(location string, name string) (string, bool) {
	if lt, ok := m.transportFor(location).(localTransport); ok {
		return lt.LocalPath(location, name)
	}
	return "", false
}
