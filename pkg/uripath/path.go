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

package uripath

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

/*
A URIPath is a repository location rewritten so that it can be used as a
relative path on every supported file system:
- the segment separator is always '/'.
- characters that are not allowed (or have a meaning) in file names are
  escaped with '%XX'.
- segments that can't be used as file names (empty segments, reserved
  Windows device names, segments ending with '.' or ' ') get a trailing '%'.

Escaping is reversible, so the original location can be recovered from a
cache directory.
*/

type URIPath string

var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

func escapeSegment(segment string) string {
	sb := strings.Builder{}
	for _, c := range []byte(segment) {
		switch c {
		case '%', ':', '+', '*', '?', '"', '<', '>', '|':
			sb.WriteString(fmt.Sprintf("%%%02X", c))
		default:
			sb.WriteByte(c)
		}
	}
	escaped := sb.String()
	if escaped == "" ||
		reservedNames[strings.ToLower(escaped)] ||
		strings.HasSuffix(escaped, ".") ||
		strings.HasSuffix(escaped, " ") {
		escaped += "%"
	}
	return escaped
}

func unescapeSegment(segment string) string {
	// A single trailing '%' is a marker and not part of an escape sequence.
	if strings.HasSuffix(segment, "%") {
		segment = segment[:len(segment)-1]
	}
	sb := strings.Builder{}
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if c == '%' && i+2 < len(segment) {
			if b, err := strconv.ParseUint(segment[i+1:i+3], 16, 8); err == nil {
				sb.WriteByte(byte(b))
				i += 2
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// ToURIPath escapes the given location.
// Backslashes are treated as separators.
func ToURIPath(location string) URIPath {
	location = strings.ReplaceAll(location, "\\", "/")
	segments := strings.Split(location, "/")
	for i, segment := range segments {
		segments[i] = escapeSegment(segment)
	}
	return URIPath(strings.Join(segments, "/"))
}

// URL returns the unescaped location.
func (up URIPath) URL() string {
	segments := strings.Split(string(up), "/")
	for i, segment := range segments {
		segments[i] = unescapeSegment(segment)
	}
	return strings.Join(segments, "/")
}

func (up URIPath) FilePath() string {
	return filepath.FromSlash(string(up))
}

func FilePathToURIPath(p string) URIPath {
	return ToURIPath(filepath.ToSlash(p))
}

// A Path is a slash separated path, as written into lock and repository
// files. Absolute Windows paths start with '/'.
type Path string

func ToPath(path string) Path {
	return toSlashPath(path, runtime.GOOS == "windows")
}

func toSlashPath(path string, windows bool) Path {
	if !windows {
		return Path(path)
	}
	if filepath.IsAbs(path) {
		path = "/" + path
	}
	return Path(filepath.ToSlash(path))
}

func (path Path) FilePath() string {
	return fromSlashPath(path, runtime.GOOS == "windows")
}

func fromSlashPath(path Path, onWindows bool) string {
	p := string(path)
	if !onWindows {
		return p
	}

	p = strings.TrimPrefix(p, "/")
	return filepath.FromSlash(p)
}
