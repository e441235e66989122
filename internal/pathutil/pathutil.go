// internal/pathutil/pathutil.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package pathutil canonicalizes the user-supplied start directory and
// computes relative paths against it for restore.
package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidStartDir is returned when the supplied path does not resolve
// to an existing directory.
var ErrInvalidStartDir = errors.New("invalid start directory")

// NormalizeStartDir resolves p to an absolute directory path with no
// trailing separator. "foo/" and "foo" normalize identically.
func NormalizeStartDir(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", ErrInvalidStartDir
	}
	// filepath.Abs+Clean already strips a trailing separator, but the
	// sentinel trick makes that explicit rather than incidental: append
	// a separator and re-clean, so "foo" and "foo/" always agree.
	abs = filepath.Clean(abs + string(filepath.Separator))
	abs = strings.TrimSuffix(abs, string(filepath.Separator))
	if abs == "" {
		abs = string(filepath.Separator)
	}

	fi, err := os.Stat(abs)
	if err != nil || !fi.IsDir() {
		return "", ErrInvalidStartDir
	}
	return abs, nil
}

// Rel returns the path of p relative to the start directory s, with no
// leading separator. Rel(s, s) is the empty string. Both p and s must
// already be absolute and normalized (as returned by NormalizeStartDir).
func Rel(p, s string) (string, error) {
	rel, err := filepath.Rel(s, p)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return rel, nil
}

// Under reports whether p is s itself or a descendant of s. Both must be
// absolute, normalized paths.
func Under(p, s string) bool {
	if p == s {
		return true
	}
	return strings.HasPrefix(p, s+string(filepath.Separator))
}
