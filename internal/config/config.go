// internal/config/config.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package config gathers carb's environment-variable surface into a
// single immutable value built once at startup, rather than reaching
// for os.Getenv throughout the codebase.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config is the fully-resolved, read-only configuration for one run.
// Workers receive a *Config and never mutate it.
type Config struct {
	// Jobs is the worker pool size (env JOBS, default NumCPU).
	Jobs int

	// Par2 enables parity creation (env PAR2, default true).
	Par2 bool
	// Par2Redundancy is a percentage in [1, 80] (env PAR2_REDUNDANCY).
	Par2Redundancy int
	// Par2BlockSize is the configured block size in bytes, or 0 for auto
	// (env PAR2_BLOCKSIZE, "auto" or empty maps to 0).
	Par2BlockSize int64
	// Par2RedundancySet records whether PAR2_REDUNDANCY was present in
	// the environment, distinguishing an explicit choice from the
	// default — the planner only treats redundancy as "configured" in
	// the former case.
	Par2RedundancySet bool

	// EnableMime turns on the per-blob MIME probe (env ENABLE_MIME,
	// default true).
	EnableMime bool

	// ExcludeGlobs are basename globs checked with filepath.Match (env
	// EXCLUDE_GLOBS, comma separated).
	ExcludeGlobs []string

	// Root is the storage root: blobs/, parity/, manifest/ live beneath
	// it (env HOME, overrides the platform default data dir).
	Root string
	// TmpDir is the staging directory (env TMPDIR, defaults to Root/tmp).
	TmpDir string

	// Comment is recorded verbatim in the ingestedFolders log (env
	// COMMENT).
	Comment string

	// TmpMaxAge bounds the startup tmp-directory sweep; zero disables it
	// (env CARB_TMP_MAX_AGE, a Go duration such as "24h", default 24h).
	TmpMaxAge int64 // seconds
}

const (
	DefaultRedundancy  = 10
	MinRedundancy      = 1
	MaxRedundancy      = 80
	DefaultTmpMaxAgeSec = 24 * 60 * 60
)

// Load resolves a Config from the process environment.
func Load() (*Config, error) {
	c := &Config{
		Jobs:           runtime.NumCPU(),
		Par2:           true,
		Par2Redundancy: DefaultRedundancy,
		EnableMime:     true,
		TmpMaxAge:      DefaultTmpMaxAgeSec,
	}

	if v := os.Getenv("JOBS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errInvalid("JOBS", v)
		}
		c.Jobs = n
	}

	if v := os.Getenv("PAR2"); v != "" {
		b, err := parseBoolFlag(v)
		if err != nil {
			return nil, errInvalid("PAR2", v)
		}
		c.Par2 = b
	}

	if v := os.Getenv("PAR2_REDUNDANCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errInvalid("PAR2_REDUNDANCY", v)
		}
		c.Par2Redundancy = clampInt(n, MinRedundancy, MaxRedundancy)
		c.Par2RedundancySet = true
	}

	if v := os.Getenv("PAR2_BLOCKSIZE"); v != "" && v != "auto" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, errInvalid("PAR2_BLOCKSIZE", v)
		}
		c.Par2BlockSize = n
	}

	if v := os.Getenv("ENABLE_MIME"); v != "" {
		b, err := parseBoolFlag(v)
		if err != nil {
			return nil, errInvalid("ENABLE_MIME", v)
		}
		c.EnableMime = b
	}

	if v := os.Getenv("EXCLUDE_GLOBS"); v != "" {
		for _, g := range strings.Split(v, ",") {
			g = strings.TrimSpace(g)
			if g != "" {
				c.ExcludeGlobs = append(c.ExcludeGlobs, g)
			}
		}
	}

	if v := os.Getenv("CARB_TMP_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, errInvalid("CARB_TMP_MAX_AGE", v)
		}
		c.TmpMaxAge = int64(d / time.Second)
	}

	c.Comment = os.Getenv("COMMENT")

	root := os.Getenv("HOME")
	if root == "" {
		var err error
		root, err = defaultDataDir()
		if err != nil {
			return nil, err
		}
	}
	c.Root = root

	c.TmpDir = os.Getenv("TMPDIR")
	if c.TmpDir == "" {
		c.TmpDir = filepath.Join(c.Root, "tmp")
	}

	return c, nil
}

// BlobDir, ParityDir, and ManifestDir return the fixed subdirectories of
// the storage root.
func (c *Config) BlobDir() string     { return filepath.Join(c.Root, "blobs") }
func (c *Config) ParityDir() string   { return filepath.Join(c.Root, "parity") }
func (c *Config) ManifestDir() string { return filepath.Join(c.Root, "manifest") }

// SelfDirs returns the set of directories the enumerator must never
// recurse into when they fall under the start directory, so a backup
// never tries to ingest its own storage tree.
func (c *Config) SelfDirs() []string {
	return []string{c.BlobDir(), c.ParityDir(), c.ManifestDir(), c.TmpDir}
}

func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "carb"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "carb"), nil
	}
	return filepath.Join(home, ".local", "share", "carb"), nil
}

func parseBoolFlag(v string) (bool, error) {
	switch v {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, errInvalid("", v)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type invalidConfigError struct {
	name, value string
}

func (e *invalidConfigError) Error() string {
	return "invalid value " + strconv.Quote(e.value) + " for " + e.name
}

func errInvalid(name, value string) error {
	return &invalidConfigError{name, value}
}
