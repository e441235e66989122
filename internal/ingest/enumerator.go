// internal/ingest/enumerator.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package ingest implements the lazy file sequence the worker pool
// drains, and the per-file read-once tee into a staging file plus
// hasher.
package ingest

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mmp/carb/internal/log"
	"github.com/mmp/carb/internal/pathutil"
)

// EnumerateOptions configures the File Enumerator.
type EnumerateOptions struct {
	// Cutoff, if non-nil, restricts enumeration to files with mtime
	// strictly greater than *Cutoff (incremental mode). Nil means full
	// mode: no mtime predicate.
	Cutoff *time.Time
	// ExcludeGlobs are shell-class basename globs.
	ExcludeGlobs []string
	// SelfDirs are absolute directories the enumerator must never
	// descend into, even if they're under StartDir — carb's own
	// storage tree, so a backup never tries to ingest itself.
	SelfDirs []string
}

// Enumerate walks startDir (already normalized by pathutil) and sends
// every qualifying regular file's absolute path on the returned channel.
// The channel is closed when the walk completes; it is read lazily by
// the caller so memory use doesn't grow with tree size. Stat/readdir
// failures on individual entries are logged and skipped, never fatal.
func Enumerate(startDir string, opts EnumerateOptions, l *log.Logger) <-chan string {
	out := make(chan string, 64)
	go func() {
		defer close(out)
		walk(startDir, opts, l, out)
	}()
	return out
}

func walk(dir string, opts EnumerateOptions, l *log.Logger, out chan<- string) {
	for _, self := range opts.SelfDirs {
		if self != "" && pathutil.Under(dir, self) {
			return
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		l.Warning("%s: %s", dir, err)
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			walk(path, opts, l, out)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			l.Warning("%s: %s", path, err)
			continue
		}

		// Symlinks are followed only when they point at a regular file;
		// we never recurse through a symlinked directory.
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				l.Warning("%s: unreadable symlink: %s", path, err)
				continue
			}
			if !target.Mode().IsRegular() {
				continue
			}
			info = target
		} else if !info.Mode().IsRegular() {
			continue
		}

		if excluded(entry.Name(), opts.ExcludeGlobs) {
			l.Verbose("%s: excluded by glob", path)
			continue
		}

		if opts.Cutoff != nil && !info.ModTime().After(*opts.Cutoff) {
			continue
		}

		out <- path
	}
}

func excluded(basename string, globs []string) bool {
	for _, g := range globs {
		if ok, err := filepath.Match(g, basename); err == nil && ok {
			return true
		}
	}
	return false
}
