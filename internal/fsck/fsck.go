// internal/fsck/fsck.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package fsck implements carb's consistency checker: walk the blob
// directory, recompute each blob's identity from its bytes, and report
// blobs the global index never recorded.
package fsck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmp/carb/internal/blob"
	"github.com/mmp/carb/internal/log"
)

// Report tallies one fsck pass.
type Report struct {
	Checked   int
	Mismatched []string
	Orphaned  []blob.ID
}

// Check walks blobDir, verifying that every file's name matches the
// SHA-256 of its contents, and cross-references them against indexPath
// (the global index), reporting any blob present on disk but never
// recorded there.
func Check(blobDir, indexPath string, l *log.Logger) (Report, error) {
	indexed, err := readIndex(indexPath)
	if err != nil && !os.IsNotExist(err) {
		return Report{}, err
	}

	var rpt Report
	entries, err := os.ReadDir(blobDir)
	if err != nil {
		return Report{}, err
	}

	for _, e := range entries {
		if e.IsDir() || e.Name() == "INDEX" {
			continue
		}
		path := filepath.Join(blobDir, e.Name())

		want, err := blob.Parse(e.Name())
		if err != nil {
			l.Warning("%s: not a blob filename", path)
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			l.Error("%s: %s", path, err)
			continue
		}
		got, err := blob.SumReader(f)
		f.Close()
		if err != nil {
			l.Error("%s: %s", path, err)
			continue
		}
		rpt.Checked++

		if !got.Equal(want) {
			l.Error("%s: content identity mismatch (file claims %s, contents hash to %s)", path, want, got)
			rpt.Mismatched = append(rpt.Mismatched, path)
		}

		if !indexed[want] {
			rpt.Orphaned = append(rpt.Orphaned, want)
		}
	}

	return rpt, nil
}

func readIndex(path string) (map[blob.ID]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := make(map[blob.ID]bool)
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		if id, err := blob.Parse(line); err == nil {
			m[id] = true
		}
	}
	return m, nil
}

// String renders a one-line summary.
func (r Report) String() string {
	return fmt.Sprintf("checked %d blobs, %d mismatched, %d orphaned (not in index)",
		r.Checked, len(r.Mismatched), len(r.Orphaned))
}
