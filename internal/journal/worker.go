// internal/journal/worker.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package journal

import (
	"fmt"
	"os"
	"path/filepath"
)

// categories are the per-worker log files each worker maintains. The
// restore program is written once per run after collation (see
// Run.WriteRecover) and reads the collated file_processed when it runs;
// it is not accumulated per file per worker, so "recover" isn't one of
// these. Producers write the bare form; Collate
// accepts both the bare and the "_"-prefixed form when reading them
// back, so logs from either naming convention collate correctly.
var categories = []string{"processed", "ingested", "skipped", "stat1", "stat2", "types"}

// WorkerLog is the exclusive, append-only set of log files for one
// worker.
type WorkerLog struct {
	id    string
	files map[string]*os.File
}

// NewWorkerLog opens (creating) the per-worker log files under logsDir
// for worker id.
func NewWorkerLog(logsDir, id string) (*WorkerLog, error) {
	w := &WorkerLog{id: id, files: make(map[string]*os.File, len(categories))}
	for _, cat := range categories {
		path := filepath.Join(logsDir, id+"_"+cat)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.files[cat] = f
	}
	return w, nil
}

// Append records rec into the processed log, and into exactly one of
// ingested/skipped depending on rec.Outcome, plus the stat1/stat2/types
// side logs. Concatenation order within a worker is the order of
// processing, which append-only writes preserve.
func (w *WorkerLog) Append(rec Record) error {
	line := fmt.Sprintf("%s:%s:%s:%s\n", rec.BlobID, rec.Cwd, rec.StartDir, rec.AbsPath)
	if _, err := w.files["processed"].WriteString(line); err != nil {
		return err
	}

	cat := "skipped"
	if rec.Outcome == Ingested {
		cat = "ingested"
	}
	if _, err := w.files[cat].WriteString(line); err != nil {
		return err
	}

	stat := fmt.Sprintf("%s:%d:%d:%s\n", rec.AbsPath, rec.Size, rec.ModTime.UnixNano(), rec.Mode)
	if _, err := w.files["stat1"].WriteString(stat); err != nil {
		return err
	}
	if _, err := w.files["stat2"].WriteString(nativeStatLine(rec)); err != nil {
		return err
	}

	if rec.HasMIME {
		typeLine := fmt.Sprintf("%s:%s\n", rec.AbsPath, rec.MIME)
		if _, err := w.files["types"].WriteString(typeLine); err != nil {
			return err
		}
	}

	return nil
}

// Close closes every per-worker file, returning the first error (if
// any); it always attempts to close all of them.
func (w *WorkerLog) Close() error {
	var first error
	for _, f := range w.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
