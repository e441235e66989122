// internal/journal/record.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package journal implements per-worker append-only log files collated
// at run end into a sealed manifest directory, plus the append-only
// global blob index and folder-ingestion log.
package journal

import (
	"os"
	"time"

	"github.com/mmp/carb/internal/blob"
)

// Outcome mirrors blobstore.Outcome without importing it, so journal
// stays a leaf package; Record.Outcome is the authoritative per-file
// result.
type Outcome int

const (
	Ingested Outcome = iota
	Deduped
)

func (o Outcome) String() string {
	if o == Ingested {
		return "Ingested"
	}
	return "Deduped"
}

// Record is a single observed-file entry.
type Record struct {
	BlobID      blob.ID
	Cwd         string
	StartDir    string
	AbsPath     string
	RelPath     string
	Size        int64
	ModTime     time.Time
	Mode        os.FileMode
	MIME        string
	HasMIME     bool
	Outcome     Outcome
}
