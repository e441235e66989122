// internal/journal/worker_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmp/carb/internal/blob"
)

func TestWorkerLogAppendWritesProcessedAndOutcomeFiles(t *testing.T) {
	dir := t.TempDir()
	wl, err := NewWorkerLog(dir, "w00")
	if err != nil {
		t.Fatalf("NewWorkerLog: %v", err)
	}

	rec := Record{
		BlobID:   blob.Of([]byte("content")),
		Cwd:      "/cwd",
		StartDir: "/start",
		AbsPath:  "/start/a.txt",
		RelPath:  "a.txt",
		Size:     7,
		ModTime:  time.Now(),
		Outcome:  Ingested,
	}
	if err := wl.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := wl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	processed, err := os.ReadFile(filepath.Join(dir, "w00_processed"))
	if err != nil {
		t.Fatalf("reading processed log: %v", err)
	}
	if !strings.Contains(string(processed), rec.BlobID.String()) {
		t.Errorf("processed log missing blob id: %q", processed)
	}

	ingested, err := os.ReadFile(filepath.Join(dir, "w00_ingested"))
	if err != nil {
		t.Fatalf("reading ingested log: %v", err)
	}
	if len(ingested) == 0 {
		t.Errorf("ingested log is empty for an Ingested record")
	}

	skipped, err := os.ReadFile(filepath.Join(dir, "w00_skipped"))
	if err != nil {
		t.Fatalf("reading skipped log: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped log non-empty for an Ingested record: %q", skipped)
	}
}

func TestWorkerLogDedupedGoesToSkipped(t *testing.T) {
	dir := t.TempDir()
	wl, err := NewWorkerLog(dir, "w01")
	if err != nil {
		t.Fatalf("NewWorkerLog: %v", err)
	}
	defer wl.Close()

	rec := Record{BlobID: blob.Of([]byte("x")), AbsPath: "/a", Outcome: Deduped}
	if err := wl.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	skipped, err := os.ReadFile(filepath.Join(dir, "w01_skipped"))
	if err != nil {
		t.Fatalf("reading skipped log: %v", err)
	}
	if len(skipped) == 0 {
		t.Errorf("skipped log empty for a Deduped record")
	}
}

func TestWorkerLogTypesOnlyWrittenWhenMIMEPresent(t *testing.T) {
	dir := t.TempDir()
	wl, err := NewWorkerLog(dir, "w02")
	if err != nil {
		t.Fatalf("NewWorkerLog: %v", err)
	}
	defer wl.Close()

	rec := Record{BlobID: blob.Of([]byte("y")), AbsPath: "/y", HasMIME: true, MIME: "text/plain"}
	if err := wl.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	types, err := os.ReadFile(filepath.Join(dir, "w02_types"))
	if err != nil {
		t.Fatalf("reading types log: %v", err)
	}
	if !strings.Contains(string(types), "text/plain") {
		t.Errorf("types log missing MIME type: %q", types)
	}
}
