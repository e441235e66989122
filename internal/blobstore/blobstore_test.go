// internal/blobstore/blobstore_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package blobstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mmp/carb/internal/blob"
	"github.com/mmp/carb/internal/log"
)

func stage(t *testing.T, dir string, content []byte) (string, blob.ID) {
	t.Helper()
	id := blob.Of(content)
	path := filepath.Join(dir, "staging")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	return path, id
}

func TestInstallFreshBlobIsIngested(t *testing.T) {
	root := t.TempDir()
	store, err := Open(filepath.Join(root, "blobs"), log.New(false, false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	staging, id := stage(t, root, []byte("hello"))
	outcome, err := store.Install(staging, id)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if outcome != Ingested {
		t.Errorf("outcome = %v, want Ingested", outcome)
	}
	if !store.Exists(id) {
		t.Errorf("blob missing from store after install")
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Errorf("staging file still present after install: %v", err)
	}
}

func TestInstallDuplicateIsDeduped(t *testing.T) {
	root := t.TempDir()
	store, err := Open(filepath.Join(root, "blobs"), log.New(false, false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s1, id := stage(t, root, []byte("same content"))
	if _, err := store.Install(s1, id); err != nil {
		t.Fatalf("first Install: %v", err)
	}

	s2, _ := stage(t, root, []byte("same content"))
	outcome, err := store.Install(s2, id)
	if err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if outcome != Deduped {
		t.Errorf("outcome = %v, want Deduped", outcome)
	}
	if _, err := os.Stat(s2); !os.IsNotExist(err) {
		t.Errorf("second staging file still present: %v", err)
	}
}

// TestInstallConcurrentRaceExactlyOnce has many goroutines race to
// install the same content; exactly one must observe Ingested and the
// rest Deduped.
func TestInstallConcurrentRaceExactlyOnce(t *testing.T) {
	root := t.TempDir()
	store, err := Open(filepath.Join(root, "blobs"), log.New(false, false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 16
	content := []byte("raced content")
	id := blob.Of(content)

	stagingPaths := make([]string, n)
	for i := 0; i < n; i++ {
		p := filepath.Join(root, "staging-"+string(rune('a'+i)))
		if err := os.WriteFile(p, content, 0o600); err != nil {
			t.Fatal(err)
		}
		stagingPaths[i] = p
	}

	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = store.Install(stagingPaths[i], id)
		}(i)
	}
	wg.Wait()

	ingested, deduped := 0, 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Install[%d]: %v", i, errs[i])
		}
		switch outcomes[i] {
		case Ingested:
			ingested++
		case Deduped:
			deduped++
		}
	}
	if ingested != 1 || deduped != n-1 {
		t.Errorf("ingested=%d deduped=%d, want 1 and %d", ingested, deduped, n-1)
	}
}

func TestPathIsCanonical(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root, log.New(false, false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := blob.Of([]byte("x"))
	if got, want := store.Path(id), filepath.Join(root, id.String()); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}
