// internal/blobstore/blobstore.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package blobstore implements the atomic content-addressed install
// protocol that gives carb exactly-once storage per blob identity under
// concurrent writers: hardlink staging into place, falling back to a
// no-clobber rename and then a no-clobber copy.
package blobstore

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/mmp/carb/internal/blob"
	"github.com/mmp/carb/internal/log"
)

// Outcome is the result of installing a staged file.
type Outcome int

const (
	// Ingested means this call created the blob.
	Ingested Outcome = iota
	// Deduped means the blob already existed; staging was discarded.
	Deduped
)

func (o Outcome) String() string {
	if o == Ingested {
		return "Ingested"
	}
	return "Deduped"
}

// ErrInstallFailed is returned when every fallback in the install
// protocol (hardlink, no-clobber rename, no-clobber copy) fails.
var ErrInstallFailed = errors.New("install failed")

// Store is the blob directory: many readers, single effective writer per
// blob identity.
type Store struct {
	dir string
	log *log.Logger
}

// Open returns a Store rooted at dir, creating dir if it doesn't exist.
func Open(dir string, l *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir, log: l}, nil
}

// Dir returns the blob directory's path.
func (s *Store) Dir() string { return s.dir }

// Path returns the canonical on-disk path for id, whether or not it
// exists.
func (s *Store) Path(id blob.ID) string {
	return filepath.Join(s.dir, id.String())
}

// Exists reports whether a blob with the given identity is present.
func (s *Store) Exists(id blob.ID) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Install moves the staged file at stagingPath into the store under id,
// in order:
//
//  1. Atomic hardlink staging -> target. Success means Ingested.
//  2. If the target already exists, Deduped (staging removed).
//  3. Otherwise (e.g. cross-device staging), fall back to a no-clobber
//     rename, then a no-clobber copy. Exhausting both is ErrInstallFailed.
//
// The caller owns stagingPath; Install always either consumes it (removes
// it) or, on ErrInstallFailed, leaves it in place for the caller to clean
// up.
func (s *Store) Install(stagingPath string, id blob.ID) (Outcome, error) {
	target := s.Path(id)

	err := os.Link(stagingPath, target)
	if err == nil {
		_ = os.Remove(stagingPath)
		return Ingested, nil
	}

	if s.Exists(id) {
		// The race: someone else's hardlink (or rename/copy) won first.
		_ = os.Remove(stagingPath)
		return Deduped, nil
	}

	// The link failed for a reason other than the target existing —
	// typically EXDEV (cross-device). Fall back to rename, then copy.
	if renameErr := noClobberRename(stagingPath, target); renameErr == nil {
		return Ingested, nil
	} else if os.IsExist(renameErr) || s.Exists(id) {
		_ = os.Remove(stagingPath)
		return Deduped, nil
	}

	if copyErr := noClobberCopy(stagingPath, target); copyErr == nil {
		_ = os.Remove(stagingPath)
		return Ingested, nil
	} else if os.IsExist(copyErr) || s.Exists(id) {
		_ = os.Remove(stagingPath)
		return Deduped, nil
	}

	return 0, ErrInstallFailed
}

func noClobberRename(src, dst string) error {
	// os.Rename clobbers on POSIX; use Link+Remove to get create-if-absent
	// semantics on the rare cross-device-but-same-volume-namespace case,
	// falling back cleanly to the copy path otherwise.
	if err := os.Link(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func noClobberCopy(src, dst string) error {
	tmp := dst + ".copying"
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Link(tmp, dst); err != nil {
		os.Remove(tmp)
		if os.IsExist(err) {
			return err
		}
		return err
	}
	return os.Remove(tmp)
}
