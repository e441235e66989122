// internal/ingest/stream.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package ingest

import (
	"crypto/sha256"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mmp/carb/internal/blob"
)

// teeBufferSize is the fixed read-buffer size for the single-pass
// stream+hash copy, large enough to amortize syscall overhead without
// holding much memory per in-flight worker.
const teeBufferSize = 128 * 1024

// Staged is the result of streaming one source file: its staging copy
// on disk, and the content identity computed in the same pass.
type Staged struct {
	Path string
	ID   blob.ID
}

// ErrReadError wraps a failure reading the source mid-stream.
type ErrReadError struct {
	Path string
	Err  error
}

func (e *ErrReadError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *ErrReadError) Unwrap() error { return e.Err }

// Stream reads src exactly once, writing it to a uniquely-named file
// under tmpDir while computing its SHA-256 in the same pass. On any
// failure the staging file is removed and an *ErrReadError is returned.
func Stream(src, tmpDir string) (Staged, error) {
	in, err := os.Open(src)
	if err != nil {
		return Staged{}, &ErrReadError{src, err}
	}
	defer in.Close()

	stagingPath := filepath.Join(tmpDir, "staging-"+uuid.NewString())
	out, err := os.OpenFile(stagingPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Staged{}, &ErrReadError{src, err}
	}

	h := sha256.New()
	buf := make([]byte, teeBufferSize)
	n, err := io.CopyBuffer(io.MultiWriter(out, h), in, buf)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(stagingPath)
		return Staged{}, &ErrReadError{src, err}
	}

	var sum [blob.HashSize]byte
	copy(sum[:], h.Sum(nil))
	return Staged{Path: stagingPath, ID: blob.Sum(uint64(n), sum)}, nil
}

// mimeSampleSize matches net/http.DetectContentType's own read window;
// sampling more than this is wasted I/O.
const mimeSampleSize = 512

// ProbeMIME samples the leading bytes of path and classifies them with
// net/http.DetectContentType.
func ProbeMIME(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, mimeSampleSize)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}
