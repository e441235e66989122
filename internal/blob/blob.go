// internal/blob/blob.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package blob implements the content identity that names every stored
// blob: the pair of a byte sequence's size and its SHA-256 hash.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HashSize is the width in bytes of a blob's content hash.
const HashSize = sha256.Size

// ID is the content identity of a stored blob: its size and the SHA-256
// of its bytes. Canonical string form is "<018-zero-padded-size>_<64-hex-hash>.data".
type ID struct {
	Size uint64
	Hash [HashSize]byte
}

// Of returns the ID for a byte slice, primarily for tests and small
// in-memory records; production code streams through Sum instead so the
// bytes are never buffered twice.
func Of(b []byte) ID {
	return ID{Size: uint64(len(b)), Hash: sha256.Sum256(b)}
}

// Sum builds an ID from a known size and a finished hash, as produced
// once a streaming ingest has read the whole file.
func Sum(size uint64, h [HashSize]byte) ID {
	return ID{Size: size, Hash: h}
}

// SumReader hashes r in full, returning the ID of its contents. Used by
// fsck and by parity verify/repair, which re-derive a blob's identity from
// its on-disk bytes.
func SumReader(r io.Reader) (ID, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return ID{}, err
	}
	var sum [HashSize]byte
	copy(sum[:], h.Sum(nil))
	return ID{Size: uint64(n), Hash: sum}, nil
}

// String returns the canonical on-disk name for the blob, e.g.
// "000000000000000005_2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824.data"
// for the 5 bytes "hello".
func (id ID) String() string {
	return fmt.Sprintf("%018d_%s.data", id.Size, hex.EncodeToString(id.Hash[:]))
}

// ErrMalformedID is returned by Parse when a name isn't a canonical
// BlobId string.
var ErrMalformedID = errors.New("malformed blob id")

// Parse recovers an ID from its canonical string form, as produced by
// String. Used when collating journals and walking the blob directory.
func Parse(name string) (ID, error) {
	const suffix = ".data"
	if !strings.HasSuffix(name, suffix) {
		return ID{}, ErrMalformedID
	}
	name = strings.TrimSuffix(name, suffix)

	parts := strings.SplitN(name, "_", 2)
	if len(parts) != 2 || len(parts[0]) != 18 || len(parts[1]) != 2*HashSize {
		return ID{}, ErrMalformedID
	}

	size, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return ID{}, ErrMalformedID
	}

	raw, err := hex.DecodeString(parts[1])
	if err != nil {
		return ID{}, ErrMalformedID
	}

	var id ID
	id.Size = size
	copy(id.Hash[:], raw)
	return id, nil
}

// Less orders IDs by their canonical string form, which sorts first by
// size (the zero-padded decimal prefix) and then by hash.
func (id ID) Less(other ID) bool {
	if id.Size != other.Size {
		return id.Size < other.Size
	}
	return string(id.Hash[:]) < string(other.Hash[:])
}

// Equal reports whether two IDs refer to the same content identity.
func (id ID) Equal(other ID) bool {
	return id.Size == other.Size && id.Hash == other.Hash
}
