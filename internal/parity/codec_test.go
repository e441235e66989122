// internal/parity/codec_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package parity

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func writeRandomFile(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	rand.New(rand.NewSource(1)).Read(data)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return data
}

func TestCreateAndVerifyCleanFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "blob.data")
	writeRandomFile(t, input, 100000)
	outputBase := filepath.Join(dir, "blob")

	if err := Create(input, outputBase, 8192, 20); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := Verify(input, outputBase)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Errorf("Verify on untouched file = false, want true")
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "blob.data")
	writeRandomFile(t, input, 100000)
	outputBase := filepath.Join(dir, "blob")

	if err := Create(input, outputBase, 8192, 20); err != nil {
		t.Fatalf("Create: %v", err)
	}

	corruptByte(t, input, 5)

	ok, err := Verify(input, outputBase)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Errorf("Verify on corrupted file = true, want false")
	}
}

func TestRepairReconstructsOriginalBytes(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "blob.data")
	original := writeRandomFile(t, input, 100000)
	outputBase := filepath.Join(dir, "blob")

	if err := Create(input, outputBase, 8192, 20); err != nil {
		t.Fatalf("Create: %v", err)
	}

	corruptByte(t, input, 42)

	var out bytes.Buffer
	if err := Repair(input, outputBase, &out); err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !bytes.Equal(out.Bytes(), original) {
		t.Errorf("Repair produced %d bytes differing from the %d-byte original", out.Len(), len(original))
	}

	// Repair must never touch the damaged input file itself.
	damaged, err := os.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(damaged, original) {
		t.Errorf("input file was repaired in place; blobs must stay immutable")
	}
}

func corruptByte(t *testing.T, path string, offset int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, offset); err != nil {
		t.Fatal(err)
	}
	b[0] ^= 0xff
	if _, err := f.WriteAt(b, offset); err != nil {
		t.Fatal(err)
	}
}
