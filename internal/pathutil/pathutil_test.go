// internal/pathutil/pathutil_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeStartDirTrailingSlash(t *testing.T) {
	dir := t.TempDir()
	a, err := NormalizeStartDir(dir)
	if err != nil {
		t.Fatalf("NormalizeStartDir(%q): %v", dir, err)
	}
	b, err := NormalizeStartDir(dir + string(filepath.Separator))
	if err != nil {
		t.Fatalf("NormalizeStartDir(%q): %v", dir+"/", err)
	}
	if a != b {
		t.Errorf("trailing separator changed result: %q != %q", a, b)
	}
}

func TestNormalizeStartDirRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NormalizeStartDir(file); err != ErrInvalidStartDir {
		t.Errorf("NormalizeStartDir(file) = %v, want ErrInvalidStartDir", err)
	}
}

func TestNormalizeStartDirRejectsMissing(t *testing.T) {
	if _, err := NormalizeStartDir("/does/not/exist/ever"); err != ErrInvalidStartDir {
		t.Errorf("NormalizeStartDir(missing) = %v, want ErrInvalidStartDir", err)
	}
}

func TestRel(t *testing.T) {
	start := string(filepath.Separator) + filepath.Join("a", "b")
	cases := []struct {
		p, want string
	}{
		{start, ""},
		{filepath.Join(start, "c"), "c"},
		{filepath.Join(start, "c", "d"), filepath.Join("c", "d")},
	}
	for _, c := range cases {
		got, err := Rel(c.p, start)
		if err != nil {
			t.Fatalf("Rel(%q, %q): %v", c.p, start, err)
		}
		if got != c.want {
			t.Errorf("Rel(%q, %q) = %q, want %q", c.p, start, got, c.want)
		}
	}
}

func TestUnder(t *testing.T) {
	start := string(filepath.Separator) + filepath.Join("a", "b")
	if !Under(start, start) {
		t.Errorf("Under(s, s) = false, want true")
	}
	if !Under(filepath.Join(start, "c"), start) {
		t.Errorf("Under(s/c, s) = false, want true")
	}
	if Under(filepath.Join(start+"x"), start) {
		t.Errorf("Under(sx, s) = true, want false")
	}
	if Under(filepath.Dir(start), start) {
		t.Errorf("Under(parent, s) = true, want false")
	}
}
