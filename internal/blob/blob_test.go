// internal/blob/blob_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package blob

import (
	"bytes"
	"testing"
)

func TestOfAndString(t *testing.T) {
	id := Of([]byte("hello world"))
	if id.Size != 11 {
		t.Errorf("Size = %d, want 11", id.Size)
	}
	s := id.String()
	if len(s) != 18+1+64+5 {
		t.Errorf("String() = %q, unexpected length %d", s, len(s))
	}

	got, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	if !got.Equal(id) {
		t.Errorf("Parse(String()) round trip: got %v, want %v", got, id)
	}
}

func TestSumReader(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	id, err := SumReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("SumReader: %v", err)
	}
	want := Of(data)
	if !id.Equal(want) {
		t.Errorf("SumReader = %v, want %v", id, want)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"not-a-blob",
		"000000000000000006_deadbeef.data",     // hash too short
		"6_2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824.data", // size not zero padded to 18
		"000000000000000006_2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824.dat",
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q): expected error, got none", c)
		}
	}
}

func TestLessOrdersBySizeThenHash(t *testing.T) {
	small := Of([]byte("a"))
	big := Of([]byte("aa"))
	if !small.Less(big) {
		t.Errorf("%v.Less(%v) = false, want true", small, big)
	}
	if big.Less(small) {
		t.Errorf("%v.Less(%v) = true, want false", big, small)
	}
}

func TestEqualDistinguishesContent(t *testing.T) {
	a := Of([]byte("one"))
	b := Of([]byte("two"))
	if a.Equal(b) {
		t.Errorf("distinct content compared equal: %v == %v", a, b)
	}
	if !a.Equal(Of([]byte("one"))) {
		t.Errorf("identical content compared unequal")
	}
}
