package blobstore

import (
	"sort"
	"testing"
)

func TestContentHashHex_Consistency(t *testing.T) {
	h := ContentHashHex([]byte("hello world"))
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestStore_PutGetRelease(t *testing.T) {
	s := New()
	data := []byte{0x89, 'P', 'N', 'G'}

	h := s.Put(data, "image/png")
	if !IsHandle(h) {
		t.Fatalf("expected a handle, got %q", h)
	}

	data[0] = 0
	b, ok := s.Get(h)
	if !ok {
		t.Fatal("expected handle to resolve")
	}
	if b.Data[0] != 0x89 {
		t.Error("expected store to keep its own copy of the bytes")
	}
	if b.MimeType != "image/png" {
		t.Errorf("expected image/png, got %q", b.MimeType)
	}

	s.Release(h, "blob:unknown")
	if s.Has(h) {
		t.Error("expected handle released")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}

func TestNewULID_UniqueAndSorted(t *testing.T) {
	const n = 500
	ids := make([]string, n)
	seen := make(map[string]bool, n)
	for i := range ids {
		ids[i] = newULID()
		if len(ids[i]) != 26 {
			t.Fatalf("expected 26 chars, got %d", len(ids[i]))
		}
		if seen[ids[i]] {
			t.Fatalf("duplicate ulid %q", ids[i])
		}
		seen[ids[i]] = true
	}
	if !sort.StringsAreSorted([]string{ids[0][:10], ids[n-1][:10]}) {
		t.Error("expected timestamp prefix to be non-decreasing")
	}
}

func TestEncodeULID_Zero(t *testing.T) {
	var b [16]byte
	if got := encodeULID(b); got != "00000000000000000000000000" {
		t.Errorf("unexpected encoding %q", got)
	}
	for i := range b {
		b[i] = 0xff
	}
	if got := encodeULID(b); got != "7ZZZZZZZZZZZZZZZZZZZZZZZZZ" {
		t.Errorf("unexpected encoding %q", got)
	}
}
