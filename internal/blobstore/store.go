// Package blobstore keeps session-local image bytes behind transient handles.
// Handles are not durable: they are valid only for the lifetime of the process.
package blobstore

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
)

const handlePrefix = "blob:"

// Blob is stored image bytes with their media type.
type Blob struct {
	Data     []byte
	MimeType string
	Hash     string
}

// Store is a thread-safe in-memory handle registry.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

func New() *Store {
	return &Store{blobs: make(map[string]Blob)}
}

// Put stores a copy of data and returns a fresh handle for it.
func (s *Store) Put(data []byte, mimeType string) string {
	h := handlePrefix + newULID()
	b := Blob{
		Data:     append([]byte(nil), data...),
		MimeType: mimeType,
		Hash:     ContentHashHex(data),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[h] = b
	return h
}

// Get resolves a handle. The returned bytes must not be modified.
func (s *Store) Get(handle string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[handle]
	return b, ok
}

// Has reports whether a handle still resolves.
func (s *Store) Has(handle string) bool {
	_, ok := s.Get(handle)
	return ok
}

// Release drops the bytes behind each handle. Unknown handles are ignored.
func (s *Store) Release(handles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range handles {
		delete(s.blobs, h)
	}
}

// Len returns the number of live handles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IsHandle reports whether s looks like a handle issued by a Store.
func IsHandle(s string) bool {
	return strings.HasPrefix(s, handlePrefix) && len(s) == len(handlePrefix)+26
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
