package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dgallion1/sopmaster/internal/pathstore"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "sop_steps"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, "sop_steps", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "sop_steps", []byte(`[{"id":"b"}]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.Get(ctx, "sop_steps")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `[{"id":"b"}]` {
		t.Errorf("expected overwritten value, got %s", got)
	}
	if err := s.Delete(ctx, "sop_steps"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "sop_steps"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "never-written"); err != nil {
		t.Errorf("expected deleting a missing key to succeed, got %v", err)
	}
}

func TestMemory_Store(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLite_Store(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "sop.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLite_ReopenKeepsValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sop.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(context.Background(), "sop_use_ai", []byte("false")); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(context.Background(), "sop_use_ai")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "false" {
		t.Errorf("expected false, got %s", got)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestUpSection(t *testing.T) {
	in := "-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;"
	if got := strings.TrimSpace(upSection(in)); got != "CREATE TABLE a (x);" {
		t.Errorf("unexpected up section %q", got)
	}
	if got := upSection("CREATE TABLE b (y);"); got != "CREATE TABLE b (y);" {
		t.Errorf("expected whole content without markers, got %q", got)
	}
}

// fakePathstore implements just enough of the pathstore /kv API.
type fakePathstore struct {
	mu    sync.Mutex
	nodes map[string]json.RawMessage
}

func (f *fakePathstore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch r.Method {
	case http.MethodPut:
		var req pathstore.NodeRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		v, ok := f.nodes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(pathstore.NodeResponse{Key: key, Value: v})
	case http.MethodDelete:
		delete(f.nodes, key)
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestPathstore_Store(t *testing.T) {
	fake := &fakePathstore{nodes: map[string]json.RawMessage{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewPathstore(pathstore.NewClient(srv.URL, "k"), "sopmaster")
	defer s.Close()
	exerciseStore(t, s)

	if err := s.Put(context.Background(), "sop_use_ai", []byte("true")); err != nil {
		t.Fatalf("put: %v", err)
	}
	fake.mu.Lock()
	_, ok := fake.nodes["sopmaster/sop_use_ai"]
	fake.mu.Unlock()
	if !ok {
		t.Error("expected key stored under prefix")
	}
}

func TestPathstore_RejectsNonJSON(t *testing.T) {
	s := NewPathstore(pathstore.NewClient("http://127.0.0.1:0", ""), "")
	err := s.Put(context.Background(), "k", []byte("not json"))
	if err == nil || !errors.Is(err, errNotJSON) {
		t.Errorf("expected errNotJSON, got %v", err)
	}
	if !bytes.Contains([]byte(err.Error()), []byte("k")) {
		t.Errorf("expected key in error, got %v", err)
	}
}
