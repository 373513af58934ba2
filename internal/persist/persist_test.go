package persist

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/dgallion1/sopmaster/internal/blobstore"
	"github.com/dgallion1/sopmaster/internal/kv"
	"github.com/dgallion1/sopmaster/internal/sop"
)

var (
	quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))
	fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

func newAdapter(store kv.Store, blobs *blobstore.Store, opts Options) *Adapter {
	a := New(store, blobs, quietLog, opts)
	a.now = func() time.Time { return fixedNow }
	return a
}

// sampleDoc builds a document with two parts and three steps, the first two
// with images.
func sampleDoc(blobs *blobstore.Store) sop.Document {
	doc := sop.Default(fixedNow)
	doc.Title = "Pack Widget"
	doc.Designer = "R. Chen"
	doc.Model = "W-100"
	doc.Parts[0].PartName = "Carton"
	doc.Parts[0].Quantity = "1"
	doc.Parts = append(doc.Parts, sop.PartRow{ID: sop.NewID(), PartName: "Tape", Quantity: "0.5 m"})

	img1 := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	img2 := []byte{0xff, 0xd8, 0xff, 4, 5}
	doc.Steps = []sop.Step{
		{ID: "s1", Description: "Place widget", Image: &sop.Image{Handle: blobs.Put(img1, "image/png"), MimeType: "image/png", Name: "a.png", Size: int64(len(img1))}},
		{ID: "s2", Description: "Close lid\nPress firmly", Image: &sop.Image{Handle: blobs.Put(img2, "image/jpeg"), MimeType: "image/jpeg", Size: int64(len(img2))}, Busy: true},
		{ID: "s3", Description: "Seal"},
	}
	return doc
}

func blobBytes(t *testing.T, blobs *blobstore.Store, s sop.Step) []byte {
	t.Helper()
	if !s.HasImage() {
		t.Fatalf("step %s has no image", s.ID)
	}
	b, ok := blobs.Get(s.Image.Handle)
	if !ok {
		t.Fatalf("step %s handle %s does not resolve", s.ID, s.Image.Handle)
	}
	return b.Data
}

func TestAdapter_LoadEmptyStoreGivesDefaults(t *testing.T) {
	a := newAdapter(kv.NewMemory(), blobstore.New(), Options{AIEnabledDefault: true})
	doc, ai := a.Load(context.Background())
	if doc.Title != sop.DefaultTitle || doc.Version != "1.0" || doc.Date != "2026-03-14" {
		t.Errorf("unexpected default header %+v", doc.Header)
	}
	if len(doc.Parts) != 1 || len(doc.Steps) != 2 {
		t.Errorf("expected 1 part and 2 steps, got %d and %d", len(doc.Parts), len(doc.Steps))
	}
	if !ai {
		t.Error("expected AI enabled by default")
	}
}

func TestAdapter_SaveLoadRoundTripAcrossRestart(t *testing.T) {
	store := kv.NewMemory()
	blobs := blobstore.New()
	doc := sampleDoc(blobs)

	a := newAdapter(store, blobs, Options{PersistImageData: true})
	if err := a.Save(context.Background(), doc, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	restarted := blobstore.New()
	b := newAdapter(store, restarted, Options{PersistImageData: true, AIEnabledDefault: true})
	got, ai := b.Load(context.Background())

	if ai {
		t.Error("expected saved AI preference false")
	}
	if !reflect.DeepEqual(got.Header, doc.Header) {
		t.Errorf("header mismatch:\n got %+v\nwant %+v", got.Header, doc.Header)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(got.Steps))
	}
	for i, s := range got.Steps {
		if s.ID != doc.Steps[i].ID || s.Description != doc.Steps[i].Description {
			t.Errorf("step %d mismatch: %+v", i, s)
		}
		if s.Busy {
			t.Errorf("step %d busy flag should be reset on load", i)
		}
	}
	for i := 0; i < 2; i++ {
		if !bytes.Equal(blobBytes(t, restarted, got.Steps[i]), blobBytes(t, blobs, doc.Steps[i])) {
			t.Errorf("step %d image bytes differ", i)
		}
		if got.Steps[i].Image.MimeType != doc.Steps[i].Image.MimeType {
			t.Errorf("step %d mime differs", i)
		}
	}
	if got.Steps[0].Image.Name != "a.png" {
		t.Errorf("expected image name kept, got %q", got.Steps[0].Image.Name)
	}
	if got.Steps[2].Image != nil {
		t.Error("expected step without image to stay empty")
	}
}

func TestAdapter_HandlesOnlyWithoutImageData(t *testing.T) {
	store := kv.NewMemory()
	blobs := blobstore.New()
	doc := sampleDoc(blobs)

	a := newAdapter(store, blobs, Options{})
	if err := a.Save(context.Background(), doc, true); err != nil {
		t.Fatalf("save: %v", err)
	}

	same, _ := a.Load(context.Background())
	if same.Steps[0].Image == nil || same.Steps[0].Image.Handle != doc.Steps[0].Image.Handle {
		t.Error("expected live handle kept within the same process")
	}

	fresh, _ := newAdapter(store, blobstore.New(), Options{}).Load(context.Background())
	for i, s := range fresh.Steps {
		if s.Image != nil {
			t.Errorf("step %d: expected stale handle dropped", i)
		}
	}
	if fresh.Steps[1].Description != "Close lid\nPress firmly" {
		t.Errorf("expected description kept, got %q", fresh.Steps[1].Description)
	}
}

func TestAdapter_CorruptKeysFallBackIndependently(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()
	store.Put(ctx, KeyDocInfo, []byte(`{"title": "Broken`))
	store.Put(ctx, KeySteps, []byte(`[{"id":"x","description":"kept"}]`))
	store.Put(ctx, KeyUseAI, []byte(`"maybe"`))

	a := newAdapter(store, blobstore.New(), Options{AIEnabledDefault: true})
	doc, ai := a.Load(ctx)

	if doc.Title != sop.DefaultTitle {
		t.Errorf("expected default title after corrupt header, got %q", doc.Title)
	}
	if len(doc.Steps) != 1 || doc.Steps[0].Description != "kept" {
		t.Errorf("expected steps loaded independently, got %+v", doc.Steps)
	}
	if !ai {
		t.Error("expected AI default after corrupt preference")
	}
}

func TestAdapter_CorruptStepsGiveDefaultSteps(t *testing.T) {
	store := kv.NewMemory()
	store.Put(context.Background(), KeySteps, []byte(`{"not":"an array"}`))
	doc, _ := newAdapter(store, blobstore.New(), Options{}).Load(context.Background())
	if len(doc.Steps) != 2 {
		t.Errorf("expected two default steps, got %d", len(doc.Steps))
	}
}

type failingStore struct{ kv.Store }

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestAdapter_StoreErrorsFallBack(t *testing.T) {
	a := newAdapter(failingStore{kv.NewMemory()}, blobstore.New(), Options{AIEnabledDefault: true})
	doc, ai := a.Load(context.Background())
	if doc.Title != sop.DefaultTitle || !ai {
		t.Errorf("expected defaults, got %q ai=%v", doc.Title, ai)
	}
}

func TestAdapter_ClearKeepsAIPreference(t *testing.T) {
	store := kv.NewMemory()
	blobs := blobstore.New()
	a := newAdapter(store, blobs, Options{AIEnabledDefault: true})
	ctx := context.Background()
	if err := a.Save(ctx, sampleDoc(blobs), false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := a.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Get(ctx, KeyDocInfo); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expected doc info removed, got %v", err)
	}
	if _, err := store.Get(ctx, KeySteps); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expected steps removed, got %v", err)
	}
	if _, ai := a.Load(ctx); ai {
		t.Error("expected AI preference to survive clear")
	}
}

func TestAdapter_SaveAI(t *testing.T) {
	store := kv.NewMemory()
	a := newAdapter(store, blobstore.New(), Options{AIEnabledDefault: true})
	if err := a.SaveAI(context.Background(), false); err != nil {
		t.Fatalf("save ai: %v", err)
	}
	raw, _ := store.Get(context.Background(), KeyUseAI)
	if string(raw) != "false" {
		t.Errorf("expected false, got %s", raw)
	}
}
