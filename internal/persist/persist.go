// Package persist saves the document to a key-value store and moves it in
// and out of the portable project file format.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/sopmaster/internal/blobstore"
	"github.com/dgallion1/sopmaster/internal/imaging"
	"github.com/dgallion1/sopmaster/internal/kv"
	"github.com/dgallion1/sopmaster/internal/metrics"
	"github.com/dgallion1/sopmaster/internal/sop"
)

// Storage keys.
const (
	KeyDocInfo = "sop_doc_info"
	KeySteps   = "sop_steps"
	KeyUseAI   = "sop_use_ai"
)

// Options control what the adapter writes.
type Options struct {
	// PersistImageData stores each step image as a data URL so images survive
	// a restart. Without it only the transient handle is stored.
	PersistImageData bool
	// AIEnabledDefault is used when no AI preference was saved.
	AIEnabledDefault bool
}

// Adapter reads and writes the document through a kv.Store.
type Adapter struct {
	store kv.Store
	blobs *blobstore.Store
	log   *slog.Logger
	opts  Options
	now   func() time.Time

	mu       sync.Mutex
	dataURLs map[string]string // handle -> data URL
}

func New(store kv.Store, blobs *blobstore.Store, log *slog.Logger, opts Options) *Adapter {
	return &Adapter{
		store:    store,
		blobs:    blobs,
		log:      log,
		opts:     opts,
		now:      time.Now,
		dataURLs: make(map[string]string),
	}
}

// storedStep is one element of the sop_steps value.
type storedStep struct {
	ID          string     `json:"id"`
	Image       *sop.Image `json:"image"`
	Description string     `json:"description"`
	IsAnalyzing bool       `json:"isAnalyzing"`
	ImageData   string     `json:"imageData,omitempty"`
}

// Save overwrites all three keys with the current state.
func (a *Adapter) Save(ctx context.Context, doc sop.Document, aiEnabled bool) error {
	info, err := json.Marshal(doc.Header)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", KeyDocInfo, err)
	}
	steps, err := json.Marshal(a.storedSteps(doc.Steps))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", KeySteps, err)
	}
	useAI, _ := json.Marshal(aiEnabled)

	for _, kvp := range []struct {
		key   string
		value []byte
	}{
		{KeyDocInfo, info},
		{KeySteps, steps},
		{KeyUseAI, useAI},
	} {
		if err := a.store.Put(ctx, kvp.key, kvp.value); err != nil {
			return fmt.Errorf("save %s: %w", kvp.key, err)
		}
	}
	return nil
}

// SaveAI writes only the AI preference.
func (a *Adapter) SaveAI(ctx context.Context, enabled bool) error {
	v, _ := json.Marshal(enabled)
	if err := a.store.Put(ctx, KeyUseAI, v); err != nil {
		return fmt.Errorf("save %s: %w", KeyUseAI, err)
	}
	return nil
}

func (a *Adapter) storedSteps(steps []sop.Step) []storedStep {
	out := make([]storedStep, len(steps))
	live := make(map[string]bool, len(steps))
	for i, s := range steps {
		out[i] = storedStep{
			ID:          s.ID,
			Image:       s.Image,
			Description: s.Description,
			IsAnalyzing: s.Busy,
		}
		if a.opts.PersistImageData && s.HasImage() {
			live[s.Image.Handle] = true
			out[i].ImageData = a.dataURL(s.Image.Handle)
		}
	}
	if a.opts.PersistImageData {
		a.mu.Lock()
		for h := range a.dataURLs {
			if !live[h] {
				delete(a.dataURLs, h)
			}
		}
		a.mu.Unlock()
	}
	return out
}

// dataURL encodes the blob behind handle once and reuses the result.
func (a *Adapter) dataURL(handle string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if u, ok := a.dataURLs[handle]; ok {
		return u
	}
	b, ok := a.blobs.Get(handle)
	if !ok {
		return ""
	}
	u := imaging.DataURL(b.MimeType, b.Data)
	a.dataURLs[handle] = u
	return u
}

// Load reads the saved state. Each key falls back to its default on its own
// when it is absent or unreadable; Load never fails.
func (a *Adapter) Load(ctx context.Context) (sop.Document, bool) {
	now := a.now()
	doc := sop.Document{Header: sop.DefaultHeader(now), Steps: sop.DefaultSteps()}

	if raw, ok := a.read(ctx, KeyDocInfo); ok {
		hdr := sop.DefaultHeader(now)
		hdr.Parts = nil
		if err := json.Unmarshal(raw, &hdr); err != nil {
			a.fallback(KeyDocInfo, err)
		} else {
			doc.Header = hdr
		}
	}

	if raw, ok := a.read(ctx, KeySteps); ok {
		var stored []storedStep
		if err := json.Unmarshal(raw, &stored); err != nil {
			a.fallback(KeySteps, err)
		} else {
			doc.Steps = a.restoreSteps(stored)
		}
	}

	aiEnabled := a.opts.AIEnabledDefault
	if raw, ok := a.read(ctx, KeyUseAI); ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			a.fallback(KeyUseAI, err)
		} else {
			aiEnabled = v
		}
	}

	doc.Normalize()
	return doc, aiEnabled
}

func (a *Adapter) read(ctx context.Context, key string) ([]byte, bool) {
	raw, err := a.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		a.fallback(key, err)
		return nil, false
	}
	return raw, true
}

func (a *Adapter) fallback(key string, err error) {
	metrics.LoadFallbacksTotal.WithLabelValues(key).Inc()
	a.log.Warn("persisted value unusable, using default", "key", key, "error", &sop.ParseError{Source: key, Err: err})
}

// restoreSteps rebuilds steps from storage. No caption request survives a
// restart, so busy flags are cleared. Images that can no longer be resolved
// are dropped.
func (a *Adapter) restoreSteps(stored []storedStep) []sop.Step {
	steps := make([]sop.Step, 0, len(stored))
	for _, st := range stored {
		s := sop.Step{ID: st.ID, Description: st.Description}
		switch {
		case st.ImageData != "":
			mime, data, err := imaging.ParseDataURL(st.ImageData)
			if err != nil {
				a.log.Warn("dropping unreadable step image", "step_id", st.ID, "error", err)
				break
			}
			img := sop.Image{MimeType: mime, Size: int64(len(data))}
			if st.Image != nil {
				img.Name = st.Image.Name
			}
			img.Handle = a.blobs.Put(data, mime)
			s.Image = &img
		case st.Image != nil && a.blobs.Has(st.Image.Handle):
			img := *st.Image
			s.Image = &img
		case st.Image != nil:
			a.log.Info("dropping stale image handle", "step_id", st.ID, "handle", st.Image.Handle)
		}
		steps = append(steps, s)
	}
	return steps
}

// Clear removes the saved document. The AI preference is kept.
func (a *Adapter) Clear(ctx context.Context) error {
	for _, key := range []string{KeyDocInfo, KeySteps} {
		if err := a.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	a.mu.Lock()
	clear(a.dataURLs)
	a.mu.Unlock()
	return nil
}
