// Package editor owns the live document. Every mutation goes through the
// Session, is applied under one lock, persisted, and announced to
// subscribers.
package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/sopmaster/internal/blobstore"
	"github.com/dgallion1/sopmaster/internal/metrics"
	"github.com/dgallion1/sopmaster/internal/sop"
)

// Persister is the subset of the persistence adapter the session writes through.
type Persister interface {
	Save(ctx context.Context, doc sop.Document, aiEnabled bool) error
	SaveAI(ctx context.Context, enabled bool) error
	Clear(ctx context.Context) error
}

// Session is the single owner of the in-memory document.
type Session struct {
	mu        sync.Mutex
	doc       sop.Document
	aiEnabled bool

	// tokens holds the latest caption request token per step. Only a result
	// carrying the current token may write to the step.
	tokenSeq uint64
	tokens   map[string]uint64

	// saveFailing is set while saves fail so the user is told once.
	saveFailing bool

	blobs   *blobstore.Store
	persist Persister
	notices *NoticeStore
	events  *broker
	log     *slog.Logger
	now     func() time.Time
}

func NewSession(doc sop.Document, aiEnabled bool, blobs *blobstore.Store, persist Persister, log *slog.Logger) *Session {
	doc.Normalize()
	return &Session{
		doc:       doc,
		aiEnabled: aiEnabled,
		tokens:    make(map[string]uint64),
		blobs:     blobs,
		persist:   persist,
		notices:   NewNoticeStore(24 * time.Hour),
		events:    newBroker(),
		log:       log,
		now:       time.Now,
	}
}

// Blobs returns the store holding step image bytes.
func (s *Session) Blobs() *blobstore.Store { return s.blobs }

// Snapshot returns a deep copy of the current document.
func (s *Session) Snapshot() sop.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Step returns a copy of one step.
func (s *Session) Step(id string) (sop.Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Step(id)
}

// Subscribe returns a channel of change events and a function that ends the
// subscription.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// saveLocked persists the current state. Failures are logged and counted;
// the in-memory document stays authoritative.
func (s *Session) saveLocked(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := s.persist.Save(ctx, s.doc.Clone(), s.aiEnabled); err != nil {
		metrics.SaveErrorsTotal.Inc()
		s.log.Error("save document", "error", err)
		if !s.saveFailing {
			s.notices.Add(NoticeStorage, "", "Changes could not be saved. They are kept until the page is closed.")
		}
		s.saveFailing = true
		return
	}
	s.saveFailing = false
}

// AIEnabled reports the current AI captioning preference.
func (s *Session) AIEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiEnabled
}

// SetAIEnabled changes and persists the AI captioning preference.
func (s *Session) SetAIEnabled(ctx context.Context, enabled bool) {
	s.mu.Lock()
	s.aiEnabled = enabled
	if err := s.persist.SaveAI(context.WithoutCancel(ctx), enabled); err != nil {
		metrics.SaveErrorsTotal.Inc()
		s.log.Error("save ai preference", "error", err)
	}
	s.mu.Unlock()
	s.events.publish(EventSettings, "")
}

// UpdateHeader merges p into the header.
func (s *Session) UpdateHeader(ctx context.Context, p sop.HeaderPatch) sop.Header {
	s.mu.Lock()
	s.doc.UpdateHeader(p)
	s.saveLocked(ctx)
	hdr := s.doc.Clone().Header
	s.mu.Unlock()
	s.events.publish(EventHeader, "")
	return hdr
}

func (s *Session) AddPart(ctx context.Context) sop.PartRow {
	s.mu.Lock()
	row := s.doc.AddPart()
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.events.publish(EventParts, "")
	return row
}

func (s *Session) UpdatePart(ctx context.Context, id string, p sop.PartPatch) (sop.PartRow, error) {
	s.mu.Lock()
	row, err := s.doc.UpdatePart(id, p)
	if err != nil {
		s.mu.Unlock()
		return sop.PartRow{}, err
	}
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.events.publish(EventParts, "")
	return row, nil
}

// RemovePart deletes a part row. Removing the last row is a no-op that
// reports false.
func (s *Session) RemovePart(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	removed, err := s.doc.RemovePart(id)
	if err != nil || !removed {
		s.mu.Unlock()
		return removed, err
	}
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.events.publish(EventParts, "")
	return true, nil
}

// ReplaceParts swaps in a whole bill of materials, as after a CSV import.
func (s *Session) ReplaceParts(ctx context.Context, rows []sop.PartRow) []sop.PartRow {
	s.mu.Lock()
	out := s.doc.ReplaceParts(rows)
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.events.publish(EventParts, "")
	return out
}

func (s *Session) AddStep(ctx context.Context) sop.Step {
	s.mu.Lock()
	step := s.doc.AddStep()
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.events.publish(EventSteps, step.ID)
	return step
}

// UpdateStep applies a user edit. Image fields in p are ignored; images only
// change through the lifecycle methods.
func (s *Session) UpdateStep(ctx context.Context, id string, p sop.StepPatch) (sop.Step, error) {
	p = sop.StepPatch{Description: p.Description}
	s.mu.Lock()
	step, err := s.doc.UpdateStep(id, p)
	if err != nil {
		s.mu.Unlock()
		return sop.Step{}, err
	}
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.events.publish(EventStep, id)
	return step, nil
}

// DeleteStep removes a step, releases its image and forgets any in-flight
// caption request for it.
func (s *Session) DeleteStep(ctx context.Context, id string) (sop.Step, error) {
	s.mu.Lock()
	removed, err := s.doc.DeleteStep(id)
	if err != nil {
		s.mu.Unlock()
		return sop.Step{}, err
	}
	delete(s.tokens, id)
	if removed.HasImage() {
		s.blobs.Release(removed.Image.Handle)
	}
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.notices.ClearStep(id)
	s.events.publish(EventSteps, id)
	return removed, nil
}

// Replace swaps in a whole new document, as after an import. Pending caption
// results for the old document are discarded.
func (s *Session) Replace(ctx context.Context, doc sop.Document) {
	doc.Normalize()
	s.mu.Lock()
	s.releaseUnusedLocked(doc)
	s.doc = doc
	clear(s.tokens)
	s.notices.Reset()
	s.saveFailing = false
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.events.publish(EventDocument, "")
}

// Reset clears saved data and starts a blank document.
func (s *Session) Reset(ctx context.Context) sop.Document {
	blank := sop.Blank(s.now())
	s.mu.Lock()
	s.releaseUnusedLocked(blank)
	s.doc = blank
	clear(s.tokens)
	s.notices.Reset()
	s.saveFailing = false
	if err := s.persist.Clear(context.WithoutCancel(ctx)); err != nil {
		metrics.SaveErrorsTotal.Inc()
		s.log.Error("clear saved document", "error", err)
	}
	s.saveLocked(ctx)
	out := s.doc.Clone()
	s.mu.Unlock()
	s.events.publish(EventDocument, "")
	return out
}

// releaseUnusedLocked frees blobs the current document uses but next does not.
func (s *Session) releaseUnusedLocked(next sop.Document) {
	keep := make(map[string]bool)
	for _, h := range next.Handles() {
		keep[h] = true
	}
	for _, h := range s.doc.Handles() {
		if !keep[h] {
			s.blobs.Release(h)
		}
	}
}

// AttachImage sets a step's image and issues a new caption token, which
// supersedes any request already in flight for the step. When busy is true the
// step is marked as awaiting a caption.
func (s *Session) AttachImage(ctx context.Context, stepID string, img sop.Image, busy bool) (uint64, error) {
	s.mu.Lock()
	old, ok := s.doc.Step(stepID)
	if !ok {
		s.mu.Unlock()
		return 0, sop.ErrStepNotFound
	}
	if _, err := s.doc.UpdateStep(stepID, sop.StepPatch{Image: &img, Busy: &busy}); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	token := s.nextTokenLocked(stepID)
	if old.HasImage() && old.Image.Handle != img.Handle {
		s.blobs.Release(old.Image.Handle)
	}
	s.saveLocked(ctx)
	s.mu.Unlock()

	if s.notices.ClearStep(stepID) {
		s.events.publish(EventNotices, stepID)
	}
	s.events.publish(EventStep, stepID)
	return token, nil
}

// BeginCaption marks a step as awaiting a caption for its current image and
// returns the request token together with the image to caption.
func (s *Session) BeginCaption(ctx context.Context, stepID string) (uint64, sop.Image, error) {
	s.mu.Lock()
	step, ok := s.doc.Step(stepID)
	if !ok {
		s.mu.Unlock()
		return 0, sop.Image{}, sop.ErrStepNotFound
	}
	if !step.HasImage() {
		s.mu.Unlock()
		return 0, sop.Image{}, sop.ErrNoImage
	}
	busy := true
	s.doc.UpdateStep(stepID, sop.StepPatch{Busy: &busy})
	token := s.nextTokenLocked(stepID)
	s.saveLocked(ctx)
	s.mu.Unlock()

	if s.notices.ClearStep(stepID) {
		s.events.publish(EventNotices, stepID)
	}
	s.events.publish(EventStep, stepID)
	return token, *step.Image, nil
}

func (s *Session) nextTokenLocked(stepID string) uint64 {
	s.tokenSeq++
	s.tokens[stepID] = s.tokenSeq
	return s.tokenSeq
}

// ApplyIfCurrent merges p into the step only if token is still the step's
// latest caption token. It reports whether the patch was applied.
func (s *Session) ApplyIfCurrent(ctx context.Context, stepID string, token uint64, p sop.StepPatch) bool {
	s.mu.Lock()
	if s.tokens[stepID] != token {
		s.mu.Unlock()
		return false
	}
	delete(s.tokens, stepID)
	if _, err := s.doc.UpdateStep(stepID, p); err != nil {
		s.mu.Unlock()
		return false
	}
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.events.publish(EventStep, stepID)
	return true
}

// AddNotice records a dismissible notice.
func (s *Session) AddNotice(kind NoticeKind, stepID, message string) Notice {
	n := s.notices.Add(kind, stepID, message)
	s.events.publish(EventNotices, stepID)
	return n
}

// Notices returns the live notices, oldest first.
func (s *Session) Notices() []Notice {
	return s.notices.List()
}

// DismissNotice removes a notice. It reports whether it existed.
func (s *Session) DismissNotice(id string) bool {
	if !s.notices.Dismiss(id) {
		return false
	}
	s.events.publish(EventNotices, "")
	return true
}
