package editor

import (
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/sopmaster/internal/sop"
)

// NoticeKind groups notices by the operation that raised them.
type NoticeKind string

const (
	NoticeCaption NoticeKind = "caption"
	NoticeImport  NoticeKind = "import"
	NoticeExport  NoticeKind = "export"
	NoticeStorage NoticeKind = "storage"
)

// Notice is a dismissible message for the user.
type Notice struct {
	ID        string     `json:"id"`
	Kind      NoticeKind `json:"kind"`
	StepID    string     `json:"stepId,omitempty"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NoticeStore is a thread-safe notice registry with TTL eviction.
type NoticeStore struct {
	mu      sync.Mutex
	notices map[string]Notice
	ttl     time.Duration
}

func NewNoticeStore(ttl time.Duration) *NoticeStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &NoticeStore{
		notices: make(map[string]Notice),
		ttl:     ttl,
	}
}

// Add records a notice. A step has at most one caption notice; a newer one
// replaces it.
func (s *NoticeStore) Add(kind NoticeKind, stepID, message string) Notice {
	n := Notice{
		ID:        sop.NewID(),
		Kind:      kind,
		StepID:    stepID,
		Message:   message,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if stepID != "" {
		s.removeStepLocked(stepID)
	}
	s.notices[n.ID] = n
	return n
}

// List returns live notices, oldest first.
func (s *NoticeStore) List() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(time.Now())
	out := make([]Notice, 0, len(s.notices))
	for _, n := range s.notices {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Dismiss removes a notice. It reports whether the notice existed.
func (s *NoticeStore) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notices[id]
	delete(s.notices, id)
	return ok
}

// ClearStep removes every notice attached to a step.
func (s *NoticeStore) ClearStep(stepID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeStepLocked(stepID)
}

// Reset drops all notices.
func (s *NoticeStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.notices)
}

func (s *NoticeStore) removeStepLocked(stepID string) bool {
	removed := false
	for id, n := range s.notices {
		if n.StepID == stepID {
			delete(s.notices, id)
			removed = true
		}
	}
	return removed
}

// cleanupLocked removes expired notices.
func (s *NoticeStore) cleanupLocked(now time.Time) {
	for id, n := range s.notices {
		if now.Sub(n.CreatedAt) > s.ttl {
			delete(s.notices, id)
		}
	}
}
