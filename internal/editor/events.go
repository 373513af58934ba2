package editor

import "sync"

// EventKind names what changed.
type EventKind string

const (
	EventDocument EventKind = "document"
	EventHeader   EventKind = "header"
	EventParts    EventKind = "parts"
	EventStep     EventKind = "step"
	EventSteps    EventKind = "steps"
	EventNotices  EventKind = "notices"
	EventSettings EventKind = "settings"
)

// Event tells subscribers to refetch part of the state.
type Event struct {
	Seq    uint64    `json:"seq"`
	Kind   EventKind `json:"kind"`
	StepID string    `json:"stepId,omitempty"`
}

const subscriberBuffer = 32

// broker fans events out to subscribers. A subscriber that falls behind
// misses events rather than blocking the session.
type broker struct {
	mu   sync.Mutex
	seq  uint64
	subs map[chan Event]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[chan Event]struct{})}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broker) publish(kind EventKind, stepID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev := Event{Seq: b.seq, Kind: kind, StepID: stepID}
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
