package caption

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dgallion1/sopmaster/internal/sop"
)

// BreakerSettings configures the circuit breaker around a provider.
type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// Resilient wraps a provider with retries, a circuit breaker, output cleanup
// and latency stats. Every error it returns is a *sop.CaptionError.
type Resilient struct {
	next    Captioner
	cb      *gobreaker.CircuitBreaker
	stats   *Stats
	log     *slog.Logger
	backoff func(attempt int) time.Duration
}

func NewResilient(next Captioner, bs BreakerSettings, stats *Stats, log *slog.Logger) *Resilient {
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "caption",
		MaxRequests: 1,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Resilient{
		next:    next,
		cb:      cb,
		stats:   stats,
		log:     log,
		backoff: Backoff,
	}
}

// GenerateCaption calls the provider, retrying transient failures.
func (r *Resilient) GenerateCaption(ctx context.Context, image []byte, mimeType string) (string, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		out, err := r.cb.Execute(func() (interface{}, error) {
			return r.next.GenerateCaption(ctx, image, mimeType)
		})
		elapsed := time.Since(start)
		if r.stats != nil {
			r.stats.Record(elapsed, err != nil)
		}

		if err == nil {
			text, ok := Clean(out.(string))
			if !ok {
				return "", &sop.CaptionError{Err: ErrEmptyCaption}
			}
			return text, nil
		}

		if !IsRetryable(err) || attempt+1 >= MaxRetries {
			return "", &sop.CaptionError{Err: err}
		}
		wait := r.backoff(attempt)
		r.log.Warn("caption request failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return "", &sop.CaptionError{Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

// Available is false while the breaker is open or no provider is configured.
func (r *Resilient) Available() bool {
	return Available(r.next) && r.cb.State() != gobreaker.StateOpen
}
