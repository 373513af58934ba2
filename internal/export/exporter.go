// Package export renders a document snapshot as a Word-compatible HTML file,
// a native .docx file or a printable page.
package export

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dgallion1/sopmaster/internal/blobstore"
	"github.com/dgallion1/sopmaster/internal/imaging"
	"github.com/dgallion1/sopmaster/internal/metrics"
	"github.com/dgallion1/sopmaster/internal/sop"
)

// ErrExportInProgress is returned when another export is still being assembled.
var ErrExportInProgress = errors.New("export already in progress")

const (
	defaultWidth   = 1200
	defaultQuality = 90
)

// Config controls image resampling for exports.
type Config struct {
	Width       int
	Quality     int
	Policy      imaging.Policy
	Concurrency int
}

// Result is a finished export ready to be served as a download.
type Result struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Exporter assembles exports from document snapshots. Only one export runs at
// a time.
type Exporter struct {
	blobs *blobstore.Store
	cfg   Config
	log   *slog.Logger
	busy  atomic.Bool
}

func New(blobs *blobstore.Store, cfg Config, log *slog.Logger) *Exporter {
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = defaultQuality
	}
	if cfg.Policy == "" {
		cfg.Policy = imaging.Fit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Exporter{blobs: blobs, cfg: cfg, log: log}
}

// Busy reports whether an export is being assembled.
func (e *Exporter) Busy() bool {
	return e.busy.Load()
}

func (e *Exporter) acquire() (func(), error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrExportInProgress
	}
	return func() { e.busy.Store(false) }, nil
}

// run guards, times and records one export, wrapping unexpected failures.
func (e *Exporter) run(format string, build func() (Result, error)) (Result, error) {
	release, err := e.acquire()
	if err != nil {
		return Result{}, err
	}
	defer release()

	start := time.Now()
	res, err := build()
	metrics.RecordExport(format, err, time.Since(start))
	if err != nil {
		var ee *sop.ExportError
		if !errors.As(err, &ee) {
			err = &sop.ExportError{Format: format, Err: err}
		}
		e.log.Error("export failed", "format", format, "error", err)
		return Result{}, err
	}
	e.log.Info("export complete", "format", format, "file", res.Filename, "bytes", len(res.Body))
	return res, nil
}

// rendered is a step image resampled to the export width.
type rendered struct {
	JPEG   []byte
	Width  int
	Height int
}

// renderImages resamples every imaged step with bounded concurrency. The
// result is indexed like doc.Steps; nil marks a step with no image or one that
// could not be resampled.
func (e *Exporter) renderImages(ctx context.Context, steps []sop.Step) ([]*rendered, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*rendered, len(steps))

	type result struct {
		idx int
		img *rendered
		err error
	}
	results := make(chan result, len(steps))
	sem := make(chan struct{}, e.cfg.Concurrency)
	pending := 0

	for i, s := range steps {
		if !s.HasImage() {
			continue
		}
		blob, ok := e.blobs.Get(s.Image.Handle)
		if !ok {
			e.placeholder(s.ID, errors.New("image no longer available"))
			continue
		}
		pending++
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		go func(i int, data []byte) {
			defer func() { <-sem }()
			img, err := e.resample(data)
			results <- result{idx: i, img: img, err: err}
		}(i, blob.Data)
	}

	for range pending {
		var r result
		select {
		case r = <-results:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if r.err != nil {
			e.placeholder(steps[r.idx].ID, r.err)
			continue
		}
		out[r.idx] = r.img
	}
	return out, nil
}

func (e *Exporter) resample(data []byte) (*rendered, error) {
	src, _, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}
	dst := imaging.Resample(src, e.cfg.Width, e.cfg.Policy)
	buf, err := imaging.EncodeJPEG(dst, e.cfg.Quality)
	if err != nil {
		return nil, err
	}
	return &rendered{JPEG: buf, Width: dst.Bounds().Dx(), Height: dst.Bounds().Dy()}, nil
}

func (e *Exporter) placeholder(stepID string, err error) {
	metrics.ImagePlaceholdersTotal.Inc()
	e.log.Warn("step image replaced by placeholder", "step_id", stepID, "error", err)
}
