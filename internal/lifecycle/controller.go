// Package lifecycle drives a step from empty through captioning to ready.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/sopmaster/internal/caption"
	"github.com/dgallion1/sopmaster/internal/editor"
	"github.com/dgallion1/sopmaster/internal/imaging"
	"github.com/dgallion1/sopmaster/internal/metrics"
	"github.com/dgallion1/sopmaster/internal/sop"
)

const defaultMaxImageBytes = 10 << 20

// Upload is an image file received from the user.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Config tunes the controller.
type Config struct {
	MaxImageBytes  int64
	CaptionTimeout time.Duration
}

// Controller attaches images to steps and runs caption requests. Results are
// written back through the session only if no newer request was issued for
// the step in the meantime.
type Controller struct {
	session   *editor.Session
	captioner caption.Captioner
	cfg       Config
	log       *slog.Logger

	// base is the parent of every caption request; cancelling it aborts
	// requests still in flight at shutdown.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(session *editor.Session, captioner caption.Captioner, cfg Config, log *slog.Logger) *Controller {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	if cfg.CaptionTimeout <= 0 {
		cfg.CaptionTimeout = 60 * time.Second
	}
	if captioner == nil {
		captioner = caption.Unavailable{}
	}
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		session:   session,
		captioner: captioner,
		cfg:       cfg,
		log:       log,
		base:      base,
		cancel:    cancel,
	}
}

// AttachImage validates the upload, stores it and sets it as the step's
// image. With AI enabled it marks the step busy and starts a caption request;
// otherwise the description is left alone. Validation failures leave the
// document unchanged.
func (c *Controller) AttachImage(ctx context.Context, stepID string, up Upload) (sop.Step, error) {
	if _, ok := c.session.Step(stepID); !ok {
		return sop.Step{}, sop.ErrStepNotFound
	}

	mimeType := imaging.DetectType(up.MimeType, up.Data)
	if !imaging.IsImageType(mimeType) {
		return sop.Step{}, &sop.ValidationError{Field: "image", Err: sop.ErrUnsupportedType, Detail: mimeType}
	}
	if int64(len(up.Data)) > c.cfg.MaxImageBytes {
		return sop.Step{}, &sop.ValidationError{
			Field:  "image",
			Err:    sop.ErrTooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds limit of %d", len(up.Data), c.cfg.MaxImageBytes),
		}
	}

	aiEnabled := c.session.AIEnabled()
	handle := c.session.Blobs().Put(up.Data, mimeType)
	img := sop.Image{Handle: handle, MimeType: mimeType, Name: up.Name, Size: int64(len(up.Data))}

	token, err := c.session.AttachImage(ctx, stepID, img, aiEnabled)
	if err != nil {
		c.session.Blobs().Release(handle)
		return sop.Step{}, err
	}
	c.log.Info("image attached", "step_id", stepID, "mime_type", mimeType, "size", len(up.Data), "ai", aiEnabled)

	if aiEnabled {
		c.start(stepID, token, img)
	}
	step, _ := c.session.Step(stepID)
	return step, nil
}

// RequestCaption asks for a fresh caption of the step's current image,
// superseding any request already in flight. Caption failures are reported
// through a notice, never to the caller.
func (c *Controller) RequestCaption(ctx context.Context, stepID string) (sop.Step, error) {
	token, img, err := c.session.BeginCaption(ctx, stepID)
	if err != nil {
		return sop.Step{}, err
	}
	c.start(stepID, token, img)
	step, _ := c.session.Step(stepID)
	return step, nil
}

func (c *Controller) start(stepID string, token uint64, img sop.Image) {
	blob, ok := c.session.Blobs().Get(img.Handle)
	if !ok {
		c.finish(stepID, token, "", &sop.CaptionError{Err: errors.New("image no longer available")}, 0)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		metrics.CaptionsInFlight.Inc()
		defer metrics.CaptionsInFlight.Dec()

		ctx, cancel := context.WithTimeout(c.base, c.cfg.CaptionTimeout)
		defer cancel()
		start := time.Now()
		text, err := c.captioner.GenerateCaption(ctx, blob.Data, blob.MimeType)
		c.finish(stepID, token, text, err, time.Since(start))
	}()
}

// finish applies a caption result if its token is still current.
func (c *Controller) finish(stepID string, token uint64, text string, err error, elapsed time.Duration) {
	log := c.log.With("step_id", stepID, "token", token)
	notBusy := false
	patch := sop.StepPatch{Busy: &notBusy}

	notice := ""
	if err == nil {
		if cleaned, ok := caption.Clean(text); ok {
			patch.Description = &cleaned
		} else {
			err = &sop.CaptionError{Err: caption.ErrEmptyCaption}
		}
	}
	if err != nil {
		notice = caption.NoticeFailed
		if errors.Is(err, caption.ErrEmptyCaption) {
			notice = caption.NoticeEmpty
		}
	}

	ctx := context.Background()
	if !c.session.ApplyIfCurrent(ctx, stepID, token, patch) {
		metrics.RecordCaption("stale", elapsed)
		log.Debug("discarding superseded caption result")
		return
	}
	if err != nil {
		metrics.RecordCaption("failed", elapsed)
		log.Warn("caption failed", "error", err)
		c.session.AddNotice(editor.NoticeCaption, stepID, notice)
		return
	}
	metrics.RecordCaption("applied", elapsed)
	log.Info("caption applied", "duration_ms", elapsed.Milliseconds())
}

// Wait blocks until every caption request started so far has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight requests and waits for them to finish.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// CaptionAvailable reports whether caption requests can currently be served.
func (c *Controller) CaptionAvailable() bool {
	return caption.Available(c.captioner)
}
