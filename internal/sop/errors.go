package sop

import (
	"errors"
	"fmt"
)

var (
	ErrStepNotFound    = errors.New("step not found")
	ErrPartNotFound    = errors.New("part not found")
	ErrNoImage         = errors.New("step has no image")
	ErrUnsupportedType = errors.New("unsupported type")
	ErrTooLarge        = errors.New("too large")
)

// ValidationError rejects user input at the point of interaction. State is
// never changed when one is returned.
type ValidationError struct {
	Field  string
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v (%s)", e.Field, e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CaptionError is a failed or unusable captioning call.
type CaptionError struct {
	Err error
}

func (e *CaptionError) Error() string { return fmt.Sprintf("caption: %v", e.Err) }

func (e *CaptionError) Unwrap() error { return e.Err }

// ParseError reports corrupt persisted state or a corrupt project file.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Source, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// ExportError aborts an export. A single image that fails to resample is not
// an ExportError; it degrades to a placeholder.
type ExportError struct {
	Format string
	Err    error
}

func (e *ExportError) Error() string { return fmt.Sprintf("export %s: %v", e.Format, e.Err) }

func (e *ExportError) Unwrap() error { return e.Err }
