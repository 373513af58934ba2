// Package caption generates step descriptions from step images using a
// hosted vision model.
package caption

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Prompt is sent with every image.
const Prompt = `Please provide a concise and professional description of the operation step shown in this image for a product packaging SOP. Use English. The tone should be imperative and instructional, like 'Place the product into the carton' or 'Seal with tape'. Avoid unnecessary introductory phrases.`

// Notice texts shown to the user when no caption could be applied.
const (
	NoticeEmpty  = "Unable to generate description. Please enter manually."
	NoticeFailed = "AI analysis failed. Please check network or enter manually."
)

const maxCaptionRunes = 1000

var (
	// ErrUnavailable is returned when no provider is configured.
	ErrUnavailable = errors.New("captioning is not configured")
	// ErrEmptyCaption is returned when the provider answered with no usable text.
	ErrEmptyCaption = errors.New("empty caption")
)

// Captioner turns an image into a short instructional description.
type Captioner interface {
	GenerateCaption(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Available reports whether c can currently be asked for a caption.
func Available(c Captioner) bool {
	if c == nil {
		return false
	}
	if a, ok := c.(interface{ Available() bool }); ok {
		return a.Available()
	}
	return true
}

// Unavailable is the Captioner used when CAPTION_PROVIDER=none.
type Unavailable struct{}

func (Unavailable) GenerateCaption(context.Context, []byte, string) (string, error) {
	return "", ErrUnavailable
}

func (Unavailable) Available() bool { return false }

var codeBlockRe = regexp.MustCompile("(?s)^```(?:[a-z]+)?\\s*(.*?)\\s*```$")

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

// Clean normalizes provider output into a description. It reports false when
// nothing usable is left.
func Clean(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	s = strings.TrimSpace(strings.Trim(s, "\"'"))
	if utf8.RuneCountInString(s) < 3 {
		return "", false
	}
	if injectionPattern.MatchString(s) {
		return "", false
	}
	return truncate(s, maxCaptionRunes), true
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
