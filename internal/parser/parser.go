// Package parser recovers a document from a sheet this service exported
// earlier, so a .doc or .docx file can be brought back into the editor. It
// also reads and writes the parts list as CSV.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/sopmaster/internal/persist"
	"github.com/dgallion1/sopmaster/internal/sop"
)

// Parser converts an exported sheet into a project that can be imported.
type Parser interface {
	Parse(r io.Reader, filename string) (*persist.ProjectFile, error)
}

// SupportedExtensions lists the sheet formats that can be read back.
var SupportedExtensions = map[string]bool{
	".doc":  true,
	".html": true,
	".htm":  true,
	".docx": true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".doc", ".html", ".htm":
		return &WordHTMLParser{}, nil
	case ".docx":
		return &DocxParser{}, nil
	default:
		return nil, fmt.Errorf("%w: file extension %q", sop.ErrUnsupportedType, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// baseTitle is the fallback title taken from the file name.
func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// metaKeys maps display labels to metadata keys.
var metaKeys = func() map[string]string {
	m := make(map[string]string)
	for _, f := range (sop.Metadata{}).Fields() {
		m[strings.ToLower(f.Label)] = f.Key
	}
	return m
}()

// parseMetaLine reads "Version: 1.0 | Model: X" into md. It reports whether
// any known label was found.
func parseMetaLine(line string, md *sop.Metadata) bool {
	found := false
	for _, seg := range strings.Split(line, "|") {
		label, value, ok := strings.Cut(seg, ":")
		if !ok {
			continue
		}
		key, known := metaKeys[strings.ToLower(strings.TrimSpace(label))]
		if !known {
			continue
		}
		md.Set(key, strings.TrimSpace(value))
		found = true
	}
	return found
}

// newProject returns a project with an empty header, so that fields missing
// from the sheet stay empty rather than taking today's defaults.
func newProject(title string) *persist.ProjectFile {
	return &persist.ProjectFile{DocInfo: sop.Header{Title: title}, Steps: []persist.ProjectStep{}}
}
