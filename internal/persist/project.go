package persist

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgallion1/sopmaster/internal/imaging"
	"github.com/dgallion1/sopmaster/internal/sop"
)

const (
	projectSource = "project file"
	importSource  = "imported sheet"
)

// ProjectStep is one step of a project file.
type ProjectStep struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	ImageData   string `json:"imageData,omitempty"`
}

// ProjectFile is the portable, self-contained form of a document.
type ProjectFile struct {
	DocInfo sop.Header    `json:"docInfo"`
	Steps   []ProjectStep `json:"steps"`
}

// ExportProject serializes doc with every step image inlined as a data URL of
// its original bytes.
func (a *Adapter) ExportProject(doc sop.Document) ([]byte, error) {
	pf := ProjectFile{
		DocInfo: doc.Header,
		Steps:   make([]ProjectStep, len(doc.Steps)),
	}
	for i, s := range doc.Steps {
		pf.Steps[i] = ProjectStep{ID: s.ID, Description: s.Description}
		if !s.HasImage() {
			continue
		}
		b, ok := a.blobs.Get(s.Image.Handle)
		if !ok {
			return nil, &sop.ExportError{Format: "project", Err: fmt.Errorf("step %s: image no longer available", s.ID)}
		}
		pf.Steps[i].ImageData = imaging.DataURL(b.MimeType, b.Data)
	}
	out, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return nil, &sop.ExportError{Format: "project", Err: err}
	}
	return out, nil
}

// ImportProject parses a project file into a new document. It is all or
// nothing: on error no blobs stay registered and the caller's document is
// not touched. Absent fields take their default values and unknown fields
// are ignored.
func (a *Adapter) ImportProject(data []byte) (sop.Document, error) {
	var raw struct {
		DocInfo json.RawMessage `json:"docInfo"`
		Steps   []ProjectStep   `json:"steps"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return sop.Document{}, &sop.ParseError{Source: projectSource, Err: err}
	}

	pf := ProjectFile{DocInfo: sop.DefaultHeader(a.now()), Steps: raw.Steps}
	if len(raw.DocInfo) > 0 && !bytes.Equal(raw.DocInfo, []byte("null")) {
		pf.DocInfo.Parts = nil
		if err := json.Unmarshal(raw.DocInfo, &pf.DocInfo); err != nil {
			return sop.Document{}, &sop.ParseError{Source: projectSource, Err: fmt.Errorf("docInfo: %w", err)}
		}
	}
	return a.build(projectSource, pf)
}

// Import turns an already decoded project, such as one recovered from an
// exported sheet, into a new document with the same guarantees as
// ImportProject.
func (a *Adapter) Import(pf ProjectFile) (sop.Document, error) {
	return a.build(importSource, pf)
}

func (a *Adapter) build(source string, pf ProjectFile) (doc sop.Document, err error) {
	doc.Header = pf.DocInfo
	if pf.Steps == nil {
		doc.Steps = sop.DefaultSteps()
		doc.Normalize()
		return doc, nil
	}

	var registered []string
	defer func() {
		if err != nil {
			a.blobs.Release(registered...)
		}
	}()

	doc.Steps = make([]sop.Step, 0, len(pf.Steps))
	for i, ps := range pf.Steps {
		s := sop.Step{ID: ps.ID, Description: ps.Description}
		if ps.ImageData != "" {
			mime, data, perr := imaging.ParseDataURL(ps.ImageData)
			if perr != nil {
				return sop.Document{}, &sop.ParseError{Source: source, Err: fmt.Errorf("step %d image: %w", i+1, perr)}
			}
			if !imaging.IsImageType(mime) {
				return sop.Document{}, &sop.ParseError{Source: source, Err: fmt.Errorf("step %d image: %w %s", i+1, sop.ErrUnsupportedType, mime)}
			}
			h := a.blobs.Put(data, mime)
			registered = append(registered, h)
			s.Image = &sop.Image{Handle: h, MimeType: mime, Size: int64(len(data))}
		}
		doc.Steps = append(doc.Steps, s)
	}
	doc.Normalize()
	return doc, nil
}
