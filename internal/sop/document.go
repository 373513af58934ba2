package sop

import "time"

const (
	DefaultTitle = "Product Packaging SOP"
	ResetTitle   = "New Product SOP"
	DefaultVer   = "1.0"

	dateLayout = "2006-01-02"
)

// Metadata holds the free-text header fields of a sheet. No field depends on another.
type Metadata struct {
	Designer       string `json:"designer"`
	Date           string `json:"date"`
	Version        string `json:"version"`
	Model          string `json:"model"`
	ProjectName    string `json:"projectName"`
	ProjectManager string `json:"pm"`
	ProductLine    string `json:"productLine"`
}

// Header is the document title, metadata and bill of materials.
type Header struct {
	Title string `json:"title"`
	Metadata
	Parts []PartRow `json:"parts"`
}

// PartRow is one bill-of-materials line.
type PartRow struct {
	ID          string `json:"id"`
	PartNumber  string `json:"partNumber"`
	PartName    string `json:"partName"`
	Description string `json:"partDescription"`
	Quantity    string `json:"quantity"`
}

// IsBlank reports whether every user-editable field is empty.
func (p PartRow) IsBlank() bool {
	return p.PartNumber == "" && p.PartName == "" && p.Description == "" && p.Quantity == ""
}

// Image references step image bytes held in the session blob store.
type Image struct {
	Handle   string `json:"handle"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size"`
}

// Step is one SOP row: an image plus an instruction.
type Step struct {
	ID          string `json:"id"`
	Image       *Image `json:"image"`
	Description string `json:"description"`
	Busy        bool   `json:"isAnalyzing"`
}

// HasImage reports whether the step has an attached image.
func (s Step) HasImage() bool {
	return s.Image != nil && s.Image.Handle != ""
}

// Document is the full in-memory SOP.
type Document struct {
	Header
	Steps []Step `json:"steps"`
}

// MetaField is a labelled metadata value in display order.
type MetaField struct {
	Key   string
	Label string
	Value string
}

// Fields returns the metadata in the order exports display it.
func (m Metadata) Fields() []MetaField {
	return []MetaField{
		{Key: "version", Label: "Version", Value: m.Version},
		{Key: "model", Label: "Model", Value: m.Model},
		{Key: "designer", Label: "Designer", Value: m.Designer},
		{Key: "date", Label: "Date", Value: m.Date},
		{Key: "projectName", Label: "Project", Value: m.ProjectName},
		{Key: "pm", Label: "PM", Value: m.ProjectManager},
		{Key: "productLine", Label: "Product Line", Value: m.ProductLine},
	}
}

// Set assigns a metadata value by its JSON key. Unknown keys are ignored.
func (m *Metadata) Set(key, value string) {
	switch key {
	case "designer":
		m.Designer = value
	case "date":
		m.Date = value
	case "version":
		m.Version = value
	case "model":
		m.Model = value
	case "projectName":
		m.ProjectName = value
	case "pm":
		m.ProjectManager = value
	case "productLine":
		m.ProductLine = value
	}
}

// DefaultHeader returns the header a new session starts with.
func DefaultHeader(now time.Time) Header {
	return Header{
		Title: DefaultTitle,
		Metadata: Metadata{
			Date:    now.Format(dateLayout),
			Version: DefaultVer,
		},
		Parts: []PartRow{NewPartRow()},
	}
}

// DefaultSteps returns the two empty steps a new document starts with.
func DefaultSteps() []Step {
	return []Step{NewStep(), NewStep()}
}

// Default returns the built-in starting document.
func Default(now time.Time) Document {
	return Document{Header: DefaultHeader(now), Steps: DefaultSteps()}
}

// Blank returns the document produced by a reset.
func Blank(now time.Time) Document {
	d := Default(now)
	d.Title = ResetTitle
	return d
}

func NewStep() Step {
	return Step{ID: NewID()}
}

func NewPartRow() PartRow {
	return PartRow{ID: NewID()}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (d Document) Clone() Document {
	out := d
	out.Parts = append([]PartRow(nil), d.Parts...)
	out.Steps = make([]Step, len(d.Steps))
	for i, s := range d.Steps {
		if s.Image != nil {
			img := *s.Image
			s.Image = &img
		}
		out.Steps[i] = s
	}
	return out
}

// Normalize repairs shape after decoding untrusted input: nil slices, missing
// or duplicate ids, and an empty parts list.
func (d *Document) Normalize() {
	seen := make(map[string]bool)
	for i := range d.Parts {
		if d.Parts[i].ID == "" || seen[d.Parts[i].ID] {
			d.Parts[i].ID = NewID()
		}
		seen[d.Parts[i].ID] = true
	}
	if len(d.Parts) == 0 {
		d.Parts = []PartRow{NewPartRow()}
	}

	clear(seen)
	for i := range d.Steps {
		if d.Steps[i].ID == "" || seen[d.Steps[i].ID] {
			d.Steps[i].ID = NewID()
		}
		seen[d.Steps[i].ID] = true
		if d.Steps[i].Image != nil && d.Steps[i].Image.Handle == "" {
			d.Steps[i].Image = nil
		}
	}
	if d.Steps == nil {
		d.Steps = []Step{}
	}
}

// Handles returns every image handle referenced by the document.
func (d Document) Handles() []string {
	var out []string
	for _, s := range d.Steps {
		if s.HasImage() {
			out = append(out, s.Image.Handle)
		}
	}
	return out
}
