package export

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/dgallion1/sopmaster/internal/sop"
)

// PrintHTML renders the printable page for doc. Images are referenced through
// imageURL rather than inlined, so the browser loads them from the API.
func (e *Exporter) PrintHTML(doc sop.Document, imageURL func(stepID string) string) ([]byte, error) {
	view := newSheetView(doc, func(_ int, s sop.Step) template.URL {
		if !s.HasImage() || !e.blobs.Has(s.Image.Handle) {
			return ""
		}
		return template.URL(imageURL(s.ID))
	})
	var buf bytes.Buffer
	if err := printTmpl.Execute(&buf, page{sheetView: view, CSS: sheetCSS}); err != nil {
		return nil, &sop.ExportError{Format: "print", Err: fmt.Errorf("render print view: %w", err)}
	}
	return buf.Bytes(), nil
}
