package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/dgallion1/sopmaster/internal/imaging"
	"github.com/dgallion1/sopmaster/internal/sop"
)

const (
	FormatWord    = "word"
	WordMimeType  = "application/msword"
	byteOrderMark = "\ufeff"
)

// WordHTML renders doc as an HTML file Word opens as a .doc. Images are
// resampled to the configured width and inlined as JPEG data URLs.
func (e *Exporter) WordHTML(ctx context.Context, doc sop.Document) (Result, error) {
	return e.run(FormatWord, func() (Result, error) {
		imgs, err := e.renderImages(ctx, doc.Steps)
		if err != nil {
			return Result{}, err
		}
		view := newSheetView(doc, func(i int, _ sop.Step) template.URL {
			if imgs[i] == nil {
				return ""
			}
			return template.URL(imaging.DataURL("image/jpeg", imgs[i].JPEG))
		})

		var buf bytes.Buffer
		buf.WriteString(byteOrderMark)
		if err := wordTmpl.Execute(&buf, page{sheetView: view, CSS: sheetCSS}); err != nil {
			return Result{}, fmt.Errorf("render word html: %w", err)
		}
		return Result{
			Filename:    Filename(doc.Title, "doc"),
			ContentType: WordMimeType,
			Body:        buf.Bytes(),
		}, nil
	})
}
