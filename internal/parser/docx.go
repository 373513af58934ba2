package parser

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"strings"

	"github.com/dgallion1/sopmaster/internal/imaging"
	"github.com/dgallion1/sopmaster/internal/persist"
	"github.com/dgallion1/sopmaster/internal/sop"
	"github.com/fumiama/go-docx"
)

// DocxParser reads the native .docx sheet.
type DocxParser struct{}

func (p *DocxParser) Parse(r io.Reader, filename string) (*persist.ProjectFile, error) {
	// go-docx needs a ReaderAt+size, so write to temp file.
	tmp, err := os.CreateTemp("", "sopmaster-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	pf := newProject(baseTitle(filename))
	titled := false
	for _, item := range doc.Document.Body.Items {
		switch v := item.(type) {
		case *docx.Paragraph:
			text := docxParagraphText(v)
			if text == "" {
				continue
			}
			if !titled {
				pf.DocInfo.Title = text
				titled = true
				continue
			}
			parseMetaLine(text, &pf.DocInfo.Metadata)
		case *docx.Table:
			if isPartsTable(v) {
				pf.DocInfo.Parts = docxParts(v)
				continue
			}
			pf.Steps = append(pf.Steps, docxSteps(doc, v)...)
		}
	}
	if len(pf.Steps) == 0 {
		return nil, fmt.Errorf("no steps found in %s", filename)
	}
	return pf, nil
}

func isPartsTable(t *docx.Table) bool {
	if len(t.TableRows) == 0 || len(t.TableRows[0].TableCells) == 0 {
		return false
	}
	return cellText(t.TableRows[0].TableCells[0]) == "Part Number"
}

func docxParts(t *docx.Table) []sop.PartRow {
	var rows []sop.PartRow
	for _, tr := range t.TableRows[1:] {
		vals := make([]string, 4)
		for i := range min(len(tr.TableCells), len(vals)) {
			vals[i] = cellText(tr.TableCells[i])
		}
		rows = append(rows, sop.PartRow{PartNumber: vals[0], PartName: vals[1], Description: vals[2], Quantity: vals[3]})
	}
	return rows
}

// docxSteps reads step cells laid out as heading, image, description.
func docxSteps(doc *docx.Docx, t *docx.Table) []persist.ProjectStep {
	var steps []persist.ProjectStep
	for _, tr := range t.TableRows {
		for _, cell := range tr.TableCells {
			if len(cell.Paragraphs) == 0 || !strings.HasPrefix(docxParagraphText(cell.Paragraphs[0]), "Step ") {
				continue
			}
			var ps persist.ProjectStep
			if len(cell.Paragraphs) > 1 {
				data, name, ok := paragraphImage(doc, cell.Paragraphs[1])
				if ok {
					ps.ImageData = imaging.DataURL(mediaType(name, data), data)
				}
			}
			if len(cell.Paragraphs) > 2 {
				lines := make([]string, 0, len(cell.Paragraphs)-2)
				for _, para := range cell.Paragraphs[2:] {
					lines = append(lines, docxParagraphLines(para))
				}
				ps.Description = strings.Join(lines, "\n")
			}
			steps = append(steps, ps)
		}
	}
	return steps
}

// paragraphImage returns the bytes of the first inline picture in para.
func paragraphImage(doc *docx.Docx, para *docx.Paragraph) ([]byte, string, bool) {
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			d, ok := rc.(*docx.Drawing)
			if !ok || d.Inline == nil || d.Inline.Graphic == nil || d.Inline.Graphic.GraphicData == nil {
				continue
			}
			pic := d.Inline.Graphic.GraphicData.Pic
			if pic == nil || pic.BlipFill == nil {
				continue
			}
			target, err := doc.ReferTarget(pic.BlipFill.Blip.Embed)
			if err != nil {
				continue
			}
			name := path.Base(target)
			if m := doc.Media(name); m != nil {
				return m.Data, name, true
			}
		}
	}
	return nil, "", false
}

func mediaType(name string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(name)); imaging.IsImageType(t) {
		return t
	}
	return imaging.DetectType("", data)
}

func cellText(c *docx.WTableCell) string {
	parts := make([]string, 0, len(c.Paragraphs))
	for _, p := range c.Paragraphs {
		if t := docxParagraphText(p); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func docxParagraphText(para *docx.Paragraph) string {
	return strings.TrimSpace(docxParagraphLines(para))
}

// docxParagraphLines returns the paragraph text with breaks as newlines.
func docxParagraphLines(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			switch v := rc.(type) {
			case *docx.Text:
				buf.WriteString(v.Text)
			case *docx.BarterRabbet:
				buf.WriteByte('\n')
			}
		}
	}
	return buf.String()
}
