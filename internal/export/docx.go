package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/dgallion1/sopmaster/internal/sop"
	"github.com/fumiama/go-docx"
)

const (
	FormatDocx   = "docx"
	DocxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	// NoImageText marks a step cell without a usable image.
	NoImageText = "No Image"

	badgeColor = "0284c7"
	// Half the printable A4 width, less a margin for the cell padding.
	cellImageEMU = docx.A4_EMU_MAX_WIDTH/2 - 90000
)

// PartsHeader is the header row of the bill-of-materials table.
var PartsHeader = []string{"Part Number", "Part Name", "Description", "Quantity"}

// Docx renders doc as a native Word document on an A4 page.
func (e *Exporter) Docx(ctx context.Context, doc sop.Document) (Result, error) {
	return e.run(FormatDocx, func() (Result, error) {
		imgs, err := e.renderImages(ctx, doc.Steps)
		if err != nil {
			return Result{}, err
		}
		view := newSheetView(doc, func(int, sop.Step) template.URL { return "" })

		f := docx.New().WithDefaultTheme().WithA4Page()

		f.AddParagraph().Justification("center").AddText(doc.Title).Bold().Size("32")
		if len(view.Meta) > 0 {
			f.AddParagraph().Justification("center").AddText(metaLine(view.Meta)).Color("475569")
		}

		if view.ShowParts {
			t := f.AddTable(len(doc.Parts)+1, len(PartsHeader), 0, nil)
			for j, h := range PartsHeader {
				t.TableRows[0].TableCells[j].AddParagraph().AddText(h).Bold()
			}
			for i, p := range doc.Parts {
				cells := t.TableRows[i+1].TableCells
				for j, v := range []string{p.PartNumber, p.PartName, p.Description, p.Quantity} {
					cells[j].AddParagraph().AddText(v)
				}
			}
			f.AddParagraph()
		}

		rows := Pair(indexes(len(doc.Steps)))
		if len(rows) > 0 {
			t := f.AddTable(len(rows), 2, 0, nil)
			for r, row := range rows {
				for c, i := range row {
					if err := stepCell(t.TableRows[r].TableCells[c], i+1, doc.Steps[i], imgs[i]); err != nil {
						return Result{}, fmt.Errorf("step %d: %w", i+1, err)
					}
				}
				if len(row) == 1 {
					t.TableRows[r].TableCells[1].AddParagraph()
				}
			}
		}

		var buf bytes.Buffer
		if _, err := f.WriteTo(&buf); err != nil {
			return Result{}, fmt.Errorf("write docx: %w", err)
		}
		return Result{
			Filename:    Filename(doc.Title, "docx"),
			ContentType: DocxMimeType,
			Body:        buf.Bytes(),
		}, nil
	})
}

// StepHeading is the heading text of a step cell.
func StepHeading(n int) string {
	return "Step " + strconv.Itoa(n)
}

func stepCell(cell *docx.WTableCell, n int, s sop.Step, img *rendered) error {
	cell.AddParagraph().AddText(StepHeading(n)).Bold().Color(badgeColor)

	p := cell.AddParagraph().Justification("center")
	if img == nil {
		p.AddText(NoImageText).Color("94a3b8")
	} else {
		run, err := p.AddInlineDrawing(img.JPEG)
		if err != nil {
			return fmt.Errorf("add image: %w", err)
		}
		if d, ok := run.Children[0].(*docx.Drawing); ok && d.Inline != nil {
			w := int64(cellImageEMU)
			d.Inline.Size(w, w*int64(img.Height)/int64(img.Width))
		}
	}

	cell.AddParagraph().AddText(strings.ReplaceAll(s.Description, "\r\n", "\n"))
	return nil
}

// metaLine renders metadata as "Label: value | Label: value".
func metaLine(fields []sop.MetaField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Label + ": " + f.Value
	}
	return strings.Join(parts, " | ")
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
