package export

import (
	"html/template"
	"strings"

	"github.com/dgallion1/sopmaster/internal/sop"
)

type stepView struct {
	ID       string
	Number   int
	ImageURL template.URL
	Lines    []string
}

type sheetView struct {
	Title     string
	Meta      []sop.MetaField
	Parts     []sop.PartRow
	ShowParts bool
	Rows      [][]stepView
}

// newSheetView lays doc out for a template. imageURL returns the source for a
// step's image, or "" to render the placeholder.
func newSheetView(doc sop.Document, imageURL func(i int, s sop.Step) template.URL) sheetView {
	v := sheetView{Title: doc.Title, Parts: doc.Parts}
	for _, f := range doc.Fields() {
		if strings.TrimSpace(f.Value) != "" {
			v.Meta = append(v.Meta, f)
		}
	}
	for _, p := range doc.Parts {
		if !p.IsBlank() {
			v.ShowParts = true
			break
		}
	}
	steps := make([]stepView, len(doc.Steps))
	for i, s := range doc.Steps {
		steps[i] = stepView{
			ID:       s.ID,
			Number:   i + 1,
			ImageURL: imageURL(i, s),
			Lines:    descriptionLines(s.Description),
		}
	}
	v.Rows = Pair(steps)
	return v
}

func descriptionLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}
