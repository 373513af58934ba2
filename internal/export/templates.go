package export

import (
	"embed"
	"html/template"
)

//go:embed templates/*
var templateFS embed.FS

var (
	sheetCSS  = template.CSS(mustRead("templates/sheet.css"))
	wordTmpl  = template.Must(template.ParseFS(templateFS, "templates/word.html.tmpl"))
	printTmpl = template.Must(template.ParseFS(templateFS, "templates/print.html.tmpl"))
)

type page struct {
	sheetView
	CSS template.CSS
}

func mustRead(name string) string {
	b, err := templateFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return string(b)
}
