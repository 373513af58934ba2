package api

import (
	"bytes"
	_ "embed"
	"net/http"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed help.md
var helpSource []byte

var (
	helpOnce sync.Once
	helpHTML []byte
	helpErr  error
)

const helpPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Help</title>
<style>body{font-family:Arial,sans-serif;max-width:42rem;margin:2rem auto;line-height:1.5}</style>
</head><body>
`

func renderHelp() ([]byte, error) {
	helpOnce.Do(func() {
		var buf bytes.Buffer
		buf.WriteString(helpPage)
		md := goldmark.New(goldmark.WithExtensions(extension.GFM))
		if helpErr = md.Convert(helpSource, &buf); helpErr != nil {
			return
		}
		buf.WriteString("</body></html>\n")
		helpHTML = buf.Bytes()
	})
	return helpHTML, helpErr
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	page, err := renderHelp()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}
