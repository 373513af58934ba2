package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/dgallion1/sopmaster/internal/editor"
	"github.com/dgallion1/sopmaster/internal/export"
	"github.com/dgallion1/sopmaster/internal/parser"
	"github.com/dgallion1/sopmaster/internal/sop"
)

const maxImportBytes = 256 << 20

const (
	exportFailedNotice = "Export failed. Please try again."
	importFailedNotice = "Import failed. The file is not a valid SOP project or sheet."
)

type exportFunc func(*http.Request, sop.Document) (export.Result, error)

func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, run exportFunc) {
	res, err := run(r, s.session.Snapshot())
	if err != nil {
		if !errors.Is(err, export.ErrExportInProgress) {
			s.session.AddNotice(editor.NoticeExport, "", exportFailedNotice)
		}
		s.writeError(w, r, err)
		return
	}
	attachment(w, res.Filename, res.ContentType, res.Body)
}

func (s *Server) handleExportWord(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, func(r *http.Request, doc sop.Document) (export.Result, error) {
		return s.exporter.WordHTML(r.Context(), doc)
	})
}

func (s *Server) handleExportDocx(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, func(r *http.Request, doc sop.Document) (export.Result, error) {
		return s.exporter.Docx(r.Context(), doc)
	})
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	body, err := s.exporter.PrintHTML(s.session.Snapshot(), func(stepID string) string {
		return "/api/steps/" + url.PathEscape(stepID) + "/image"
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(body)
}

func (s *Server) handleExportProject(w http.ResponseWriter, r *http.Request) {
	doc := s.session.Snapshot()
	body, err := s.projects.ExportProject(doc)
	if err != nil {
		s.session.AddNotice(editor.NoticeExport, "", exportFailedNotice)
		s.writeError(w, r, err)
		return
	}
	attachment(w, export.Filename(doc.Title, "json"), "application/json", body)
}

// handleImportProject replaces the document with an uploaded project file or
// a previously exported sheet. A failed import leaves the document untouched.
func (s *Server) handleImportProject(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", maxImportBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	filename := sanitizeFilename(header.Filename)
	doc, err := s.importFile(filename, data)
	if err != nil {
		s.log.Warn("import failed", "file", filename, "error", err)
		s.session.AddNotice(editor.NoticeImport, "", importFailedNotice)
		s.writeError(w, r, err)
		return
	}

	s.session.Replace(r.Context(), doc)
	s.log.Info("document imported", "file", filename, "steps", len(doc.Steps))
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) importFile(filename string, data []byte) (sop.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".json" || (ext == "" && bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))) {
		return s.projects.ImportProject(data)
	}
	if !parser.IsSupportedExtension(filename) {
		return sop.Document{}, &sop.ValidationError{Field: "file", Err: sop.ErrUnsupportedType, Detail: ext}
	}
	p, err := parser.ForFile(filename)
	if err != nil {
		return sop.Document{}, err
	}
	pf, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return sop.Document{}, &sop.ParseError{Source: filename, Err: err}
	}
	return s.projects.Import(*pf)
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
