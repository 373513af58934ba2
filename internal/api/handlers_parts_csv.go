package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/dgallion1/sopmaster/internal/export"
	"github.com/dgallion1/sopmaster/internal/parser"
	"github.com/dgallion1/sopmaster/internal/sop"
)

const maxPartsCSVBytes = 1 << 20

func (s *Server) handleExportPartsCSV(w http.ResponseWriter, r *http.Request) {
	doc := s.session.Snapshot()
	var buf bytes.Buffer
	if err := parser.WritePartsCSV(&buf, doc.Parts); err != nil {
		s.writeError(w, r, &sop.ExportError{Format: "csv", Err: err})
		return
	}
	attachment(w, export.Filename(doc.Title+" parts", "csv"), "text/csv; charset=utf-8", buf.Bytes())
}

// handleImportPartsCSV replaces the parts table with the rows of an uploaded
// CSV file.
func (s *Server) handleImportPartsCSV(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPartsCSVBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxPartsCSVBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, r, &sop.ValidationError{Field: "file", Err: sop.ErrTooLarge})
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

	rows, err := parser.ReadPartsCSV(file)
	if err != nil {
		s.writeError(w, r, &sop.ParseError{Source: sanitizeFilename(header.Filename), Err: err})
		return
	}
	parts := s.session.ReplaceParts(r.Context(), rows)
	s.log.Info("parts imported", "rows", len(parts))
	writeJSON(w, http.StatusOK, map[string]any{"parts": parts})
}
