package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dgallion1/sopmaster/internal/lifecycle"
	"github.com/dgallion1/sopmaster/internal/sop"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead is allowed on top of the image limit for form framing.
const multipartOverhead = 1 << 20

func (s *Server) handleAttachImage(w http.ResponseWriter, r *http.Request) {
	stepID := chi.URLParam(r, "stepID")
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, r, &sop.ValidationError{Field: "image", Err: sop.ErrTooLarge,
				Detail: fmt.Sprintf("limit is %d bytes", s.cfg.MaxImageBytes)})
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

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxImageBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	step, err := s.lifecycle.AttachImage(r.Context(), stepID, lifecycle.Upload{
		Name:     sanitizeFilename(header.Filename),
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	step, ok := s.session.Step(chi.URLParam(r, "stepID"))
	if !ok {
		s.writeError(w, r, sop.ErrStepNotFound)
		return
	}
	if !step.HasImage() {
		jsonError(w, sop.ErrNoImage.Error(), http.StatusNotFound)
		return
	}
	blob, ok := s.session.Blobs().Get(step.Image.Handle)
	if !ok {
		jsonError(w, "image no longer available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", blob.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("ETag", `"`+blob.Hash+`"`)
	w.Header().Set("Cache-Control", "private, no-cache")
	if r.Header.Get("If-None-Match") == `"`+blob.Hash+`"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Write(blob.Data)
}

func (s *Server) handleRequestCaption(w http.ResponseWriter, r *http.Request) {
	step, err := s.lifecycle.RequestCaption(r.Context(), chi.URLParam(r, "stepID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, step)
}
