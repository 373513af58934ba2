package api

import (
	"net/http"

	"github.com/dgallion1/sopmaster/internal/sop"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handlePatchHeader(w http.ResponseWriter, r *http.Request) {
	var p sop.HeaderPatch
	if !decodeJSON(w, r, &p) {
		return
	}
	writeJSON(w, http.StatusOK, s.session.UpdateHeader(r.Context(), p))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}
	doc := s.session.Reset(r.Context())
	s.log.Info("document reset")
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleAddPart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.session.AddPart(r.Context()))
}

func (s *Server) handleUpdatePart(w http.ResponseWriter, r *http.Request) {
	var p sop.PartPatch
	if !decodeJSON(w, r, &p) {
		return
	}
	row, err := s.session.UpdatePart(r.Context(), chi.URLParam(r, "partID"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleRemovePart(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}
	removed, err := s.session.RemovePart(r.Context(), chi.URLParam(r, "partID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleAddStep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.session.AddStep(r.Context()))
}

func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	var p sop.StepPatch
	if !decodeJSON(w, r, &p) {
		return
	}
	step, err := s.session.UpdateStep(r.Context(), chi.URLParam(r, "stepID"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) handleDeleteStep(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}
	if _, err := s.session.DeleteStep(r.Context(), chi.URLParam(r, "stepID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
