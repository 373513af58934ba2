package api

import (
	"net/http"
)

func (s *Server) handleCaptionStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "caption stats unavailable", http.StatusServiceUnavailable)
		return
	}
	settings := s.settings()
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": settings.Provider,
		"model":    settings.Model,
		"stats":    s.stats.Snapshot(),
	})
}
