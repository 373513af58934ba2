package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const eventsHeartbeat = 25 * time.Second

type settingsResponse struct {
	AIEnabled        bool   `json:"aiEnabled"`
	CaptionAvailable bool   `json:"captionAvailable"`
	Provider         string `json:"provider"`
	Model            string `json:"model,omitempty"`
	ExportInProgress bool   `json:"exportInProgress"`
}

func (s *Server) settings() settingsResponse {
	resp := settingsResponse{
		AIEnabled:        s.session.AIEnabled(),
		CaptionAvailable: s.lifecycle.CaptionAvailable(),
		Provider:         s.cfg.CaptionProvider,
		ExportInProgress: s.exporter.Busy(),
	}
	switch s.cfg.CaptionProvider {
	case "anthropic":
		resp.Model = s.cfg.AnthropicModel
	case "gemini":
		resp.Model = s.cfg.GeminiModel
	}
	return resp
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings())
}

func (s *Server) handleSetAI(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		jsonError(w, "enabled is required", http.StatusBadRequest)
		return
	}
	s.session.SetAIEnabled(r.Context(), *body.Enabled)
	writeJSON(w, http.StatusOK, s.settings())
}

func (s *Server) handleListNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"notices": s.session.Notices()})
}

func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	if !s.session.DismissNotice(chi.URLParam(r, "noticeID")) {
		jsonError(w, "notice not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams change events as server-sent events until the client
// goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	events, cancel := s.session.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		s.log.Warn("event stream cannot flush", "error", err)
		return
	}

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Kind, data)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
