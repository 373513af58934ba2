package api

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/dgallion1/sopmaster/internal/caption"
	"github.com/dgallion1/sopmaster/internal/config"
	"github.com/dgallion1/sopmaster/internal/editor"
	"github.com/dgallion1/sopmaster/internal/export"
	"github.com/dgallion1/sopmaster/internal/lifecycle"
	"github.com/dgallion1/sopmaster/internal/persist"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the components the API drives.
type Deps struct {
	Session   *editor.Session
	Lifecycle *lifecycle.Controller
	Exporter  *export.Exporter
	Projects  *persist.Adapter
	// Stats may be nil when no caption provider is configured.
	Stats *caption.Stats
}

// Server is the HTTP API server for sopmaster.
type Server struct {
	router    chi.Router
	session   *editor.Session
	lifecycle *lifecycle.Controller
	exporter  *export.Exporter
	projects  *persist.Adapter
	stats     *caption.Stats
	log       *slog.Logger
	cfg       config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(d Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		session:   d.Session,
		lifecycle: d.Lifecycle,
		exporter:  d.Exporter,
		projects:  d.Projects,
		stats:     d.Stats,
		log:       log,
		cfg:       cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: !slices.Contains(s.cfg.CORSOrigins, "*"),
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/help", s.handleHelp)
	r.Get("/print", s.handlePrint)

	r.Route("/api", func(r chi.Router) {
		r.Get("/document", s.handleGetDocument)
		r.Patch("/document", s.handlePatchHeader)
		r.Post("/document/reset", s.handleReset)

		r.Post("/parts", s.handleAddPart)
		r.Patch("/parts/{partID}", s.handleUpdatePart)
		r.Delete("/parts/{partID}", s.handleRemovePart)
		r.Get("/parts/csv", s.handleExportPartsCSV)
		r.Post("/parts/csv", s.handleImportPartsCSV)

		r.Post("/steps", s.handleAddStep)
		r.Patch("/steps/{stepID}", s.handleUpdateStep)
		r.Delete("/steps/{stepID}", s.handleDeleteStep)
		r.Put("/steps/{stepID}/image", s.handleAttachImage)
		r.Get("/steps/{stepID}/image", s.handleGetImage)
		r.Post("/steps/{stepID}/caption", s.handleRequestCaption)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings/ai", s.handleSetAI)

		r.Get("/notices", s.handleListNotices)
		r.Delete("/notices/{noticeID}", s.handleDismissNotice)

		r.Get("/events", s.handleEvents)

		r.Get("/export/word", s.handleExportWord)
		r.Get("/export/docx", s.handleExportDocx)
		r.Get("/project/export", s.handleExportProject)
		r.Post("/project/import", s.handleImportProject)

		r.Get("/stats/caption", s.handleCaptionStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
