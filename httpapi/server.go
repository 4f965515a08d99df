// Package httpapi exposes the attendance engine, overrides and schedule
// versions over HTTP.
package httpapi

import (
	"agent-attendance/attendance"
	"agent-attendance/metrics"
	"agent-attendance/models"
	"agent-attendance/schedule"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxUploadBytes bounds request bodies, schedule uploads included.
const maxUploadBytes = 10 << 20

// Store is the persistence the API writes through.
type Store interface {
	Ping(ctx context.Context) error
	UpsertOverride(ctx context.Context, o models.Override) (models.Override, error)
	DeleteOverride(ctx context.Context, agentID string, day time.Time) error
	ListOverrides(ctx context.Context) ([]models.Override, error)
	SaveVersion(ctx context.Context, v models.ScheduleVersion) (models.ScheduleVersion, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	engine    *attendance.Engine
	schedules *schedule.Live
	store     Store
	origins   []string
	logger    zerolog.Logger
}

// NewServer creates the API server.
func NewServer(engine *attendance.Engine, schedules *schedule.Live, store Store, allowedOrigins []string, logger zerolog.Logger) *Server {
	return &Server{
		engine:    engine,
		schedules: schedules,
		store:     store,
		origins:   allowedOrigins,
		logger:    logger.With().Str("component", "httpapi").Logger(),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(s.origins))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/options", s.handleOptions)

	r.Route("/attendance", func(r chi.Router) {
		r.Get("/", s.handleAttendance)
		r.Post("/justify", s.handleJustify)
		r.Delete("/justify", s.handleUnjustify)
	})
	r.Get("/connections", s.handleConnections)
	r.Get("/justifications", s.handleJustifications)

	r.Route("/schedules", func(r chi.Router) {
		r.Get("/", s.handleSchedules)
		r.Get("/versions", s.handleListVersions)
		r.Post("/versions", s.handlePublishVersion)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("database ping failed")
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status, "service": "agent-attendance"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeCSV(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
