// Package server exposes sync control, sync progress and the stored
// feed over HTTP.
package server

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nhle/bcfeed/internal/logging"
	"github.com/nhle/bcfeed/internal/model"
	"github.com/nhle/bcfeed/internal/store"
)

// Syncer is the sync control surface.
type Syncer interface {
	StartSync(ctx context.Context) (string, error)
	Cancel() bool
	Status() model.ProgressEvent
	SubscribeProgress() iter.Seq[model.ProgressEvent]
	ResetCheckpoint(ctx context.Context) error
}

// Feed is the read side of the release store.
type Feed interface {
	ListReleases(ctx context.Context, filter store.ReleaseFilter, sort string, page, perPage int) (*store.ReleasePage, error)
	Stats(ctx context.Context, now time.Time) (*model.FeedStats, error)
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers.
type Server struct {
	syncer Syncer
	feed   Feed
	logger *log.Logger
	now    func() time.Time
}

// New creates a Server.
func New(syncer Syncer, feed Feed, logger *log.Logger) *Server {
	return &Server{
		syncer: syncer,
		feed:   feed,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
	}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// The progress stream stays open for the length of a run, so it
		// is kept out of the request timeout.
		r.Get("/sync/stream", s.handleSyncStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/sync", makeHandler(s.logger, s.handleSyncStatus))
			r.Post("/sync", makeHandler(s.logger, s.handleStartSync))
			r.Delete("/sync", makeHandler(s.logger, s.handleCancelSync))
			r.Get("/releases", makeHandler(s.logger, s.handleListReleases))
			r.Get("/stats", makeHandler(s.logger, s.handleStats))
		})
	})

	r.Get("/healthz", makeHandler(s.logger, s.handleHealth))

	return r
}

// requestLogger logs each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
