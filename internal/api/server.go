package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/config"
	"github.com/amberlink/voiceaudit/internal/database"
	"github.com/amberlink/voiceaudit/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(
	cfg *config.Config,
	db *database.DB,
	storeType string,
	launcher JobLauncher,
	applier AuthenticityApplier,
	version string,
	startTime time.Time,
	log zerolog.Logger,
) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated: health, metrics and the provider callback.
	health := NewHealthHandler(db, storeType, version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	callback := NewCallbackHandler(applier, log)
	r.Route("/api/v1", func(r chi.Router) {
		callback.Routes(r)

		r.Group(func(r chi.Router) {
			r.Use(BasicAuth(cfg.AuthUsername, cfg.AuthPassword))
			NewAnalyzeHandler(launcher, cfg.AudioDir, log).Routes(r)
			NewResultsHandler(db, log).Routes(r)
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
