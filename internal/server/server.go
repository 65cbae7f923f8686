package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tlplay/internal/api"
	"tlplay/internal/config"
	"tlplay/internal/player"
	"tlplay/internal/storage"
)

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	router     *chi.Mux
	handler    *api.Handler
}

// New serves the player run by driver. store may be nil.
func New(cfg *config.Config, logger zerolog.Logger, driver *player.Driver, store *storage.SQLiteStorage) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger.With().Str("component", "server").Logger(),
		handler: api.NewHandler(driver, store, logger),
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(CORSMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handler.Health)

		r.Route("/player", func(r chi.Router) {
			r.Get("/", s.handler.GetPlayer)
			r.Get("/cache", s.handler.GetCacheInfo)
			r.Get("/frame", s.handler.GetFrame)

			r.Post("/playback", s.handler.SetPlayback)
			r.Post("/seek", s.handler.Seek)
			r.Post("/loop", s.handler.SetLoop)
			r.Post("/speed", s.handler.SetSpeed)
			r.Post("/volume", s.handler.SetVolume)
			r.Post("/mute", s.handler.SetMute)
			r.Post("/in-out", s.handler.SetInOut)
			r.Post("/step", s.handler.Step)
		})

		r.Get("/timeline", s.handler.GetTimeline)
		r.Get("/timeline/export", s.handler.ExportTimeline)
		r.Get("/io/stats", s.handler.GetIOStats)
		r.Get("/io/info-cache", s.handler.GetInfoCache)
	})
}

// Handler exposes the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
