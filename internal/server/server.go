// Package server exposes health, metrics, dashboards and audio control over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"spreadwatch/internal/alerting"
	"spreadwatch/internal/monitor"
	"spreadwatch/internal/sink"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Deps are the components the routes read from. Nil members disable their
// routes.
type Deps struct {
	Board    *sink.Board
	Hub      http.Handler
	Gatherer prometheus.Gatherer
	Audio    *alerting.Switch
	Statuses func() []monitor.Status
}

// Server is the status and dashboard API.
type Server struct {
	cfg    Config
	echo   *echo.Echo
	deps   Deps
	logger zerolog.Logger
}

type audioRequest struct {
	Enabled *bool `json:"enabled"`
}

type audioResponse struct {
	Enabled bool `json:"enabled"`
}

// New registers every route.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:    cfg,
		echo:   e,
		deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(s.requestLogger)

	e.GET("/healthz", s.health)
	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	if deps.Hub != nil {
		e.GET("/ws", echo.WrapHandler(deps.Hub))
	}

	api := e.Group("/api")
	if deps.Board != nil {
		api.GET("/displays", s.listDisplays)
		api.GET("/displays/:element", s.getDisplay)
	}
	if deps.Statuses != nil {
		api.GET("/instruments", s.listInstruments)
	}
	if deps.Audio != nil {
		api.GET("/audio", s.getAudio)
		api.POST("/audio", s.setAudio)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server starting")
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		started := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Debug().
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Int("status", c.Response().Status).
			Dur("took", time.Since(started)).
			Msg("request")
		return nil
	}
}

func (s *Server) health(c echo.Context) error {
	body := map[string]any{"status": "ok"}
	if s.deps.Statuses != nil {
		body["instruments"] = len(s.deps.Statuses())
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) listDisplays(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Board.Snapshot())
}

func (s *Server) getDisplay(c echo.Context) error {
	d, ok := s.deps.Board.Get(c.Param("element"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown element")
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) listInstruments(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Statuses())
}

func (s *Server) getAudio(c echo.Context) error {
	return c.JSON(http.StatusOK, audioResponse{Enabled: s.deps.Audio.Enabled()})
}

func (s *Server) setAudio(c echo.Context) error {
	var req audioRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "enabled is required")
	}
	s.deps.Audio.Set(*req.Enabled)
	s.logger.Info().Bool("enabled", *req.Enabled).Msg("audio toggled")
	return c.JSON(http.StatusOK, audioResponse{Enabled: s.deps.Audio.Enabled()})
}
