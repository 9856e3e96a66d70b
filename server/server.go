// Package server exposes the controller and its journals over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/events"
	"github.com/brettboylen/linkedin-agent/models"
	"github.com/brettboylen/linkedin-agent/pipeline"
	"github.com/brettboylen/linkedin-agent/stats"
)

const shutdownTimeout = 5 * time.Second

// Runner is the part of the controller the API drives
type Runner interface {
	Start(ctx context.Context) error
	Stop() bool
	Status() pipeline.Status
}

// Subscriber hands out event streams
type Subscriber interface {
	Subscribe(bufferSize int) (<-chan events.Event, func())
}

// Config holds server options
type Config struct {
	Port int
	// MaxRequestsPerMinute is per client IP; <= 0 disables limiting
	MaxRequestsPerMinute int
	// Heartbeat is the SSE keep-alive interval
	Heartbeat time.Duration
	// Defaults are the settings reported before any have been saved
	Defaults models.Settings
}

// Deps are the server's collaborators
type Deps struct {
	Runner     Runner
	Store      db.Store
	Activities *stats.ActivityLog
	OpLog      *stats.OpLog
	Counters   *stats.Counters
	Events     Subscriber
	Gatherer   prometheus.Gatherer
	Log        *logrus.Logger
}

// Server is the HTTP API
type Server struct {
	echo       *echo.Echo
	cfg        Config
	runner     Runner
	store      db.Store
	activities *stats.ActivityLog
	oplog      *stats.OpLog
	counters   *stats.Counters
	events     Subscriber
	log        *logrus.Logger
}

// New builds the server and registers every route
func New(cfg Config, deps Deps) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		echo:       echo.New(),
		cfg:        cfg,
		runner:     deps.Runner,
		store:      deps.Store,
		activities: deps.Activities,
		oplog:      deps.OpLog,
		counters:   deps.Counters,
		events:     deps.Events,
		log:        deps.Log,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())
	if cfg.MaxRequestsPerMinute > 0 {
		s.echo.Use(rateLimiter(cfg.MaxRequestsPerMinute))
	}

	s.routes(deps.Gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	e := s.echo

	api := e.Group("/api")
	api.POST("/run/start", s.startRun)
	api.POST("/run/stop", s.stopRun)
	api.GET("/run/status", s.runStatus)

	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.putSettings)

	api.GET("/stats", s.getStats)
	api.DELETE("/stats", s.resetStats)

	api.GET("/activities", s.listActivities)
	api.GET("/activities/summary", s.activitySummary)
	api.DELETE("/activities", s.clearActivities)

	api.GET("/logs", s.listLogs)
	api.GET("/logs/export", s.exportLogs)
	api.DELETE("/logs", s.clearLogs)

	api.DELETE("/commented-posts", s.clearCommentedPosts)

	api.GET("/events", s.streamEvents)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}

// rateLimiter limits each client IP; streams and probes are exempt
func rateLimiter(maxRequestsPerMinute int) echo.MiddlewareFunc {
	requestsPerSecond := float64(maxRequestsPerMinute) / 60.0

	deny := func(ctx echo.Context) error {
		return ctx.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Rate limit exceeded, please try again later",
		})
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/api/events", "/healthz", "/metrics":
				return true
			}
			return false
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(requestsPerSecond),
				Burst:     maxRequestsPerMinute,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return deny(ctx)
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return deny(ctx)
		},
	})
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.WithField("port", s.cfg.Port).Info("Starting API server")
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}
