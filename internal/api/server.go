// Package api exposes the addon-protocol HTTP surface: the manifest, the
// stream endpoint and operational endpoints.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/config"
	"github.com/streamsieve/streamsieve/internal/indexer/definition"
	"github.com/streamsieve/streamsieve/internal/metrics"
	"github.com/streamsieve/streamsieve/internal/ratelimit"
	"github.com/streamsieve/streamsieve/internal/search"
)

// Server handles HTTP requests for the addon surface.
type Server struct {
	echo        *echo.Echo
	db          *sql.DB
	cfg         *config.Config
	dispatcher  *search.Dispatcher
	definitions *definition.Store
	limiter     *ratelimit.Limiter
	registry    *prometheus.Registry
	logger      zerolog.Logger
}

// NewServer creates the API server and mounts its routes.
func NewServer(
	db *sql.DB,
	cfg *config.Config,
	dispatcher *search.Dispatcher,
	definitions *definition.Store,
	limiter *ratelimit.Limiter,
	registry *prometheus.Registry,
	logger zerolog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:        e,
		db:          db,
		cfg:         cfg,
		dispatcher:  dispatcher,
		definitions: definitions,
		limiter:     limiter,
		registry:    registry,
		logger:      logger.With().Str("component", "api").Logger(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(s.requestID())
	e.Use(s.requestLogger())
	e.Use(s.instrument())

	e.GET("/manifest.json", s.handleManifest)
	e.GET("/stream/:type/:id", s.handleStream, s.rateLimit())
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return s
}

// Start begins serving on addr. Blocks until Shutdown or failure.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Starting API server")
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestID tags every request with a correlation id, honoring one the
// client already sent.
func (s *Server) requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// requestLogger logs each request with method, path, status and duration.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			s.logger.Debug().
				Str("requestId", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Int("status", c.Response().Status).
				Dur("elapsed", time.Since(start)).
				Msg("Request")
			return err
		}
	}
}

// instrument records request counts per route and status.
func (s *Server) instrument() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			metrics.HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(c.Response().Status),
			).Inc()
			return err
		}
	}
}

// rateLimit rejects clients over their per-minute request budget.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.limiter != nil && !s.limiter.Allow(c.Request().Context(), c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
