// Package api provides the verdict HTTP surface: committed-verdict
// history, the ad-hoc /analyze endpoint, the system stats surface, and the
// push-channel streaming endpoint, via a Gin-based HTTP server.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/dnsverdict/internal/api/handlers"
	"github.com/jroosing/dnsverdict/internal/api/middleware"
	"github.com/jroosing/dnsverdict/internal/config"
)

// Server is the verdict HTTP surface server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	handler    *handlers.Handler
	httpServer *http.Server
}

// New builds a Server over deps, binding to cfg.API.Host:Port.
func New(cfg *config.Config, deps handlers.Deps, logger *slog.Logger) *Server {
	if cfg == nil {
		panic("api.New: cfg is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(deps, logger)
	RegisterRoutes(engine, h, cfg)

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: engine,
		// No WriteTimeout: the push-channel stream is a long-lived response
		// and a fixed write deadline would cut it off.
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, handler: h, httpServer: httpServer}
}

// Addr returns the address the server binds to.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Engine returns the underlying gin.Engine, for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe starts serving, blocking until Shutdown or a fatal error.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
