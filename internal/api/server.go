// Package api serves the agent over HTTP. Every route under /api/agent is
// bearer-token authenticated and answers with a {status, data|error}
// envelope.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nse-agent/internal/agent"
	"nse-agent/internal/security"
	"nse-agent/internal/stream"
)

// ServerConfig describes the HTTP server and its dependencies.
type ServerConfig struct {
	Addr            string
	Token           string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Agent  *agent.Agent
	Hub    *stream.Hub
	Audit  *security.AuditLogger
	Logger zerolog.Logger
}

// Server is the agent HTTP API.
type Server struct {
	cfg    ServerConfig
	router *gin.Engine
	logger zerolog.Logger
}

// NewServer builds the router.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("api server requires an agent")
	}
	if cfg.Token == "" {
		return nil, errors.New("api server requires an api token")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	s := &Server{cfg: cfg, router: router, logger: cfg.Logger}

	router.Use(gin.Recovery(), s.requestID(), s.requestLogger())
	router.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	router.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	router.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if cfg.Hub != nil {
			body["stream"] = cfg.Hub.GetMetrics()
		}
		c.JSON(http.StatusOK, body)
	})

	h := &handlers{agent: cfg.Agent, hub: cfg.Hub, logger: cfg.Logger}
	h.register(router.Group("/api/agent", s.authenticate()))
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(security.WithRequestID(c.Request.Context(), id))
		c.Set("request_id", id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id")).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

// authenticate accepts "Authorization: Bearer <token>". The stream route
// also accepts ?token= since browsers cannot set headers on websockets.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			presented = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		} else if strings.HasSuffix(c.Request.URL.Path, "/stream") {
			presented = c.Query("token")
		}

		if !security.TokenMatches(s.cfg.Token, presented) {
			_ = s.cfg.Audit.LogAuthFailed(c.Request.Context(), c.ClientIP(), c.Request.URL.Path)
			s.logger.Warn().Str("path", c.Request.URL.Path).Str("ip", c.ClientIP()).Msg("Unauthorized request")
			fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
			return
		}
		c.Next()
	}
}
