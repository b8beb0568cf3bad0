// Package httpapi exposes the migration runner over HTTP. Every route is
// guarded by a shared secret sent in the X-Migration-Secret header.
package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aqasim81/data-migration-runner/internal/migration"
	"github.com/aqasim81/data-migration-runner/internal/runner"
)

// SecretHeader carries the shared secret on every request.
const SecretHeader = "X-Migration-Secret"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithDefaults sets the migration context used when a request does not
// override a field. Environment is always taken from here.
func WithDefaults(mc migration.Context) Option {
	return func(s *Server) { s.defaults = mc }
}

// WithMetricsHandler mounts h at GET /metrics behind the secret check.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server routes HTTP requests to a Runner.
type Server struct {
	runner   *runner.Runner
	secret   string
	defaults migration.Context
	metrics  http.Handler
	logger   zerolog.Logger
	engine   *gin.Engine
}

// New builds the gin engine and registers all routes. An empty secret is
// allowed but every request is then answered with 503.
func New(r *runner.Runner, secret string, opts ...Option) *Server {
	s := &Server{
		runner: r,
		secret: secret,
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With().Str("component", "httpapi").Logger()

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), s.requireSecret())

	g := engine.Group("/migrations")
	g.POST("/run", s.runAll)
	g.POST("/run/:name", s.runOne)
	g.POST("/dry-run", s.dryRun)
	g.GET("/status", s.status)
	g.GET("/list", s.list)
	g.GET("/pending", s.pending)
	g.POST("/verify", s.verifyAll)
	g.POST("/verify/:name", s.verifyOne)
	g.POST("/rollback/:name", s.rollback)
	g.GET("/logs/:name", s.logs)
	g.GET("/logs/file/:filename", s.logFile)

	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	s.engine = engine

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "migration API secret is not configured"})
			return
		}

		got := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing " + SecretHeader})
			return
		}

		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()

		ev := s.logger.Info()
		if status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}

		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
