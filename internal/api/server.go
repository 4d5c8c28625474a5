package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"faersignal/app"
	"faersignal/internal"
)

// Server is the HTTP surface of the signal engine.
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *internal.Logger
}

// NewServer builds the router. mode is a gin mode (debug, release, test).
func NewServer(analysis *app.AnalysisService, logger *internal.Logger, mode string) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if mode != "" {
		gin.SetMode(mode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	NewSignalHandler(analysis, logger).Register(router.Group("/api/v1"))

	return &Server{router: router, logger: logger}
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}
	s.logger.Info("Starting faersignal API on http://%s", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func requestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(map[string]interface{}{
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}
