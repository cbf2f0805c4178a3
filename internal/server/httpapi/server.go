// Package httpapi is the HTTP transport of the zkshare server, built on gin.
// Handlers only move bytes between JSON and the share service; they never
// see key material.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/zkshare/internal/clock"
	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/logging"
	"github.com/dmitrijs2005/zkshare/internal/pipeline"
)

type Options struct {
	// MaxUploadSize is the plaintext limit; the body limit is derived from it.
	MaxUploadSize int64
	RateLimitRPS  float64
	RateBurst     int
	Clock         clock.Clock
}

type Server struct {
	address string
	logger  logging.Logger
	engine  *gin.Engine
}

// maxBodyBytes allows for base64 expansion of the blob plus the JSON fields.
func maxBodyBytes(maxUpload int64) int64 {
	return (maxUpload+pipeline.Overhead)/3*4 + 4 + 64<<10
}

func NewServer(address string, l logging.Logger, svc ShareService, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = common.MaxUploadSize
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 5
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}

	s := &Server{
		address: address,
		logger:  l.With("module", "http_server"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), AccessLog(s.logger))

	h := &handlers{svc: svc, maxBodyBytes: maxBodyBytes(opts.MaxUploadSize), server: s}

	engine.GET("/health", h.health)

	api := engine.Group("/api/files")
	api.Use(NewRateLimiter(opts.RateLimitRPS, opts.RateBurst, opts.Clock).Middleware())
	api.POST("", h.upload)
	api.GET("/:id", h.download)
	api.GET("/:id/meta", h.metadata)
	api.GET("/:id/verify", h.verify)
	api.DELETE("/:id", h.delete)
	api.POST("/:id/extend", h.extend)

	// The share link itself resolves to metadata; downloading is an explicit
	// second request so link previews do not use up downloads.
	engine.GET("/s/:id", h.metadata)

	s.engine = engine
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(context.Background(), "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
