// Package server exposes the producer-facing HTTP API: audio ingest, job
// queries, transcript download and the manual recheck trigger.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alotth/audio-transcriber/internal/artifact"
	"github.com/alotth/audio-transcriber/internal/lifecycle"
	"github.com/alotth/audio-transcriber/internal/store"
)

// Default ingest limits.
const (
	DefaultMaxUploadBytes = 100 * 1024 * 1024
	DefaultMinFreeBytes   = 500 * 1024 * 1024
)

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Store          *store.Store
	Artifacts      *artifact.Store
	Manager        *lifecycle.Manager
	Port           int
	MaxUploadBytes int64
	MinFreeBytes   int64
	Out            io.Writer
}

func (o *StartOpts) applyDefaults() {
	if o.Port <= 0 {
		o.Port = 3000
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if o.MinFreeBytes <= 0 {
		o.MinFreeBytes = DefaultMinFreeBytes
	}
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	opts.applyDefaults()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the Gin router with all routes registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if opts.Artifacts == nil {
		return nil, fmt.Errorf("server: artifact store is required")
	}
	if opts.Manager == nil {
		return nil, fmt.Errorf("server: lifecycle manager is required")
	}
	opts.applyDefaults()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, &opts)
	return router, nil
}
