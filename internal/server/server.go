// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the pull pipeline over a REST API with websocket
// job updates.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

// Config holds server configuration. Output paths are server-side only.
type Config struct {
	Addr           string
	Port           int
	Token          string // Hugging Face token
	OutputDir      string // Destination for manifests and files (not configurable via API)
	Extensions     []string
	Threads        int
	Mirror         bool
	ChunkSize      int
	AllowedOrigins []string // CORS origins
	Version        string
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:       "0.0.0.0",
		Port:       8080,
		OutputDir:  hfpull.DefaultOutputDir,
		Extensions: []string{hfpull.DefaultExtension},
		Threads:    hfpull.DefaultThreads,
		ChunkSize:  hfpull.DefaultChunkSize,
		Version:    "dev",
	}
}

// settings returns the pipeline settings for a request asking for exts.
func (c Config) settings(exts []string) hfpull.Settings {
	if len(exts) == 0 {
		exts = c.Extensions
	}
	return hfpull.Settings{
		OutputDir:  c.OutputDir,
		Extensions: exts,
		Threads:    c.Threads,
		Mirror:     c.Mirror,
		ChunkSize:  c.ChunkSize,
		Token:      c.Token,
	}
}

// Server is the HTTP server for hfpull.
type Server struct {
	config     Config
	log        *slog.Logger
	httpServer *http.Server
	jobs       *JobManager
	wsHub      *WSHub
}

// New creates a new server with the given configuration.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	wsHub := NewWSHub(log)
	return &Server{
		config: cfg,
		log:    log,
		jobs:   NewJobManager(cfg, wsHub),
		wsHub:  wsHub,
	}
}

// Handler returns the API handler with middleware applied. The websocket
// hub must be running for /api/ws; ListenAndServe starts it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerAPIRoutes(mux)
	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// ListenAndServe starts the hub and the HTTP server and blocks until ctx is
// cancelled or the listener fails. Running jobs are cancelled on shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	addr := fmt.Sprintf("%s:%d", s.config.Addr, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.jobs.CancelAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info("server starting", "addr", addr, "output", s.config.OutputDir, "threads", s.config.Threads)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// registerAPIRoutes sets up all API endpoints.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)

	mux.HandleFunc("POST /api/discover", s.handleDiscover)
	mux.HandleFunc("POST /api/fetch", s.handleFetch)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleCancelJob)

	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "took", time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// originAllowed allows everything when no origins are configured.
func (s *Server) originAllowed(origin string) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
