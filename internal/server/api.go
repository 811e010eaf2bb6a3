// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

// DiscoverRequest asks the server to scan a listing page and save its
// manifest under the server's output directory.
type DiscoverRequest struct {
	URL        string   `json:"url"`
	Extensions []string `json:"extensions,omitempty"`
}

// DiscoverResponse is the saved manifest.
type DiscoverResponse struct {
	URL      string          `json:"url"`
	Manifest string          `json:"manifest,omitempty"` // file name inside the output directory
	Entries  hfpull.Manifest `json:"entries"`
	Count    int             `json:"count"`
	Message  string          `json:"message,omitempty"`
}

// FetchRequest starts a job from a listing page or from a manifest saved
// earlier. Output paths are NOT configurable via API; Manifest is a file name
// inside the server's output directory.
type FetchRequest struct {
	URL        string   `json:"url,omitempty"`
	Manifest   string   `json:"manifest,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
}

// SettingsResponse represents current settings.
type SettingsResponse struct {
	Token      string   `json:"token,omitempty"`
	OutputDir  string   `json:"outputDir"`
	Extensions []string `json:"extensions"`
	Threads    int      `json:"threads"`
	Mirror     bool     `json:"mirror"`
	ChunkSize  int      `json:"chunkSize"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a simple success message.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.config.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleGetSettings returns current settings with the token masked.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	tokenStatus := ""
	if s.config.Token != "" {
		tokenStatus = "********" + s.config.Token[max(0, len(s.config.Token)-4):]
	}

	cfg := s.config.settings(nil)
	writeJSON(w, http.StatusOK, SettingsResponse{
		Token:      tokenStatus,
		OutputDir:  s.config.OutputDir,
		Extensions: hfpull.ParseExtensions(cfg.Extensions),
		Threads:    s.config.Threads,
		Mirror:     s.config.Mirror,
		ChunkSize:  s.config.ChunkSize,
	})
}

// handleDiscover scans a listing page and saves the manifest.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: url", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	m, manifestPath, err := hfpull.Plan(ctx, hfpull.Source{URL: req.URL}, s.config.settings(req.Extensions), hfpull.Hooks{Logger: s.log})
	switch {
	case hfpull.IsNothingFound(err):
		writeJSON(w, http.StatusOK, DiscoverResponse{
			URL:     req.URL,
			Entries: hfpull.Manifest{},
			Message: "no matching files found",
		})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to save manifest", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, DiscoverResponse{
		URL:      req.URL,
		Manifest: filepath.Base(manifestPath),
		Entries:  m,
		Count:    len(m),
	})
}

// handleFetch starts a pull job. The request itself is the confirmation.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	req.Manifest = strings.TrimSpace(req.Manifest)

	if err := (hfpull.Source{URL: req.URL, Manifest: req.Manifest}).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Exactly one of url or manifest is required", err.Error())
		return
	}

	jr := JobRequest{URL: req.URL, Extensions: req.Extensions}
	if req.Manifest != "" {
		p, err := s.manifestPath(req.Manifest)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid manifest name", err.Error())
			return
		}
		if _, err := os.Stat(p); err != nil {
			writeError(w, http.StatusNotFound, "Manifest not found", req.Manifest)
			return
		}
		jr.Manifest = p
	}

	job, wasExisting := s.jobs.CreateJob(jr)
	if wasExisting {
		writeJSON(w, http.StatusOK, map[string]any{
			"job":     job,
			"message": "Download already in progress",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// manifestPath confines a client-supplied manifest name to the output
// directory.
func (s *Server) manifestPath(name string) (string, error) {
	if !filepath.IsLocal(name) || filepath.Base(name) != name {
		return "", errors.New("manifest must be a file name inside the output directory")
	}
	return filepath.Join(s.config.OutputDir, name), nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.ListJobs()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.GetJob(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found", "")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs.CancelJob(r.PathValue("id")) {
		writeJSON(w, http.StatusOK, SuccessResponse{
			Success: true,
			Message: "Job cancelled",
		})
		return
	}
	writeError(w, http.StatusNotFound, "Job not found or already finished", "")
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
