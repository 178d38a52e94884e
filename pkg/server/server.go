// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the ingestion pipeline and search over HTTP.
// Ingestion is asynchronous: POST /ingest/github returns a job id that
// GET /ingest/jobs/{id} reports on.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/repograph/pkg/gitops"
	"github.com/kraklabs/repograph/pkg/ingestion"
	"github.com/kraklabs/repograph/pkg/jobs"
	"github.com/kraklabs/repograph/pkg/llm"
	"github.com/kraklabs/repograph/pkg/search"
	"github.com/kraklabs/repograph/pkg/store"
)

// Slugs become file names under the workspace, so the charset is strict.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// validSlug rejects anything that could resolve outside the workspace.
func validSlug(slug string) bool {
	if slug == "." || slug == ".." {
		return false
	}
	return slugPattern.MatchString(slug)
}

// Config configures the HTTP server.
type Config struct {
	Addr     string
	Pipeline ingestion.PipelineConfig
}

// Server routes HTTP requests to the pipeline, job table, and search.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	jobs       *jobs.Manager
	chat       llm.ChatClient
	embeddings llm.EmbeddingsClient
	mux        *http.ServeMux
}

// New creates a server. chat and embeddings may be nil; ingestion then
// skips those phases and vector search reports an error.
func New(cfg Config, chat llm.ChatClient, embeddings llm.EmbeddingsClient, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		jobs:       jobs.NewManager(logger),
		chat:       chat,
		embeddings: embeddings,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ingest/github", s.handleIngest)
	s.mux.HandleFunc("/ingest/jobs/", s.handleJobStatus)
	s.mux.HandleFunc("/search", s.handleSearch)
	s.mux.HandleFunc("/repo/delete", s.handleDelete)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// Handler returns the server's mux, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks until ctx is cancelled, then drains in-flight
// jobs before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listening", "addr", s.cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.jobs.Wait()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type ingestRequest struct {
	GithubURL string `json:"github_url"`
	Slug      string `json:"repo_slug"`
	Branch    string `json:"branch,omitempty"`
	ForceFull bool   `json:"force_full,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.GithubURL == "" {
		writeError(w, http.StatusBadRequest, "github_url is required")
		return
	}
	if req.Slug == "" {
		req.Slug = gitops.SlugFromRemote(req.GithubURL)
	}
	if !validSlug(req.Slug) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid repo_slug: %q", req.Slug))
		return
	}

	cfg := s.cfg.Pipeline
	cfg.ForceFull = cfg.ForceFull || req.ForceFull

	// The job outlives this request.
	rec := s.jobs.Submit(context.Background(), req.Slug, func(ctx context.Context, job *jobs.Handle) (string, error) {
		pipeline := ingestion.NewPipeline(cfg, s.chat, s.embeddings, s.logger)
		pipeline.SetProgressCallback(job.SetProgress)
		result, err := pipeline.Run(ctx, ingestion.Request{
			RemoteURL: req.GithubURL,
			Slug:      req.Slug,
			Branch:    req.Branch,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s ingest at %s: %d files, %d definitions, %d embeddings",
			result.Mode, result.CommitHash,
			result.TotalFiles, result.TotalDefinitions, result.TotalEmbeddings), nil
	})

	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/ingest/jobs/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	rec := s.jobs.Get(id)
	if rec == nil {
		// The table is in-memory; a forgotten id means the job finished
		// before a restart.
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":  id,
			"status":  jobs.StatusSucceeded,
			"message": "job completed (record expired)",
		})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type searchRequest struct {
	Slug        string   `json:"repo_slug"`
	Query       string   `json:"query"`
	Mode        string   `json:"mode,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	EntityTypes []string `json:"entity_types,omitempty"`
}

// entityFilter collapses the requested entity types to the store's single
// filter value: one type narrows, none or both means no filter.
func entityFilter(types []string) string {
	if len(types) == 1 {
		return types[0]
	}
	return ""
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if !validSlug(req.Slug) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid repo_slug: %q", req.Slug))
		return
	}
	switch req.Mode {
	case "", search.ModeSemantic, search.ModeSymbol, search.ModePath, search.ModeHybrid:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown search mode: %q", req.Mode))
		return
	}

	dbPath := filepath.Join(s.cfg.Pipeline.WorkspaceDir, req.Slug+".db")
	if _, err := os.Stat(dbPath); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("repository %q is not ingested", req.Slug))
		return
	}

	st, err := store.Open(dbPath, s.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer st.Close()

	results, err := search.NewProcessor(st, s.embeddings, s.logger).
		Search(r.Context(), req.Query, req.Mode, req.TopK, entityFilter(req.EntityTypes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []search.Result{}
	}

	var maxSim, minSim float64
	if len(results) > 0 {
		maxSim = results[0].Similarity
		minSim = results[0].Similarity
		for _, res := range results {
			if res.Similarity > maxSim {
				maxSim = res.Similarity
			}
			if res.Similarity < minSim {
				minSim = res.Similarity
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":          req.Query,
		"total_results":  len(results),
		"results":        results,
		"max_similarity": maxSim,
		"min_similarity": minSim,
	})
}

type deleteRequest struct {
	Slug string `json:"repo_slug"`
}

// handleDelete removes a repository's database and clone. Removal is best
// effort; anything that could not be removed is listed in the message.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if !validSlug(req.Slug) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid repo_slug: %q", req.Slug))
		return
	}

	workspace := s.cfg.Pipeline.WorkspaceDir
	// WAL mode leaves -wal and -shm companions next to the database.
	targets := []string{
		filepath.Join(workspace, req.Slug+".db"),
		filepath.Join(workspace, req.Slug+".db-wal"),
		filepath.Join(workspace, req.Slug+".db-shm"),
		filepath.Join(workspace, "clones", req.Slug),
	}
	// Validate every target before touching any of them.
	for _, target := range targets {
		if !pathWithin(workspace, target) {
			writeError(w, http.StatusBadRequest, "path escapes workspace")
			return
		}
	}

	var issues []string
	for _, target := range targets {
		if err := os.RemoveAll(target); err != nil {
			issues = append(issues, err.Error())
		}
	}

	message := "repository deleted"
	if len(issues) > 0 {
		message = "repository partially deleted: " + strings.Join(issues, "; ")
	}
	s.logger.Info("server.repo_deleted", "slug", req.Slug, "issues", len(issues))
	writeJSON(w, http.StatusOK, map[string]any{
		"repo_slug": req.Slug,
		"deleted":   true,
		"message":   message,
	})
}

// pathWithin reports whether target resolves inside root.
func pathWithin(root, target string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil {
		return false
	}
	// The root itself is not a deletable target.
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
