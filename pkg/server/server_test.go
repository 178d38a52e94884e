// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/ingestion"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	workspace := t.TempDir()
	srv := New(Config{
		Addr:     ":0",
		Pipeline: ingestion.PipelineConfig{WorkspaceDir: workspace},
	}, nil, nil, nil)
	return srv, workspace
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&decoded))
	return rec, decoded
}

// TestHealthz verifies the liveness endpoint.
func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

// TestIngest_Validation verifies required fields and the slug charset.
func TestIngest_Validation(t *testing.T) {
	srv, _ := testServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/ingest/github", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "github_url")

	rec, body = doJSON(t, srv.Handler(), http.MethodPost, "/ingest/github",
		`{"github_url":"https://github.com/a/b","repo_slug":"../etc/passwd"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "invalid repo_slug")

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/ingest/github", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// TestJobStatus_UnknownID verifies the in-memory table contract: unknown
// ids report as completed rather than erroring.
func TestJobStatus_UnknownID(t *testing.T) {
	srv, _ := testServer(t)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/ingest/jobs/0b31a9a1-missing", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "succeeded", body["status"])
}

// TestSearch_NotIngested verifies searching an unknown slug is a 404.
func TestSearch_NotIngested(t *testing.T) {
	srv, _ := testServer(t)
	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/search",
		`{"repo_slug":"nope","query":"anything"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "not ingested")
}

// TestSearch_UnknownModeRejected verifies a bad mode is a client error,
// not a 500 from deep inside the query path.
func TestSearch_UnknownModeRejected(t *testing.T) {
	srv, workspace := testServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "acme-api.db"), []byte("x"), 0600))

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/search",
		`{"repo_slug":"acme-api","query":"anything","mode":"regex"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "unknown search mode")
}

// TestDelete_RemovesWorkspaceEntries verifies deletion of database, WAL
// companions, and clone, and rejection of escaping slugs.
func TestDelete_RemovesWorkspaceEntries(t *testing.T) {
	srv, workspace := testServer(t)

	dbPath := filepath.Join(workspace, "acme-api.db")
	walPath := filepath.Join(workspace, "acme-api.db-wal")
	shmPath := filepath.Join(workspace, "acme-api.db-shm")
	clonePath := filepath.Join(workspace, "clones", "acme-api")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0600))
	require.NoError(t, os.WriteFile(walPath, []byte("x"), 0600))
	require.NoError(t, os.WriteFile(shmPath, []byte("x"), 0600))
	require.NoError(t, os.MkdirAll(clonePath, 0750))

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/repo/delete",
		`{"repo_slug":"acme-api"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["deleted"])

	for _, path := range []string{dbPath, walPath, shmPath, clonePath} {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "%s should be gone", path)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/repo/delete",
		`{"repo_slug":".."}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPathWithin covers the confinement helper directly.
func TestPathWithin(t *testing.T) {
	assert.True(t, pathWithin("/data", "/data/x.db"))
	assert.True(t, pathWithin("/data", "/data/clones/x"))
	assert.False(t, pathWithin("/data", "/data/../etc/passwd"))
	assert.False(t, pathWithin("/data", "/etc/passwd"))
	assert.False(t, pathWithin("/data", "/data"))
	assert.False(t, pathWithin("/data", "/data/clones/.."))
}
