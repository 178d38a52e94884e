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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/ingestion"
	"github.com/kraklabs/repograph/pkg/llm"
	"github.com/kraklabs/repograph/pkg/server"
)

// runServe starts the HTTP API server.
func runServe(args []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.StringP("port", "p", "", "Port to listen on (default: 8080, or REPOGRAPH_PORT)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: repograph serve [options]

Start the HTTP API server.

Options:
  -p, --port <port>   Port to listen on (default: 8080, or REPOGRAPH_PORT)
  -h, --help          Show this help message

Endpoints:
  POST /ingest/github      Start an ingestion job (async, returns job_id)
  GET  /ingest/jobs/{id}   Get ingestion job status
  POST /search             Search an ingested repository
  POST /repo/delete        Delete a repository's data
  GET  /healthz            Health check
  GET  /metrics            Prometheus metrics`)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	workspace, err := workspaceDir(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if err := os.MkdirAll(workspace, 0750); err != nil {
		errors.FatalError(errors.NewPermissionError(
			"Cannot create workspace directory",
			fmt.Sprintf("Failed to create %s", workspace),
			"Check directory permissions or set ANALYSIS_DB_DIR to a writable path",
			err,
		), globals.JSON)
	}

	// The server defaults to info logging; it is a long-running process.
	logger := newLogger(globals)
	if globals.Verbose == 0 && !globals.Quiet {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	chat, embeddings := buildClients(logger)

	listenPort := *port
	if listenPort == "" {
		listenPort = getEnv("REPOGRAPH_PORT", cfg.Server.Port)
	}
	if listenPort == "" {
		listenPort = defaultPort
	}

	srv := server.New(server.Config{
		Addr: ":" + listenPort,
		Pipeline: ingestion.PipelineConfig{
			WorkspaceDir: workspace,
			Summaries:    summarizeConfig(cfg),
			Embeddings:   embedConfig(cfg),
		},
	}, chat, embeddings, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

// buildClients constructs the LLM clients from the environment. Either
// may be absent; the affected phases are skipped with a warning.
func buildClients(logger *slog.Logger) (llm.ChatClient, llm.EmbeddingsClient) {
	chat, err := llm.ChatFromEnv()
	if err != nil {
		logger.Warn("llm.chat_unavailable", "error", err)
		chat = nil
	}
	embeddings, err := llm.EmbeddingsFromEnv()
	if err != nil {
		logger.Warn("llm.embeddings_unavailable", "error", err)
		embeddings = nil
	}
	return chat, embeddings
}
