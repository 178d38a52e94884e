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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/internal/ui"
	"github.com/kraklabs/repograph/pkg/gitops"
	"github.com/kraklabs/repograph/pkg/ingestion"
	"github.com/kraklabs/repograph/pkg/llm"
)

// runIngest clones and ingests one repository from the command line.
func runIngest(args []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	remoteURL := fs.String("url", "", "Git remote URL to ingest (required)")
	slug := fs.String("slug", "", "Repository slug (default: derived from URL)")
	branch := fs.String("branch", "", "Branch to ingest (default: remote default branch)")
	full := fs.Bool("full", false, "Force full re-ingestion")
	noLLM := fs.Bool("no-llm", false, "Skip summarization and embedding phases")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph ingest --url <remote> [options]

Description:
  Clone a repository, parse its source into definitions and references,
  build the dependency graphs, summarize every definition and file
  bottom-up, and embed the summaries for semantic search.

  Re-running against an already ingested repository processes only the
  files changed since the last ingested commit.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  repograph ingest --url https://github.com/golang/example
  repograph ingest --url git@github.com:acme/api.git --branch develop
  repograph ingest --url https://github.com/acme/api --full

`)
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *remoteURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --url is required")
		fs.Usage()
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

	logger := newLogger(globals)

	var chat llm.ChatClient
	var embeddings llm.EmbeddingsClient
	if !*noLLM {
		chat, embeddings = buildClients(logger)
	}

	pipeline := ingestion.NewPipeline(ingestion.PipelineConfig{
		WorkspaceDir: workspace,
		ForceFull:    *full,
		Summaries:    summarizeConfig(cfg),
		Embeddings:   embedConfig(cfg),
	}, chat, embeddings, logger)

	progressCfg := NewProgressConfig(globals)
	var currentBar *progressbar.ProgressBar
	var currentPhase string
	pipeline.SetProgressCallback(func(phase string, current, total int) {
		if phase != currentPhase {
			if currentBar != nil {
				_ = currentBar.Finish()
			}
			currentPhase = phase
			currentBar = NewProgressBar(progressCfg, int64(total), phaseDescription(phase))
		}
		if currentBar != nil {
			_ = currentBar.Set(current)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.Run(ctx, ingestion.Request{
		RemoteURL: *remoteURL,
		Slug:      effectiveSlug(*slug, *remoteURL),
		Branch:    *branch,
	})
	if currentBar != nil {
		_ = currentBar.Finish()
	}
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Ingestion failed",
			"An error occurred while ingesting the repository",
			"Check the error details above and retry; use --full to rebuild from scratch",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		_ = json.NewEncoder(os.Stdout).Encode(result)
		return 0
	}
	printIngestResult(result)
	return 0
}

// effectiveSlug returns the explicit slug or derives one from the URL,
// matching the server's derivation.
func effectiveSlug(slug, remoteURL string) string {
	if slug != "" {
		return slug
	}
	return gitops.SlugFromRemote(remoteURL)
}

// phaseDescription returns a human-readable label for each pipeline phase.
func phaseDescription(phase string) string {
	switch phase {
	case ingestion.PhaseClone:
		return "Cloning repository"
	case ingestion.PhaseParse:
		return "Parsing files"
	case ingestion.PhaseSummaries:
		return "Generating summaries"
	case ingestion.PhaseEmbeddings:
		return "Generating embeddings"
	case ingestion.PhaseFinalize:
		return "Finalizing"
	default:
		return phase
	}
}

// printIngestResult prints the run summary to stdout.
func printIngestResult(result *ingestion.Result) {
	fmt.Println()

	if result.Mode == ingestion.ModeNoop {
		ui.Header("Repository Up to Date")
		fmt.Printf("%s %s\n", ui.Label("Slug:"), result.Slug)
		fmt.Printf("%s %s\n", ui.Label("Commit:"), result.CommitHash)
		_, _ = ui.Green.Println("Everything is already ingested. No changes detected.")
		fmt.Println()
		fmt.Println("To force a full re-ingestion:")
		fmt.Println("  repograph ingest --url <remote> --full")
		return
	}

	ui.Header("Ingestion Complete")
	fmt.Printf("%s %s\n", ui.Label("Slug:"), result.Slug)
	fmt.Printf("%s %s\n", ui.Label("Mode:"), result.Mode)
	fmt.Printf("%s %s\n", ui.Label("Commit:"), result.CommitHash)

	fmt.Printf("Files Parsed: %s\n", ui.CountText(result.FilesParsed))
	fmt.Printf("Definitions Added: %s\n", ui.CountText(result.DefinitionsAdded))
	if result.DefinitionsRemoved > 0 {
		fmt.Printf("Definitions Removed: %s\n", ui.CountText(result.DefinitionsRemoved))
	}
	fmt.Printf("References Created: %s\n", ui.CountText(result.ReferencesCreated))
	fmt.Printf("Summaries Generated: %s\n", ui.CountText(int(result.Summaries)))
	fmt.Printf("Embeddings Stored: %s\n", ui.CountText(int(result.Embeddings)))

	fmt.Println()
	ui.SubHeader("Totals")
	fmt.Printf("Files: %s  Definitions: %s  Embeddings: %s\n",
		ui.CountText(result.TotalFiles),
		ui.CountText(result.TotalDefinitions),
		ui.CountText(result.TotalEmbeddings),
	)
	fmt.Printf("%s %s\n", ui.Label("Duration:"), result.Duration.Round(10*time.Millisecond))
}
