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
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/internal/ui"
	"github.com/kraklabs/repograph/pkg/llm"
	"github.com/kraklabs/repograph/pkg/search"
	"github.com/kraklabs/repograph/pkg/store"
)

// runSearch queries an ingested repository from the command line.
func runSearch(args []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	slug := fs.String("slug", "", "Repository slug to search (required)")
	mode := fs.String("mode", search.ModeHybrid, "Search mode: semantic, symbol, path, hybrid")
	topK := fs.Int("top-k", search.DefaultTopK, "Maximum number of results")
	entityType := fs.String("type", "", "Restrict to entity type: file or definition")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph search <query> --slug <slug> [options]

Description:
  Search an ingested repository. Semantic mode finds similar summaries by
  vector distance; symbol and path modes run full-text search over
  definition names and file paths; hybrid merges all three.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  repograph search "connection pooling" --slug acme-api
  repograph search ParseConfig --slug acme-api --mode symbol
  repograph search "retry logic" --slug acme-api --mode hybrid --top-k 5

`)
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}
	query := strings.Join(fs.Args(), " ")
	if query == "" {
		fmt.Fprintln(os.Stderr, "Error: a query is required")
		fs.Usage()
		return 1
	}
	if *slug == "" {
		fmt.Fprintln(os.Stderr, "Error: --slug is required")
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

	dbPath := filepath.Join(workspace, *slug+".db")
	if _, err := os.Stat(dbPath); err != nil {
		errors.FatalError(errors.NewValidationError(
			"Repository not ingested",
			fmt.Sprintf("No database found for slug %q at %s", *slug, dbPath),
			"Run 'repograph ingest --url <remote>' first",
			err,
		), globals.JSON)
	}

	logger := newLogger(globals)
	st, err := store.Open(dbPath, logger)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot open repository database",
			fmt.Sprintf("Failed to open %s", dbPath),
			"The database may be corrupt; re-ingest with --full",
			err,
		), globals.JSON)
	}
	defer st.Close()

	// The embeddings client is only needed for semantic and hybrid modes.
	var embedder llm.EmbeddingsClient
	if *mode == search.ModeSemantic || *mode == search.ModeHybrid || *mode == "" {
		embedder, err = llm.EmbeddingsFromEnv()
		if err != nil {
			errors.FatalError(errors.NewConfigError(
				"Embeddings provider not configured",
				"Vector search requires an embeddings client",
				"Set EMBEDDINGS_API_KEY, or use --mode symbol or --mode path",
				err,
			), globals.JSON)
		}
	}

	results, err := search.NewProcessor(st, embedder, logger).
		Search(context.Background(), query, *mode, *topK, *entityType)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Search failed",
			"An error occurred while executing the search",
			"Check the error details above",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		if results == nil {
			results = []search.Result{}
		}
		_ = json.NewEncoder(os.Stdout).Encode(results)
		return 0
	}

	printSearchResults(query, results)
	return 0
}

func printSearchResults(query string, results []search.Result) {
	if len(results) == 0 {
		fmt.Printf("No results for %q\n", query)
		return
	}

	ui.Header(fmt.Sprintf("Results for %q", query))
	for i, r := range results {
		name := r.Metadata.EntityName
		if name == "" {
			name = r.Metadata.FilePath
		}
		fmt.Printf("%2d. ", i+1)
		_, _ = ui.Bold.Print(name)
		fmt.Printf("  %s\n", ui.DimText(fmt.Sprintf("%s  score %.3f", r.EntityType, r.Similarity)))
		if r.EntityType == store.EntityDefinition {
			fmt.Printf("    %s\n", ui.DimText(fmt.Sprintf("%s (%s)", r.Metadata.FilePath, r.Metadata.DefinitionType)))
		}
		if r.Summary != "" {
			fmt.Printf("    %s\n", r.Summary)
		}
	}
}
