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

// Package main implements the repograph CLI for ingesting repositories
// into a searchable knowledge graph.
//
// Usage:
//
//	repograph serve                    Start the HTTP API server
//	repograph ingest --url <remote>    Ingest a repository
//	repograph search <query>           Search an ingested repository
//	repograph status --slug <slug>     Show repository status
//	repograph delete --slug <slug>     Delete a repository's data
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	// .env is optional; environment always wins over file values.
	_ = godotenv.Load()

	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to repograph.yaml (default: ./repograph.yaml)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)

	// Stop parsing at the first non-flag argument so subcommand flags
	// like "ingest --full" reach the subcommand parser.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `repograph - repository knowledge graphs

repograph clones a git repository, parses its source into definitions
and references, summarizes everything bottom-up with an LLM, embeds the
summaries, and serves semantic search over the result.

Usage:
  repograph <command> [options]

Commands:
  serve     Start the HTTP API server
  ingest    Clone and ingest a repository
  search    Search an ingested repository
  status    Show an ingested repository's status
  delete    Delete a repository's data (destructive!)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  -c, --config      Path to repograph.yaml
  -V, --version     Show version and exit

Examples:
  repograph ingest --url https://github.com/golang/example
  repograph search "rate limiting" --slug golang-example --mode hybrid
  repograph serve --port 8080

Environment Variables:
  SUMMARIES_API_KEY    Chat provider key (Gemini, or with SUMMARIES_BASE_URL any OpenAI-compatible API)
  EMBEDDINGS_API_KEY   Embeddings provider key
  ANALYSIS_DB_DIR      Workspace override (default: ~/.repograph/data)
  GITHUB_TOKEN         Used for cloning private repositories

For detailed command help: repograph <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("repograph version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}
	// Progress bars corrupt JSON output.
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "serve":
		os.Exit(runServe(cmdArgs, *configPath, globals))
	case "ingest":
		os.Exit(runIngest(cmdArgs, *configPath, globals))
	case "search":
		os.Exit(runSearch(cmdArgs, *configPath, globals))
	case "status":
		os.Exit(runStatus(cmdArgs, *configPath, globals))
	case "delete":
		os.Exit(runDelete(cmdArgs, *configPath, globals))
	case "version":
		fmt.Printf("repograph version %s\n", version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// newLogger builds the process logger from the verbosity flags.
func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
