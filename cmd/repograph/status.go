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
	"github.com/kraklabs/repograph/pkg/store"
)

// runStatus shows what is ingested, either for one slug or for the
// whole workspace.
func runStatus(args []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	slug := fs.String("slug", "", "Repository slug (default: list all ingested repositories)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph status [--slug <slug>]

Show ingested repositories and their counts.

Options:
`)
		fs.PrintDefaults()
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

	if *slug != "" {
		return statusForSlug(workspace, *slug, globals)
	}

	entries, err := os.ReadDir(workspace)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No repositories ingested yet.")
			return 0
		}
		errors.FatalError(errors.NewPermissionError(
			"Cannot read workspace directory",
			fmt.Sprintf("Failed to list %s", workspace),
			"Check directory permissions",
			err,
		), globals.JSON)
	}

	var slugs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".db") {
			slugs = append(slugs, strings.TrimSuffix(e.Name(), ".db"))
		}
	}
	if len(slugs) == 0 {
		fmt.Println("No repositories ingested yet.")
		return 0
	}

	exit := 0
	for _, s := range slugs {
		if statusForSlug(workspace, s, globals) != 0 {
			exit = 1
		}
	}
	return exit
}

type repoStatus struct {
	Slug        string `json:"repo_slug"`
	RemoteURL   string `json:"remote_url"`
	Branch      string `json:"branch"`
	CommitHash  string `json:"commit_hash"`
	Files       int    `json:"files"`
	Definitions int    `json:"definitions"`
	Embeddings  int    `json:"embeddings"`
}

func statusForSlug(workspace, slug string, globals GlobalFlags) int {
	dbPath := filepath.Join(workspace, slug+".db")
	logger := newLogger(globals)

	st, err := store.Open(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open %s: %v\n", dbPath, err)
		return 1
	}
	defer st.Close()

	ctx := context.Background()
	status := repoStatus{Slug: slug}

	if repo, err := st.GetRepository(ctx); err == nil {
		status.RemoteURL = repo.RemoteURL
		status.Branch = repo.DefaultBranch
		status.CommitHash = repo.CommitHash
	}
	if status.Files, err = st.CountFiles(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if status.Definitions, err = st.CountDefinitions(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if status.Embeddings, err = st.CountEmbeddings(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if globals.JSON {
		_ = json.NewEncoder(os.Stdout).Encode(status)
		return 0
	}

	ui.Header(slug)
	if status.RemoteURL != "" {
		fmt.Printf("%s %s\n", ui.Label("Remote:"), status.RemoteURL)
		fmt.Printf("%s %s @ %s\n", ui.Label("Branch:"), status.Branch, status.CommitHash)
	}
	fmt.Printf("Files: %s  Definitions: %s  Embeddings: %s\n",
		ui.CountText(status.Files),
		ui.CountText(status.Definitions),
		ui.CountText(status.Embeddings),
	)
	return 0
}
