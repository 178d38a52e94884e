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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/internal/ui"
)

// runDelete removes a repository's database and clone from the workspace.
func runDelete(args []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	slug := fs.String("slug", "", "Repository slug to delete (required)")
	yes := fs.BoolP("yes", "y", false, "Skip the confirmation prompt")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: repograph delete --slug <slug> [--yes]

Delete a repository's database and clone. This is destructive; the
repository must be re-ingested from scratch afterwards.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
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
	clonePath := filepath.Join(workspace, "clones", *slug)
	if _, err := os.Stat(dbPath); err != nil {
		if _, cloneErr := os.Stat(clonePath); cloneErr != nil {
			fmt.Fprintf(os.Stderr, "Nothing to delete for slug %q\n", *slug)
			return 1
		}
	}

	if !*yes {
		fmt.Printf("Delete all data for %q? This cannot be undone. [y/N] ", *slug)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return 1
		}
	}

	exit := 0
	for _, target := range []string{dbPath, clonePath} {
		if err := os.RemoveAll(target); err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not remove %s: %v\n", target, err)
			exit = 1
		}
	}
	if exit == 0 {
		_, _ = ui.Green.Printf("Deleted %s\n", *slug)
	}
	return exit
}
