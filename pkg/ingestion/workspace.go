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

package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/repograph/pkg/store"
)

// Workspace manifest types.
const (
	WorkspaceGo     = "go"
	WorkspaceNode   = "node"
	WorkspacePython = "python"
)

// DetectPackages walks the clone for package manifests (go.mod,
// package.json, pyproject.toml, setup.py) and upserts a packages row per
// manifest directory. The repository root manifest is flagged as the
// workspace root.
func DetectPackages(ctx context.Context, st *store.Store, repoID int64, rootDir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	count := 0
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootDir && excludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		pkg := manifestPackage(rootDir, path, d.Name())
		if pkg == nil {
			return nil
		}
		pkg.RepositoryID = repoID

		if err := st.UpsertPackage(ctx, pkg); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}

	logger.Info("ingest.packages.detected", "count", count)
	return count, nil
}

// manifestPackage builds a Package for a recognized manifest file, or nil.
func manifestPackage(rootDir, path, base string) *store.Package {
	dir, err := filepath.Rel(rootDir, filepath.Dir(path))
	if err != nil {
		return nil
	}
	dir = filepath.ToSlash(dir)

	pkg := &store.Package{
		Path:            dir,
		IsWorkspaceRoot: dir == ".",
	}

	switch base {
	case "go.mod":
		pkg.WorkspaceType = WorkspaceGo
		pkg.Name = goModuleName(path)
	case "package.json":
		pkg.WorkspaceType = WorkspaceNode
		pkg.Name, pkg.EntryPoint = nodePackageInfo(path)
	case "pyproject.toml":
		pkg.WorkspaceType = WorkspacePython
		pkg.Name = pyprojectName(path)
	case "setup.py":
		pkg.WorkspaceType = WorkspacePython
	default:
		return nil
	}

	if pkg.Name == "" {
		pkg.Name = filepath.Base(filepath.Dir(path))
		if dir == "." {
			pkg.Name = filepath.Base(rootDir)
		}
	}
	return pkg
}

// goModuleName reads the module path from a go.mod file.
func goModuleName(path string) string {
	f, err := os.Open(path) //nolint:gosec // path comes from the walk
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// nodePackageInfo reads the name and main entry point from package.json.
func nodePackageInfo(path string) (name, entry string) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the walk
	if err != nil {
		return "", ""
	}
	var manifest struct {
		Name string `json:"name"`
		Main string `json:"main"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", ""
	}
	return manifest.Name, manifest.Main
}

// pyprojectName scans pyproject.toml for the project name. A line scan is
// enough here; a full TOML parse buys nothing for one key.
func pyprojectName(path string) string {
	f, err := os.Open(path) //nolint:gosec // path comes from the walk
	if err != nil {
		return ""
	}
	defer f.Close()

	inProject := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inProject = line == "[project]" || line == "[tool.poetry]"
			continue
		}
		if !inProject {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "name"); ok {
			rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "="))
			return strings.Trim(rest, `"'`)
		}
	}
	return ""
}
