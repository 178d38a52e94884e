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
	"path/filepath"
	"strings"
)

// Languages supported by the parser.
const (
	LangGo         = "go"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
)

// extensionLanguages maps supported file extensions to languages.
var extensionLanguages = map[string]string{
	".go":  LangGo,
	".py":  LangPython,
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
}

// LanguageForPath returns the language for a file path, or "" if the
// extension is not supported.
func LanguageForPath(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// SupportedPath reports whether the file participates in ingestion.
func SupportedPath(path string) bool {
	return LanguageForPath(path) != ""
}

// defaultExcludeGlobs are directory prefixes never walked during a full
// parse. Dependency trees and build output dominate repository size without
// contributing definitions worth summarizing.
var defaultExcludeGlobs = []string{
	".git",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"__pycache__",
	".venv",
	"venv",
	".next",
	"target",
}

// excludedDir reports whether a directory name is skipped during the walk.
func excludedDir(name string) bool {
	for _, g := range defaultExcludeGlobs {
		if name == g {
			return true
		}
	}
	return false
}
