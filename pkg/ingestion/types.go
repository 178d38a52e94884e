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

import "github.com/kraklabs/repograph/pkg/gitops"

// ParsedDefinition is one syntactic unit extracted from a source file.
// Lines are 1-based and inclusive.
type ParsedDefinition struct {
	Name            string
	Kind            string
	StartLine       int
	EndLine         int
	SourceCode      string
	Docstring       string
	IsExported      bool
	IsDefaultExport bool
}

// ParsedImport is one file-level import statement.
type ParsedImport struct {
	Path      string
	Alias     string
	StartLine int
}

// Occurrence is a use-site of a name inside a file. Line is 1-based.
type Occurrence struct {
	Name string
	Line int
}

// FileParse is everything the parser extracts from one file.
type FileParse struct {
	Path        string
	Language    string
	Definitions []ParsedDefinition
	Imports     []ParsedImport
	Occurrences []Occurrence
}

// FileDefDelta records how one file's definitions changed against the
// stored state, as definition row ids.
type FileDefDelta struct {
	Added     []int64
	Removed   []int64
	Unchanged []int64
}

// ParseDelta summarizes what one parse pass changed. Downstream phases use
// it to decide which summaries and embeddings need regenerating.
type ParseDelta struct {
	FilesAdded    []string
	FilesModified []string
	FilesDeleted  []string
	FilesRenamed  []gitops.RenamedFile

	// PerFile maps a file path to the definition-level changes inside it.
	PerFile map[string]FileDefDelta
}

// Empty reports whether the parse changed nothing.
func (d *ParseDelta) Empty() bool {
	if d == nil {
		return true
	}
	if len(d.FilesAdded) > 0 || len(d.FilesModified) > 0 ||
		len(d.FilesDeleted) > 0 || len(d.FilesRenamed) > 0 {
		return false
	}
	for _, fd := range d.PerFile {
		if len(fd.Added) > 0 || len(fd.Removed) > 0 {
			return false
		}
	}
	return true
}

// DefinitionsAdded returns the union of per-file added definition ids.
func (d *ParseDelta) DefinitionsAdded() []int64 {
	var out []int64
	for _, fd := range d.PerFile {
		out = append(out, fd.Added...)
	}
	return out
}

// DefinitionsRemoved returns the union of per-file removed definition ids.
func (d *ParseDelta) DefinitionsRemoved() []int64 {
	var out []int64
	for _, fd := range d.PerFile {
		out = append(out, fd.Removed...)
	}
	return out
}

// ChangedPaths returns every path whose content changed in this pass,
// renames included under their new name.
func (d *ParseDelta) ChangedPaths() []string {
	out := make([]string, 0, len(d.FilesAdded)+len(d.FilesModified)+len(d.FilesRenamed))
	out = append(out, d.FilesAdded...)
	out = append(out, d.FilesModified...)
	for _, r := range d.FilesRenamed {
		out = append(out, r.New)
	}
	return out
}

// DefinitionChangedPaths returns the paths whose definition set actually
// changed. A rename-only or comment-only edit modifies the file but leaves
// this set empty, and such files keep their summaries.
func (d *ParseDelta) DefinitionChangedPaths() []string {
	var out []string
	for path, fd := range d.PerFile {
		if len(fd.Added) > 0 || len(fd.Removed) > 0 {
			out = append(out, path)
		}
	}
	return out
}
