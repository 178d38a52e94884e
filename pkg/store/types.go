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

package store

// Entity type discriminators used by embeddings and search.
const (
	EntityFile       = "file"
	EntityDefinition = "definition"
)

// Definition kinds produced by the parser.
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindClass     = "class"
	KindInterface = "interface"
	KindTypeAlias = "type_alias"
	KindEnum      = "enum"
	KindModule    = "module"
	KindConstant  = "constant"
	KindVariable  = "variable"
)

// Reference types.
const (
	RefLocal    = "local"
	RefImported = "imported"
	RefUnknown  = "unknown"
)

// Repository is one row in the repositories table.
type Repository struct {
	ID            int64
	RemoteURL     string
	Slug          string
	CommitHash    string
	DefaultBranch string
}

// Package is a package manifest discovered in the repository.
type Package struct {
	ID              int64
	RepositoryID    int64
	Name            string
	Path            string
	EntryPoint      string
	IsWorkspaceRoot bool
	WorkspaceType   string
}

// File is one source file currently present in the repository.
type File struct {
	ID             int64
	PackageID      *int64
	Path           string
	Language       string
	Content        string
	AISummary      *string
	AIShortSummary *string
}

// Definition is one extracted syntactic unit.
type Definition struct {
	ID              int64
	FileID          int64
	Name            string
	Kind            string
	StartLine       int
	EndLine         int
	SourceCode      string
	SourceCodeHash  string
	Docstring       string
	IsExported      bool
	IsDefaultExport bool
	AISummary       *string
	AIShortSummary  *string
}

// Reference links a use-site inside one definition to a target definition.
// TargetID nil means the reference is unresolved or external.
type Reference struct {
	ID       int64
	SourceID int64
	TargetID *int64
	Name     string
	Type     string
}

// Import is one file-level import statement.
type Import struct {
	FileID     int64
	ImportPath string
	Alias      string
	StartLine  int
}

// DependencyEdge is a directed edge in either materialized dependency table.
type DependencyEdge struct {
	From int64
	To   int64
}

// EmbeddingRow is an upsert payload for the embeddings table.
type EmbeddingRow struct {
	EntityType     string
	EntityID       int64
	EntityName     string
	FilePath       string
	Language       string
	DefinitionType string
	Vector         []byte // packed little-endian float32
	Model          string
	Dims           int
}

// SearchRow is one result from vector or FTS search, before the HTTP layer
// maps distance to similarity.
type SearchRow struct {
	EntityType     string
	EntityID       int64
	EntityName     string
	FilePath       string
	Language       string
	DefinitionType string
	AISummary      string
	CreatedAt      string
	Distance       float64
}
