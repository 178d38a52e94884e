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

import (
	"context"
	"fmt"
	"strings"
)

// schemaDDL is idempotent; every statement uses IF NOT EXISTS.
//
// "references" is an SQL keyword, so the reference table is named
// symbol_references.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS repositories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_origin_url TEXT NOT NULL UNIQUE,
    repo_slug TEXT NOT NULL,
    commit_hash TEXT,
    default_branch TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS packages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    repository_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    entry_point TEXT,
    is_workspace_root INTEGER NOT NULL DEFAULT 0,
    workspace_type TEXT,
    UNIQUE(repository_id, path)
);

CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    package_id INTEGER REFERENCES packages(id) ON DELETE SET NULL,
    file_path TEXT NOT NULL UNIQUE,
    language TEXT,
    file_content TEXT,
    ai_summary TEXT,
    ai_short_summary TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS definitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    definition_type TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    source_code TEXT NOT NULL,
    source_code_hash TEXT NOT NULL,
    docstring TEXT,
    is_exported INTEGER NOT NULL DEFAULT 0,
    is_default_export INTEGER NOT NULL DEFAULT 0,
    ai_summary TEXT,
    ai_short_summary TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(file_id, name, start_line, definition_type),
    CHECK(start_line <= end_line)
);
CREATE INDEX IF NOT EXISTS idx_definitions_file ON definitions(file_id);
CREATE INDEX IF NOT EXISTS idx_definitions_file_hash ON definitions(file_id, source_code_hash);

CREATE TABLE IF NOT EXISTS symbol_references (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_definition_id INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
    target_definition_id INTEGER REFERENCES definitions(id) ON DELETE SET NULL,
    reference_name TEXT NOT NULL,
    reference_type TEXT NOT NULL DEFAULT 'unknown',
    UNIQUE(source_definition_id, target_definition_id)
);
CREATE INDEX IF NOT EXISTS idx_references_target ON symbol_references(target_definition_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_references_unresolved
    ON symbol_references(source_definition_id, reference_name)
    WHERE target_definition_id IS NULL;

CREATE TABLE IF NOT EXISTS file_imports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    import_path TEXT NOT NULL,
    alias TEXT,
    start_line INTEGER
);
CREATE INDEX IF NOT EXISTS idx_file_imports_file ON file_imports(file_id);

CREATE TABLE IF NOT EXISTS definition_dependencies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_definition_id INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
    to_definition_id INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
    dependency_type TEXT NOT NULL DEFAULT 'references',
    UNIQUE(from_definition_id, to_definition_id)
);

CREATE TABLE IF NOT EXISTS file_dependencies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    to_file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    UNIQUE(from_file_id, to_file_id)
);

CREATE TABLE IF NOT EXISTS embeddings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL CHECK(entity_type IN ('file','definition')),
    entity_id INTEGER NOT NULL,
    entity_name TEXT,
    file_path TEXT,
    language TEXT,
    definition_type TEXT,
    embedding BLOB NOT NULL,
    embedding_model TEXT,
    embedding_dims INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(entity_type, entity_id)
);
`

// ftsDDL needs the FTS5 module, which mattn/go-sqlite3 only compiles in
// under the sqlite_fts5 build tag. It is applied separately so a binary
// built without the tag still opens stores; name and path search then fall
// back to LIKE scans.
const ftsDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS definitions_name_fts USING fts5(
    name, content='definitions', content_rowid='id'
);
CREATE TRIGGER IF NOT EXISTS definitions_fts_insert AFTER INSERT ON definitions BEGIN
    INSERT INTO definitions_name_fts(rowid, name) VALUES (new.id, new.name);
END;
CREATE TRIGGER IF NOT EXISTS definitions_fts_delete AFTER DELETE ON definitions BEGIN
    INSERT INTO definitions_name_fts(definitions_name_fts, rowid, name) VALUES ('delete', old.id, old.name);
END;
CREATE TRIGGER IF NOT EXISTS definitions_fts_update AFTER UPDATE OF name ON definitions BEGIN
    INSERT INTO definitions_name_fts(definitions_name_fts, rowid, name) VALUES ('delete', old.id, old.name);
    INSERT INTO definitions_name_fts(rowid, name) VALUES (new.id, new.name);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS files_path_fts USING fts5(
    file_path, content='files', content_rowid='id'
);
CREATE TRIGGER IF NOT EXISTS files_fts_insert AFTER INSERT ON files BEGIN
    INSERT INTO files_path_fts(rowid, file_path) VALUES (new.id, new.file_path);
END;
CREATE TRIGGER IF NOT EXISTS files_fts_delete AFTER DELETE ON files BEGIN
    INSERT INTO files_path_fts(files_path_fts, rowid, file_path) VALUES ('delete', old.id, old.file_path);
END;
CREATE TRIGGER IF NOT EXISTS files_fts_update AFTER UPDATE OF file_path ON files BEGIN
    INSERT INTO files_path_fts(files_path_fts, rowid, file_path) VALUES ('delete', old.id, old.file_path);
    INSERT INTO files_path_fts(rowid, file_path) VALUES (new.id, new.file_path);
END;
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, ftsDDL); err != nil {
		if !strings.Contains(err.Error(), "no such module: fts5") {
			return fmt.Errorf("exec fts schema: %w", err)
		}
		s.logger.Warn("store.fts.unavailable",
			"hint", "build with -tags sqlite_fts5 for indexed text search")
		return nil
	}
	s.ftsEnabled = true
	return nil
}

// FTSEnabled reports whether the FTS5 indexes are active on this store.
func (s *Store) FTSEnabled() bool { return s.ftsEnabled }

// EnsureVectorIndex creates the vec0 virtual table for the configured
// embedding dimensionality. Rows mirror embeddings by rowid = embeddings.id.
// The dimensionality is fixed per database; changing the embedding model
// requires a fresh ingest.
func (s *Store) EnsureVectorIndex(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid embedding dimensions: %d", dims)
	}
	stmt := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS embeddings_vec USING vec0(embedding float[%d])", dims)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	return nil
}
