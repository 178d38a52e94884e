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
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const definitionColumns = `
	id, file_id, name, definition_type, start_line, end_line,
	source_code, source_code_hash, COALESCE(docstring, ''),
	is_exported, is_default_export, ai_summary, ai_short_summary`

func scanDefinition(scanner interface{ Scan(...any) error }) (*Definition, error) {
	var d Definition
	err := scanner.Scan(
		&d.ID, &d.FileID, &d.Name, &d.Kind, &d.StartLine, &d.EndLine,
		&d.SourceCode, &d.SourceCodeHash, &d.Docstring,
		&d.IsExported, &d.IsDefaultExport, &d.AISummary, &d.AIShortSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan definition: %w", err)
	}
	return &d, nil
}

// InsertDefinition creates one definition row and returns its id.
func (s *Store) InsertDefinition(ctx context.Context, tx *sql.Tx, d *Definition) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO definitions (
			file_id, name, definition_type, start_line, end_line,
			source_code, source_code_hash, docstring, is_exported, is_default_export)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.FileID, d.Name, d.Kind, d.StartLine, d.EndLine,
		d.SourceCode, d.SourceCodeHash, d.Docstring, d.IsExported, d.IsDefaultExport)
	if err != nil {
		return 0, fmt.Errorf("insert definition %s: %w", d.Name, err)
	}
	return res.LastInsertId()
}

// DeleteDefinitions removes definitions by id. References from them cascade;
// references to them become null per the set-null constraint. Embedding rows
// for the ids go too, together with the mirrored vector rows, so a replaced
// definition's stale vector never lingers in the ANN index.
func (s *Store) DeleteDefinitions(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := int64Placeholders(ids)

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings_vec WHERE rowid IN (
			SELECT id FROM embeddings
			WHERE entity_type = 'definition' AND entity_id IN (`+placeholders+`)
		)`, args...); err != nil {
		// Vector table may not exist yet when no embeddings were written.
		if !strings.Contains(err.Error(), "no such table") {
			return fmt.Errorf("delete definition vector rows: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings
		WHERE entity_type = 'definition' AND entity_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete definition embeddings: %w", err)
	}

	_, err := tx.ExecContext(ctx, `DELETE FROM definitions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete definitions: %w", err)
	}
	return nil
}

// DefinitionsByFile lists all definitions stored for one file.
func (s *Store) DefinitionsByFile(ctx context.Context, fileID int64) ([]Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+definitionColumns+` FROM definitions WHERE file_id = ? ORDER BY start_line`, fileID)
	if err != nil {
		return nil, fmt.Errorf("definitions by file: %w", err)
	}
	return collectDefinitions(rows)
}

// ListDefinitions returns every definition in the store.
func (s *Store) ListDefinitions(ctx context.Context) ([]Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+definitionColumns+` FROM definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return collectDefinitions(rows)
}

// DefinitionsByIDs fetches definitions by id set.
func (s *Store) DefinitionsByIDs(ctx context.Context, ids []int64) ([]Definition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := int64Placeholders(ids)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+definitionColumns+` FROM definitions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("definitions by ids: %w", err)
	}
	return collectDefinitions(rows)
}

// GetDefinition fetches a single definition row.
func (s *Store) GetDefinition(ctx context.Context, id int64) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+definitionColumns+` FROM definitions WHERE id = ?`, id)
	return scanDefinition(row)
}

// FindDefinitionAt returns the definition spanning the given 1-based line in
// a file, preferring the tightest span. Used by the symbol resolver to map
// occurrence targets to definitions.
func (s *Store) FindDefinitionAt(ctx context.Context, filePath string, line int) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+definitionColumns+`
		FROM definitions
		WHERE file_id = (SELECT id FROM files WHERE file_path = ?)
		  AND start_line <= ? AND end_line >= ?
		ORDER BY (end_line - start_line) ASC
		LIMIT 1`, filePath, line, line)
	return scanDefinition(row)
}

// SetDefinitionSummary persists both summaries for a definition.
func (s *Store) SetDefinitionSummary(ctx context.Context, defID int64, short, full string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE definitions SET ai_short_summary = ?, ai_summary = ? WHERE id = ?`,
		short, full, defID)
	if err != nil {
		return fmt.Errorf("set definition summary: %w", err)
	}
	return nil
}

// DefinitionFileIDs maps definition ids to their file ids.
func (s *Store) DefinitionFileIDs(ctx context.Context) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, file_id FROM definitions`)
	if err != nil {
		return nil, fmt.Errorf("definition file ids: %w", err)
	}
	defer rows.Close()

	m := make(map[int64]int64)
	for rows.Next() {
		var id, fileID int64
		if err := rows.Scan(&id, &fileID); err != nil {
			return nil, err
		}
		m[id] = fileID
	}
	return m, rows.Err()
}

// DefinitionIDsMissingSummary returns ids of definitions without a short
// summary. A run that died mid-summaries leaves such rows behind; the next
// run seeds them for regeneration.
func (s *Store) DefinitionIDsMissingSummary(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM definitions
		WHERE ai_short_summary IS NULL OR ai_short_summary = ''`)
	if err != nil {
		return nil, fmt.Errorf("definitions missing summary: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountDefinitions returns the number of stored definitions.
func (s *Store) CountDefinitions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM definitions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count definitions: %w", err)
	}
	return n, nil
}

func collectDefinitions(rows *sql.Rows) ([]Definition, error) {
	defer rows.Close()
	var defs []Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *d)
	}
	return defs, rows.Err()
}

func int64Placeholders(ids []int64) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders, args
}
