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

// NearestNeighbors runs a k-NN query against the vec0 index and joins back
// to the embeddings row and the owning entity for display fields. Results
// come back ordered by ascending distance.
//
// entityType filters to "file" or "definition"; empty means both. With a
// filter active the index is over-fetched so post-filtering still fills k.
func (s *Store) NearestNeighbors(ctx context.Context, queryVec []float32, topK int, entityType string) ([]SearchRow, error) {
	fetch := topK
	if entityType != "" {
		fetch = topK * 4
	}

	query := `
		SELECT e.entity_type, e.entity_id,
		       COALESCE(e.entity_name, ''), COALESCE(e.file_path, ''),
		       COALESCE(e.language, ''), COALESCE(e.definition_type, ''),
		       COALESCE(d.ai_summary, f.ai_summary, ''), e.created_at, v.distance
		FROM (
			SELECT rowid, distance FROM embeddings_vec
			WHERE embedding MATCH ? ORDER BY distance LIMIT ?
		) v
		JOIN embeddings e ON e.id = v.rowid
		LEFT JOIN files f ON e.entity_type = 'file' AND f.id = e.entity_id
		LEFT JOIN definitions d ON e.entity_type = 'definition' AND d.id = e.entity_id`
	args := []any{PackVector(queryVec), fetch}
	if entityType != "" {
		query += ` WHERE e.entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY v.distance LIMIT ?`
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var r SearchRow
		if err := rows.Scan(&r.EntityType, &r.EntityID, &r.EntityName, &r.FilePath,
			&r.Language, &r.DefinitionType, &r.AISummary, &r.CreatedAt, &r.Distance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FTSDefinitions searches definition names with FTS5, ranked by bm25. The
// rank is surfaced as Distance so callers can merge with vector results.
// Without FTS5 compiled in, a LIKE scan serves the same contract.
func (s *Store) FTSDefinitions(ctx context.Context, query string, topK int) ([]SearchRow, error) {
	if !s.ftsEnabled {
		return s.likeDefinitions(ctx, query, topK)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.name, f.file_path, COALESCE(f.language, ''),
		       d.definition_type, COALESCE(d.ai_summary, ''), d.created_at,
		       bm25(definitions_name_fts) AS rank
		FROM definitions_name_fts
		JOIN definitions d ON d.id = definitions_name_fts.rowid
		JOIN files f ON f.id = d.file_id
		WHERE definitions_name_fts MATCH ?
		ORDER BY rank LIMIT ?`, query, topK)
	if err != nil {
		return nil, fmt.Errorf("fts definitions: %w", err)
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		r := SearchRow{EntityType: EntityDefinition}
		if err := rows.Scan(&r.EntityID, &r.EntityName, &r.FilePath, &r.Language,
			&r.DefinitionType, &r.AISummary, &r.CreatedAt, &r.Distance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FTSFiles searches file paths with FTS5, ranked by bm25.
func (s *Store) FTSFiles(ctx context.Context, query string, topK int) ([]SearchRow, error) {
	if !s.ftsEnabled {
		return s.likeFiles(ctx, query, topK)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.file_path, COALESCE(f.language, ''),
		       COALESCE(f.ai_summary, ''), f.created_at,
		       bm25(files_path_fts) AS rank
		FROM files_path_fts
		JOIN files f ON f.id = files_path_fts.rowid
		WHERE files_path_fts MATCH ?
		ORDER BY rank LIMIT ?`, query, topK)
	if err != nil {
		return nil, fmt.Errorf("fts files: %w", err)
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		r := SearchRow{EntityType: EntityFile}
		if err := rows.Scan(&r.EntityID, &r.EntityName, &r.Language,
			&r.AISummary, &r.CreatedAt, &r.Distance); err != nil {
			return nil, err
		}
		r.FilePath = r.EntityName
		out = append(out, r)
	}
	return out, rows.Err()
}

// likeDefinitions is the FTS-less definition search: a substring scan with
// shorter (more exact) names first. Matches rank like a perfect FTS hit.
func (s *Store) likeDefinitions(ctx context.Context, query string, topK int) ([]SearchRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.name, f.file_path, COALESCE(f.language, ''),
		       d.definition_type, COALESCE(d.ai_summary, ''), d.created_at
		FROM definitions d
		JOIN files f ON f.id = d.file_id
		WHERE d.name LIKE ? ESCAPE '\'
		ORDER BY length(d.name), d.name LIMIT ?`, likePattern(query), topK)
	if err != nil {
		return nil, fmt.Errorf("like definitions: %w", err)
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		r := SearchRow{EntityType: EntityDefinition}
		if err := rows.Scan(&r.EntityID, &r.EntityName, &r.FilePath, &r.Language,
			&r.DefinitionType, &r.AISummary, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// likeFiles is the FTS-less path search.
func (s *Store) likeFiles(ctx context.Context, query string, topK int) ([]SearchRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.file_path, COALESCE(f.language, ''),
		       COALESCE(f.ai_summary, ''), f.created_at
		FROM files f
		WHERE f.file_path LIKE ? ESCAPE '\'
		ORDER BY length(f.file_path), f.file_path LIMIT ?`, likePattern(query), topK)
	if err != nil {
		return nil, fmt.Errorf("like files: %w", err)
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		r := SearchRow{EntityType: EntityFile}
		if err := rows.Scan(&r.EntityID, &r.EntityName, &r.Language,
			&r.AISummary, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.FilePath = r.EntityName
		out = append(out, r)
	}
	return out, rows.Err()
}

// likePattern wraps a query for a substring LIKE, escaping its wildcards.
func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	return "%" + escaped + "%"
}
