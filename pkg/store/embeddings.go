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
	"encoding/binary"
	"fmt"
	"math"
)

// PackVector serializes a float vector as little-endian float32 bytes, the
// layout sqlite-vec expects for float[] columns.
func PackVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// UnpackVector reverses PackVector.
func UnpackVector(data []byte) []float32 {
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}

// UpsertEmbedding writes one embedding row and mirrors the vector into the
// vec0 index keyed by the embeddings row id. Idempotent: re-running with the
// same vector leaves the payload unchanged (modulo updated_at).
func (s *Store) UpsertEmbedding(ctx context.Context, tx *sql.Tx, row *EmbeddingRow) error {
	var q querier = s.db
	if tx != nil {
		q = tx
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO embeddings (
			entity_type, entity_id, entity_name, file_path, language,
			definition_type, embedding, embedding_model, embedding_dims)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			entity_name = excluded.entity_name,
			file_path = excluded.file_path,
			language = excluded.language,
			definition_type = excluded.definition_type,
			embedding = excluded.embedding,
			embedding_model = excluded.embedding_model,
			embedding_dims = excluded.embedding_dims,
			updated_at = datetime('now')`,
		row.EntityType, row.EntityID, row.EntityName, row.FilePath,
		nullable(row.Language), nullable(row.DefinitionType),
		row.Vector, row.Model, row.Dims); err != nil {
		return fmt.Errorf("upsert embedding %s/%d: %w", row.EntityType, row.EntityID, err)
	}

	var rowID int64
	if err := q.QueryRowContext(ctx, `
		SELECT id FROM embeddings WHERE entity_type = ? AND entity_id = ?`,
		row.EntityType, row.EntityID).Scan(&rowID); err != nil {
		return fmt.Errorf("embedding rowid %s/%d: %w", row.EntityType, row.EntityID, err)
	}

	if _, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO embeddings_vec (rowid, embedding) VALUES (?, ?)`,
		rowID, row.Vector); err != nil {
		return fmt.Errorf("mirror vector %s/%d: %w", row.EntityType, row.EntityID, err)
	}
	return nil
}

// EmbeddingCandidate is an entity eligible for embedding: it has a non-empty
// summary.
type EmbeddingCandidate struct {
	EntityType     string
	EntityID       int64
	EntityName     string
	FilePath       string
	Language       string
	DefinitionType string
	Summary        string
}

// FileEmbeddingCandidates lists files with non-empty summaries. A nil ids
// filter means all files.
func (s *Store) FileEmbeddingCandidates(ctx context.Context, ids []int64) ([]EmbeddingCandidate, error) {
	query := `
		SELECT id, file_path, COALESCE(language, ''), ai_summary
		FROM files WHERE ai_summary IS NOT NULL AND ai_summary != ''`
	var args []any
	if ids != nil {
		if len(ids) == 0 {
			return nil, nil
		}
		placeholders, idArgs := int64Placeholders(ids)
		query += ` AND id IN (` + placeholders + `)`
		args = idArgs
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("file embedding candidates: %w", err)
	}
	defer rows.Close()

	var out []EmbeddingCandidate
	for rows.Next() {
		c := EmbeddingCandidate{EntityType: EntityFile}
		if err := rows.Scan(&c.EntityID, &c.FilePath, &c.Language, &c.Summary); err != nil {
			return nil, err
		}
		c.EntityName = c.FilePath
		out = append(out, c)
	}
	return out, rows.Err()
}

// DefinitionEmbeddingCandidates lists definitions with non-empty summaries.
// A nil ids filter means all definitions.
func (s *Store) DefinitionEmbeddingCandidates(ctx context.Context, ids []int64) ([]EmbeddingCandidate, error) {
	query := `
		SELECT d.id, d.name, d.definition_type, f.file_path, COALESCE(f.language, ''), d.ai_summary
		FROM definitions d JOIN files f ON f.id = d.file_id
		WHERE d.ai_summary IS NOT NULL AND d.ai_summary != ''`
	var args []any
	if ids != nil {
		if len(ids) == 0 {
			return nil, nil
		}
		placeholders, idArgs := int64Placeholders(ids)
		query += ` AND d.id IN (` + placeholders + `)`
		args = idArgs
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("definition embedding candidates: %w", err)
	}
	defer rows.Close()

	var out []EmbeddingCandidate
	for rows.Next() {
		c := EmbeddingCandidate{EntityType: EntityDefinition}
		if err := rows.Scan(&c.EntityID, &c.EntityName, &c.DefinitionType, &c.FilePath, &c.Language, &c.Summary); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountEmbeddings returns the number of embedding rows.
func (s *Store) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
