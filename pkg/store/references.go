// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertReference records one reference edge, ignoring duplicates on
// (source, target); unresolved edges dedupe on (source, name) through the
// partial index.
func (s *Store) InsertReference(ctx context.Context, tx *sql.Tx, ref *Reference) error {
	var q querier = s.db
	if tx != nil {
		q = tx
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO symbol_references (source_definition_id, target_definition_id, reference_name, reference_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		ref.SourceID, ref.TargetID, ref.Name, ref.Type)
	if err != nil {
		return fmt.Errorf("insert reference %s: %w", ref.Name, err)
	}
	return nil
}

// ReferencesBySource returns every reference recorded from one definition,
// unresolved ones included.
func (s *Store) ReferencesBySource(ctx context.Context, sourceID int64) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_definition_id, target_definition_id, reference_name, reference_type
		FROM symbol_references WHERE source_definition_id = ? ORDER BY id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("references by source: %w", err)
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		var r Reference
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Name, &r.Type); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// ResolvedReferences returns all reference edges with a non-null target,
// excluding self-references. These are the edges of the definition graph.
func (s *Store) ResolvedReferences(ctx context.Context) ([]DependencyEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_definition_id, target_definition_id
		FROM symbol_references
		WHERE target_definition_id IS NOT NULL
		  AND target_definition_id != source_definition_id`)
	if err != nil {
		return nil, fmt.Errorf("resolved references: %w", err)
	}
	defer rows.Close()

	var edges []DependencyEdge
	for rows.Next() {
		var e DependencyEdge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// RebuildDefinitionDependencies truncates and repopulates the materialized
// definition dependency table. Truncation keeps the cache free of edges
// whose endpoints were removed in this run.
func (s *Store) RebuildDefinitionDependencies(ctx context.Context, edges []DependencyEdge) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM definition_dependencies`); err != nil {
			return fmt.Errorf("truncate definition dependencies: %w", err)
		}
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO definition_dependencies (from_definition_id, to_definition_id)
				VALUES (?, ?)
				ON CONFLICT(from_definition_id, to_definition_id) DO NOTHING`,
				e.From, e.To); err != nil {
				return fmt.Errorf("insert definition dependency: %w", err)
			}
		}
		return nil
	})
}

// RebuildFileDependencies truncates and repopulates the materialized file
// dependency table.
func (s *Store) RebuildFileDependencies(ctx context.Context, edges []DependencyEdge) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_dependencies`); err != nil {
			return fmt.Errorf("truncate file dependencies: %w", err)
		}
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO file_dependencies (from_file_id, to_file_id)
				VALUES (?, ?)
				ON CONFLICT(from_file_id, to_file_id) DO NOTHING`,
				e.From, e.To); err != nil {
				return fmt.Errorf("insert file dependency: %w", err)
			}
		}
		return nil
	})
}
