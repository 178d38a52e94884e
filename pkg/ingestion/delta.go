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
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kraklabs/repograph/pkg/store"
)

// Syncer reconciles parsed file state against the store. The normalized
// source hash decides which stored definitions survive an edit: matching
// hashes keep their rows (and their summaries), everything else is
// deleted or inserted.
type Syncer struct {
	store  *store.Store
	parser *Parser
	logger *slog.Logger
}

// NewSyncer creates a syncer over one repository store.
func NewSyncer(st *store.Store, parser *Parser, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{store: st, parser: parser, logger: logger}
}

// SyncFile parses content and brings the stored rows for path in line with
// it. Returns the parse (for the resolver) and the definition-level delta.
func (s *Syncer) SyncFile(ctx context.Context, path string, content []byte) (*FileParse, FileDefDelta, error) {
	var delta FileDefDelta

	fp, err := s.parser.Parse(ctx, path, content)
	if err != nil {
		return nil, delta, err
	}

	file, err := s.store.GetFileByPath(ctx, path)
	if err != nil && err != store.ErrNotFound {
		return nil, delta, fmt.Errorf("load file %s: %w", path, err)
	}

	if file == nil {
		delta, err = s.insertNewFile(ctx, fp, string(content))
		if err != nil {
			return nil, delta, err
		}
		return fp, delta, nil
	}

	delta, err = s.reconcileFile(ctx, file, fp, string(content))
	if err != nil {
		return nil, delta, err
	}
	return fp, delta, nil
}

func (s *Syncer) insertNewFile(ctx context.Context, fp *FileParse, content string) (FileDefDelta, error) {
	var delta FileDefDelta

	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		fileID, err := s.store.InsertFile(ctx, tx, &store.File{
			Path:     fp.Path,
			Language: fp.Language,
			Content:  content,
		})
		if err != nil {
			return err
		}

		for _, d := range fp.Definitions {
			id, err := s.insertDefinition(ctx, tx, fileID, fp.Language, d)
			if err != nil {
				return err
			}
			delta.Added = append(delta.Added, id)
		}

		return s.store.ReplaceFileImports(ctx, tx, fileID, storeImports(fileID, fp.Imports))
	})
	if err != nil {
		return delta, fmt.Errorf("insert file %s: %w", fp.Path, err)
	}

	s.logger.Debug("ingest.sync.file_added", "path", fp.Path, "definitions", len(delta.Added))
	return delta, nil
}

// reconcileFile diffs parsed definitions against stored rows by source
// hash. Hash matches are a multiset: two identical bodies in one file
// consume two stored rows.
func (s *Syncer) reconcileFile(ctx context.Context, file *store.File, fp *FileParse, content string) (FileDefDelta, error) {
	var delta FileDefDelta

	stored, err := s.store.DefinitionsByFile(ctx, file.ID)
	if err != nil {
		return delta, fmt.Errorf("load definitions %s: %w", fp.Path, err)
	}

	byHash := make(map[string][]store.Definition, len(stored))
	for _, d := range stored {
		byHash[d.SourceCodeHash] = append(byHash[d.SourceCodeHash], d)
	}

	var toInsert []ParsedDefinition
	for _, d := range fp.Definitions {
		hash := SourceHash(d.SourceCode, d.Name, fp.Language)
		if rows := byHash[hash]; len(rows) > 0 {
			delta.Unchanged = append(delta.Unchanged, rows[0].ID)
			byHash[hash] = rows[1:]
			continue
		}
		toInsert = append(toInsert, d)
	}
	for _, rows := range byHash {
		for _, d := range rows {
			delta.Removed = append(delta.Removed, d.ID)
		}
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.UpdateFileContent(ctx, tx, file.ID, content); err != nil {
			return err
		}
		if err := s.store.DeleteDefinitions(ctx, tx, delta.Removed); err != nil {
			return err
		}
		for _, d := range toInsert {
			id, err := s.insertDefinition(ctx, tx, file.ID, fp.Language, d)
			if err != nil {
				return err
			}
			delta.Added = append(delta.Added, id)
		}
		return s.store.ReplaceFileImports(ctx, tx, file.ID, storeImports(file.ID, fp.Imports))
	})
	if err != nil {
		return delta, fmt.Errorf("reconcile file %s: %w", fp.Path, err)
	}

	s.logger.Debug("ingest.sync.file_reconciled",
		"path", fp.Path,
		"added", len(delta.Added),
		"removed", len(delta.Removed),
		"unchanged", len(delta.Unchanged),
	)
	return delta, nil
}

func (s *Syncer) insertDefinition(ctx context.Context, tx *sql.Tx, fileID int64, language string, d ParsedDefinition) (int64, error) {
	return s.store.InsertDefinition(ctx, tx, &store.Definition{
		FileID:          fileID,
		Name:            d.Name,
		Kind:            d.Kind,
		StartLine:       d.StartLine,
		EndLine:         d.EndLine,
		SourceCode:      d.SourceCode,
		SourceCodeHash:  SourceHash(d.SourceCode, d.Name, language),
		Docstring:       d.Docstring,
		IsExported:      d.IsExported,
		IsDefaultExport: d.IsDefaultExport,
	})
}

func storeImports(fileID int64, imports []ParsedImport) []store.Import {
	out := make([]store.Import, len(imports))
	for i, imp := range imports {
		out[i] = store.Import{
			FileID:     fileID,
			ImportPath: imp.Path,
			Alias:      imp.Alias,
			StartLine:  imp.StartLine,
		}
	}
	return out
}
