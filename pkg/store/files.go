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

// GetFileByPath returns the file row for a repo-relative path.
func (s *Store) GetFileByPath(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, package_id, file_path, COALESCE(language, ''),
		       COALESCE(file_content, ''), ai_summary, ai_short_summary
		FROM files WHERE file_path = ?`, path)
	var f File
	err := row.Scan(&f.ID, &f.PackageID, &f.Path, &f.Language, &f.Content, &f.AISummary, &f.AIShortSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file %s: %w", path, err)
	}
	return &f, nil
}

// InsertFile creates a file row and returns its id.
func (s *Store) InsertFile(ctx context.Context, tx *sql.Tx, f *File) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO files (package_id, file_path, language, file_content)
		VALUES (?, ?, ?, ?)`,
		f.PackageID, f.Path, f.Language, f.Content)
	if err != nil {
		return 0, fmt.Errorf("insert file %s: %w", f.Path, err)
	}
	return res.LastInsertId()
}

// UpdateFileContent refreshes the stored content for a modified file.
func (s *Store) UpdateFileContent(ctx context.Context, tx *sql.Tx, fileID int64, content string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE files SET file_content = ?, updated_at = datetime('now') WHERE id = ?`,
		content, fileID)
	if err != nil {
		return fmt.Errorf("update file content: %w", err)
	}
	return nil
}

// RenameFile updates a file's path in place, keeping definitions and
// summaries attached.
func (s *Store) RenameFile(ctx context.Context, oldPath, newPath string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE files SET file_path = ?, updated_at = datetime('now') WHERE file_path = ?`,
		newPath, oldPath)
	if err != nil {
		return fmt.Errorf("rename file %s -> %s: %w", oldPath, newPath, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rename file %s: %w", oldPath, ErrNotFound)
	}
	return nil
}

// DeleteFileByPath removes a file row. Definitions cascade, references from
// those definitions cascade, references to them become null. Embedding rows
// for the file and its definitions are removed together with the mirrored
// vector rows.
func (s *Store) DeleteFileByPath(ctx context.Context, path string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var fileID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE file_path = ?`, path).Scan(&fileID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil // already gone
		}
		if err != nil {
			return fmt.Errorf("lookup file %s: %w", path, err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM embeddings_vec WHERE rowid IN (
				SELECT e.id FROM embeddings e
				WHERE (e.entity_type = 'file' AND e.entity_id = ?)
				   OR (e.entity_type = 'definition' AND e.entity_id IN (
				        SELECT id FROM definitions WHERE file_id = ?))
			)`, fileID, fileID); err != nil {
			// Vector table may not exist yet when no embeddings were written.
			if !strings.Contains(err.Error(), "no such table") {
				return fmt.Errorf("delete vector rows for %s: %w", path, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM embeddings
			WHERE (entity_type = 'file' AND entity_id = ?)
			   OR (entity_type = 'definition' AND entity_id IN (
			        SELECT id FROM definitions WHERE file_id = ?))`,
			fileID, fileID); err != nil {
			return fmt.Errorf("delete embeddings for %s: %w", path, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
			return fmt.Errorf("delete file %s: %w", path, err)
		}
		return nil
	})
}

// ListFilePaths returns every stored file path.
func (s *Store) ListFilePaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path FROM files ORDER BY file_path`)
	if err != nil {
		return nil, fmt.Errorf("list file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ListFiles returns all file rows without content (content is large; load
// it per file when needed).
func (s *Store) ListFiles(ctx context.Context) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, package_id, file_path, COALESCE(language, ''), ai_summary, ai_short_summary
		FROM files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.PackageID, &f.Path, &f.Language, &f.AISummary, &f.AIShortSummary); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetFile returns a full file row including content.
func (s *Store) GetFile(ctx context.Context, fileID int64) (*File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, package_id, file_path, COALESCE(language, ''),
		       COALESCE(file_content, ''), ai_summary, ai_short_summary
		FROM files WHERE id = ?`, fileID)
	var f File
	err := row.Scan(&f.ID, &f.PackageID, &f.Path, &f.Language, &f.Content, &f.AISummary, &f.AIShortSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file %d: %w", fileID, err)
	}
	return &f, nil
}

// FileIDsByPaths resolves repo-relative paths to file ids, skipping paths
// that are not stored.
func (s *Store) FileIDsByPaths(ctx context.Context, paths []string) ([]int64, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM files WHERE file_path IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("file ids by paths: %w", err)
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

// FileIDsMissingSummary returns ids of non-blank files without a short
// summary. Blank files never get summaries, so they are excluded.
func (s *Store) FileIDsMissingSummary(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM files
		WHERE (ai_short_summary IS NULL OR ai_short_summary = '')
		  AND TRIM(COALESCE(file_content, '')) != ''`)
	if err != nil {
		return nil, fmt.Errorf("files missing summary: %w", err)
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

// SetFileSummary persists both summaries for a file.
func (s *Store) SetFileSummary(ctx context.Context, fileID int64, short, full string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE files SET ai_short_summary = ?, ai_summary = ?, updated_at = datetime('now')
		WHERE id = ?`, short, full, fileID)
	if err != nil {
		return fmt.Errorf("set file summary: %w", err)
	}
	return nil
}

// ReplaceFileImports swaps a file's import list wholesale.
func (s *Store) ReplaceFileImports(ctx context.Context, tx *sql.Tx, fileID int64, imports []Import) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_imports WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("clear imports: %w", err)
	}
	for _, imp := range imports {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file_imports (file_id, import_path, alias, start_line)
			VALUES (?, ?, ?, ?)`,
			fileID, imp.ImportPath, imp.Alias, imp.StartLine); err != nil {
			return fmt.Errorf("insert import %s: %w", imp.ImportPath, err)
		}
	}
	return nil
}

// CountFiles returns the number of stored files.
func (s *Store) CountFiles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}
