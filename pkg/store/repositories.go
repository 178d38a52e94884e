// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("not found")

// UpsertRepository creates the repository row on first ingest or returns the
// existing one, refreshing slug and default branch.
func (s *Store) UpsertRepository(ctx context.Context, remoteURL, slug, defaultBranch string) (*Repository, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (remote_origin_url, repo_slug, default_branch)
		VALUES (?, ?, ?)
		ON CONFLICT(remote_origin_url) DO UPDATE SET
			repo_slug = excluded.repo_slug,
			default_branch = excluded.default_branch,
			updated_at = datetime('now')`,
		remoteURL, slug, defaultBranch)
	if err != nil {
		return nil, fmt.Errorf("upsert repository: %w", err)
	}
	return s.GetRepositoryByRemote(ctx, remoteURL)
}

// GetRepositoryByRemote looks up a repository by its remote origin URL.
func (s *Store) GetRepositoryByRemote(ctx context.Context, remoteURL string) (*Repository, error) {
	return s.scanRepository(s.db.QueryRowContext(ctx, `
		SELECT id, remote_origin_url, repo_slug,
		       COALESCE(commit_hash, ''), COALESCE(default_branch, '')
		FROM repositories WHERE remote_origin_url = ?`, remoteURL))
}

// GetRepository returns the single repository row of this database, if any.
// Each database file holds exactly one repository.
func (s *Store) GetRepository(ctx context.Context) (*Repository, error) {
	return s.scanRepository(s.db.QueryRowContext(ctx, `
		SELECT id, remote_origin_url, repo_slug,
		       COALESCE(commit_hash, ''), COALESCE(default_branch, '')
		FROM repositories LIMIT 1`))
}

func (s *Store) scanRepository(row *sql.Row) (*Repository, error) {
	var r Repository
	err := row.Scan(&r.ID, &r.RemoteURL, &r.Slug, &r.CommitHash, &r.DefaultBranch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}
	return &r, nil
}

// SetCommitHash records the ingested commit on the repository row. Called by
// the orchestrator in the finalize phase, after all other phases succeeded.
func (s *Store) SetCommitHash(ctx context.Context, repoID int64, commitHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE repositories SET commit_hash = ?, updated_at = datetime('now') WHERE id = ?`,
		commitHash, repoID)
	if err != nil {
		return fmt.Errorf("set commit hash: %w", err)
	}
	return nil
}

// UpsertPackage records a package manifest for the repository.
func (s *Store) UpsertPackage(ctx context.Context, p *Package) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO packages (repository_id, name, path, entry_point, is_workspace_root, workspace_type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(repository_id, path) DO UPDATE SET
			name = excluded.name,
			entry_point = excluded.entry_point,
			is_workspace_root = excluded.is_workspace_root,
			workspace_type = excluded.workspace_type`,
		p.RepositoryID, p.Name, p.Path, p.EntryPoint, p.IsWorkspaceRoot, p.WorkspaceType)
	if err != nil {
		return fmt.Errorf("upsert package %s: %w", p.Path, err)
	}
	return nil
}
