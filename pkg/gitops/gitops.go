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

// Package gitops manages working-tree clones by shelling out to the git
// binary. It keeps a shallow checkout of the default branch per repository
// and computes file-level changes between two commits.
package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RepoInfo describes the state of a working-tree clone after EnsureClone.
type RepoInfo struct {
	RemoteURL     string
	CommitHash    string
	DefaultBranch string
}

// RenamedFile is one rename entry in a GitChanges record.
type RenamedFile struct {
	Old string
	New string
}

// GitChanges is the file-level diff between two commits, filtered to
// supported source files.
type GitChanges struct {
	Added    []string
	Modified []string
	Deleted  []string
	Renamed  []RenamedFile
}

// Empty reports whether the diff contains no changes.
func (c *GitChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0 && len(c.Renamed) == 0
}

// Client runs git commands against one clone directory.
type Client struct {
	logger *slog.Logger
}

// NewClient creates a git client. A GITHUB_TOKEN in the environment is
// injected into https remote URLs as basic auth.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger}
}

// EnsureClone guarantees a shallow checkout of the remote's default branch
// (or the requested branch) at repoPath. A missing directory is cloned with
// depth 1; an existing clone is fetched and hard-reset to the remote head.
func (c *Client) EnsureClone(ctx context.Context, repoPath, remoteURL, branch string) (*RepoInfo, error) {
	authURL := c.authenticatedURL(remoteURL)

	if _, err := os.Stat(filepath.Join(repoPath, ".git")); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(repoPath), 0750); err != nil {
			return nil, fmt.Errorf("create clone parent dir: %w", err)
		}
		args := []string{"clone", "--depth", "1"}
		if branch != "" {
			args = append(args, "--branch", branch)
		}
		args = append(args, authURL, repoPath)
		if _, err := c.run(ctx, "", args...); err != nil {
			return nil, fmt.Errorf("clone %s: %w", remoteURL, err)
		}
		c.logger.Info("gitops.clone.complete", "path", repoPath)
		return c.inspect(ctx, repoPath, remoteURL)
	}

	// Existing clone: point origin at the (possibly updated) remote, fetch
	// the branch shallowly, and reset the working tree to it.
	if _, err := c.run(ctx, repoPath, "remote", "set-url", "origin", authURL); err != nil {
		return nil, fmt.Errorf("set remote url: %w", err)
	}
	if branch == "" {
		head, err := c.run(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return nil, fmt.Errorf("resolve current branch: %w", err)
		}
		branch = strings.TrimSpace(head)
	}
	if _, err := c.run(ctx, repoPath, "fetch", "--depth", "1", "origin", branch); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", branch, err)
	}
	if _, err := c.run(ctx, repoPath, "checkout", "-B", branch, "FETCH_HEAD"); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", branch, err)
	}
	c.logger.Info("gitops.fetch.complete", "path", repoPath, "branch", branch)
	return c.inspect(ctx, repoPath, remoteURL)
}

// CompareCommits diffs two commits with rename detection and returns the
// changed paths that pass the supported filter. Missing commit objects are
// fetched shallowly first (shallow clones only hold the tip).
func (c *Client) CompareCommits(ctx context.Context, repoPath, before, after string, supported func(string) bool) (*GitChanges, error) {
	for _, sha := range []string{before, after} {
		if _, err := c.run(ctx, repoPath, "cat-file", "-e", sha+"^{commit}"); err != nil {
			if _, err := c.run(ctx, repoPath, "fetch", "--depth", "1", "origin", sha); err != nil {
				return nil, fmt.Errorf("fetch commit %s: %w", sha, err)
			}
		}
	}

	out, err := c.run(ctx, repoPath, "diff", "--name-status", "-M", before, after)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", before, after, err)
	}

	changes := &GitChanges{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		status := fields[0]
		switch {
		case status == "A" && len(fields) >= 2:
			if supported(fields[1]) {
				changes.Added = append(changes.Added, fields[1])
			}
		case status == "M" && len(fields) >= 2:
			if supported(fields[1]) {
				changes.Modified = append(changes.Modified, fields[1])
			}
		case status == "D" && len(fields) >= 2:
			if supported(fields[1]) {
				changes.Deleted = append(changes.Deleted, fields[1])
			}
		case strings.HasPrefix(status, "R") && len(fields) >= 3:
			if supported(fields[1]) || supported(fields[2]) {
				changes.Renamed = append(changes.Renamed, RenamedFile{Old: fields[1], New: fields[2]})
			}
		case strings.HasPrefix(status, "C") && len(fields) >= 3:
			// Copies behave like additions of the new path.
			if supported(fields[2]) {
				changes.Added = append(changes.Added, fields[2])
			}
		}
	}

	c.logger.Debug("gitops.diff.complete",
		"before", before, "after", after,
		"added", len(changes.Added), "modified", len(changes.Modified),
		"deleted", len(changes.Deleted), "renamed", len(changes.Renamed))
	return changes, nil
}

// inspect extracts HEAD commit and branch from a clone.
func (c *Client) inspect(ctx context.Context, repoPath, remoteURL string) (*RepoInfo, error) {
	commit, err := c.run(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("rev-parse HEAD: %w", err)
	}
	branch, err := c.run(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve branch: %w", err)
	}
	name := strings.TrimSpace(branch)
	if name == "HEAD" {
		name = "main" // detached head fallback
	}
	return &RepoInfo{
		RemoteURL:     remoteURL,
		CommitHash:    strings.TrimSpace(commit),
		DefaultBranch: name,
	}, nil
}

// SlugFromRemote derives an owner-name slug from a git remote URL.
// Handles both https URLs and scp-like syntax (git@host:owner/name).
func SlugFromRemote(remoteURL string) string {
	trimmed := strings.TrimSuffix(remoteURL, ".git")
	trimmed = strings.TrimSuffix(trimmed, "/")
	if at := strings.Index(trimmed, "@"); at >= 0 && !strings.Contains(trimmed[:at], "://") {
		if colon := strings.Index(trimmed[at:], ":"); colon >= 0 {
			trimmed = trimmed[at+colon+1:]
		}
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "-" + parts[len(parts)-1]
	}
	return parts[len(parts)-1]
}

// authenticatedURL injects GITHUB_TOKEN into https URLs for private repos.
func (c *Client) authenticatedURL(remoteURL string) string {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return remoteURL
	}
	u, err := url.Parse(remoteURL)
	if err != nil || u.Scheme != "https" {
		return remoteURL
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String()
}

func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// Never fall into an interactive credential prompt inside a job.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
