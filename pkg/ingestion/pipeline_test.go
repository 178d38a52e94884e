// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/gitops"
	"github.com/kraklabs/repograph/pkg/llm"
	"github.com/kraklabs/repograph/pkg/store"
	"github.com/kraklabs/repograph/pkg/summarize"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// initSourceRepo creates a local git repository with one Go file to ingest.
func initSourceRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "checkout", "-B", "main")

	source := `package calc

// Add sums two ints.
func Add(a, b int) int {
	return a + b
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calc.go"), []byte(source), 0600))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func fastSummaryConfig() summarize.Config {
	return summarize.Config{
		MaxConcurrent: 2,
		MinBatchSize:  10,
		RatePerSecond: 0,
		TaskTimeout:   time.Minute,
		Retry: llm.RetryPolicy{
			MaxAttempts: 1,
			Multiplier:  1,
			MinWait:     time.Millisecond,
			MaxWait:     time.Millisecond,
		},
	}
}

// TestRun_FailedSummariesDoesNotAdvanceCommit verifies the recovery
// contract: the commit hash is written in finalize, so a run that dies in
// summaries leaves the old hash behind and the next run at the same commit
// reprocesses instead of short-circuiting as a noop.
func TestRun_FailedSummariesDoesNotAdvanceCommit(t *testing.T) {
	src := initSourceRepo(t)
	workspace := t.TempDir()
	ctx := context.Background()

	cfg := PipelineConfig{WorkspaceDir: workspace, Summaries: fastSummaryConfig()}
	req := Request{RemoteURL: src, Slug: "calc"}

	failing := NewPipeline(cfg, &llm.MockChat{Fail: errors.New("model down")}, nil, nil)
	_, err := failing.Run(ctx, req)
	require.Error(t, err)
	require.Contains(t, err.Error(), "summaries")

	st, err := store.Open(failing.StorePath("calc"), nil)
	require.NoError(t, err)
	repo, err := st.GetRepository(ctx)
	require.NoError(t, err)
	assert.Empty(t, repo.CommitHash, "failed run must not persist the new commit hash")
	require.NoError(t, st.Close())

	working := NewPipeline(cfg, &llm.MockChat{}, nil, nil)
	result, err := working.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ModeFull, result.Mode, "retry at the same commit must reprocess")
	assert.NotEmpty(t, result.CommitHash)

	st, err = store.Open(working.StorePath("calc"), nil)
	require.NoError(t, err)
	defer st.Close()

	repo, err = st.GetRepository(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.CommitHash, repo.CommitHash)

	defs, err := st.ListDefinitions(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, defs)
	for _, d := range defs {
		require.NotNil(t, d.AIShortSummary, "definition %s missing summary after retry", d.Name)
		assert.NotEmpty(t, *d.AIShortSummary)
	}

	third := NewPipeline(cfg, &llm.MockChat{}, nil, nil)
	result, err = third.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ModeNoop, result.Mode)
}

// TestParseIncremental_SkipsBrokenFiles verifies a single unreadable file
// is logged and skipped rather than failing the parse phase.
func TestParseIncremental_SkipsBrokenFiles(t *testing.T) {
	workspace := t.TempDir()
	clone := filepath.Join(workspace, "clones", "t")
	require.NoError(t, os.MkdirAll(clone, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(clone, "good.go"),
		[]byte("package p\n\nfunc Good() {}\n"), 0600))

	st, err := store.Open(filepath.Join(workspace, "t.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	p := NewPipeline(PipelineConfig{WorkspaceDir: workspace}, nil, nil, nil)
	syncer := NewSyncer(st, p.parser, nil)
	delta := &ParseDelta{PerFile: make(map[string]FileDefDelta)}

	changes := &gitops.GitChanges{Added: []string{"missing.go", "good.go"}}
	parses, err := p.parseIncremental(context.Background(), st, syncer, clone, changes, delta)
	require.NoError(t, err)

	assert.Equal(t, []string{"good.go"}, delta.FilesAdded)
	require.Len(t, parses, 1)
	assert.Equal(t, "good.go", parses[0].Path)
}

// TestParseFull_SkipsBrokenFiles covers the full-walk variant with a
// dangling symlink posing as a source file.
func TestParseFull_SkipsBrokenFiles(t *testing.T) {
	workspace := t.TempDir()
	clone := filepath.Join(workspace, "clones", "t")
	require.NoError(t, os.MkdirAll(clone, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(clone, "good.go"),
		[]byte("package p\n\nfunc Good() {}\n"), 0600))
	require.NoError(t, os.Symlink(
		filepath.Join(clone, "nowhere"), filepath.Join(clone, "broken.go")))

	st, err := store.Open(filepath.Join(workspace, "t.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	p := NewPipeline(PipelineConfig{WorkspaceDir: workspace}, nil, nil, nil)
	syncer := NewSyncer(st, p.parser, nil)
	delta := &ParseDelta{PerFile: make(map[string]FileDefDelta)}

	parses, err := p.parseFull(context.Background(), st, syncer, clone, delta)
	require.NoError(t, err)

	require.Len(t, parses, 1)
	assert.Equal(t, "good.go", parses[0].Path)
	assert.Equal(t, []string{"good.go"}, delta.FilesAdded)
}
