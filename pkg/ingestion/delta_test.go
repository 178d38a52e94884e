// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/store"
)

func newTestSyncer(t *testing.T) (*Syncer, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sync.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return NewSyncer(st, NewParser(nil), nil), st
}

const syncerSourceV1 = `package calc

// Add sums two ints.
func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	return a - b
}
`

// TestSyncFile_NewFile verifies a first sync inserts everything.
func TestSyncFile_NewFile(t *testing.T) {
	syncer, st := newTestSyncer(t)
	ctx := context.Background()

	fp, delta, err := syncer.SyncFile(ctx, "calc.go", []byte(syncerSourceV1))
	require.NoError(t, err)
	assert.Len(t, delta.Added, 2)
	assert.Empty(t, delta.Removed)
	assert.Empty(t, delta.Unchanged)
	assert.Len(t, fp.Definitions, 2)

	n, err := st.CountDefinitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// TestSyncFile_CommentEditKeepsRows verifies a comment-only change leaves
// every definition row, and its summary, in place.
func TestSyncFile_CommentEditKeepsRows(t *testing.T) {
	syncer, st := newTestSyncer(t)
	ctx := context.Background()

	_, delta, err := syncer.SyncFile(ctx, "calc.go", []byte(syncerSourceV1))
	require.NoError(t, err)
	require.Len(t, delta.Added, 2)

	require.NoError(t, st.SetDefinitionSummary(ctx, delta.Added[0], "Sums ints.", "Sums ints.\n\nLong."))

	edited := `package calc

// Add sums two ints. Overflow wraps.
func Add(a, b int) int {
	return a + b
}

// Sub subtracts b from a.
func Sub(a, b int) int {
	return a - b
}
`
	_, delta2, err := syncer.SyncFile(ctx, "calc.go", []byte(edited))
	require.NoError(t, err)
	assert.Empty(t, delta2.Added)
	assert.Empty(t, delta2.Removed)
	assert.ElementsMatch(t, delta.Added, delta2.Unchanged)

	d, err := st.GetDefinition(ctx, delta.Added[0])
	require.NoError(t, err)
	require.NotNil(t, d.AIShortSummary)
	assert.Equal(t, "Sums ints.", *d.AIShortSummary)
}

// TestSyncFile_BodyEditReplacesRow verifies a body change swaps exactly the
// edited definition.
func TestSyncFile_BodyEditReplacesRow(t *testing.T) {
	syncer, st := newTestSyncer(t)
	ctx := context.Background()

	_, delta, err := syncer.SyncFile(ctx, "calc.go", []byte(syncerSourceV1))
	require.NoError(t, err)
	require.Len(t, delta.Added, 2)

	edited := `package calc

// Add sums two ints.
func Add(a, b int) int {
	return a + b + 0
}

func Sub(a, b int) int {
	return a - b
}
`
	_, delta2, err := syncer.SyncFile(ctx, "calc.go", []byte(edited))
	require.NoError(t, err)
	assert.Len(t, delta2.Added, 1)
	assert.Len(t, delta2.Removed, 1)
	assert.Len(t, delta2.Unchanged, 1)

	n, err := st.CountDefinitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// TestDefinitionChangedPaths verifies content-only edits do not mark a
// file as definition-changed.
func TestDefinitionChangedPaths(t *testing.T) {
	delta := &ParseDelta{
		FilesModified: []string{"renamed.go", "edited.go"},
		PerFile: map[string]FileDefDelta{
			"renamed.go": {Unchanged: []int64{1, 2}},
			"edited.go":  {Added: []int64{3}, Unchanged: []int64{4}},
		},
	}
	assert.Equal(t, []string{"edited.go"}, delta.DefinitionChangedPaths())
	assert.ElementsMatch(t, []string{"renamed.go", "edited.go"}, delta.ChangedPaths())
}

// TestSyncFile_RenameKeepsRow verifies a pure rename matches by normalized
// hash, so the renamed definition keeps its row.
func TestSyncFile_RenameKeepsRow(t *testing.T) {
	syncer, _ := newTestSyncer(t)
	ctx := context.Background()

	_, delta, err := syncer.SyncFile(ctx, "calc.go", []byte(syncerSourceV1))
	require.NoError(t, err)

	renamed := `package calc

// Plus sums two ints.
func Plus(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	return a - b
}
`
	_, delta2, err := syncer.SyncFile(ctx, "calc.go", []byte(renamed))
	require.NoError(t, err)
	assert.Empty(t, delta2.Added)
	assert.Empty(t, delta2.Removed)
	assert.ElementsMatch(t, delta.Added, delta2.Unchanged)
}
