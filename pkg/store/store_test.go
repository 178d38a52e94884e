// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertTestFile(t *testing.T, st *Store, path, language, content string) int64 {
	t.Helper()
	var id int64
	err := st.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		id, err = st.InsertFile(context.Background(), tx, &File{
			Path: path, Language: language, Content: content,
		})
		return err
	})
	require.NoError(t, err)
	return id
}

func insertTestDefinition(t *testing.T, st *Store, d *Definition) int64 {
	t.Helper()
	var id int64
	err := st.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		id, err = st.InsertDefinition(context.Background(), tx, d)
		return err
	})
	require.NoError(t, err)
	return id
}

// TestRepositoryLifecycle verifies upsert idempotence and commit tracking.
func TestRepositoryLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	repo, err := st.UpsertRepository(ctx, "https://github.com/acme/api", "acme-api", "main")
	require.NoError(t, err)
	assert.Empty(t, repo.CommitHash)

	require.NoError(t, st.SetCommitHash(ctx, repo.ID, "abc123"))

	again, err := st.UpsertRepository(ctx, "https://github.com/acme/api", "acme-api", "main")
	require.NoError(t, err)
	assert.Equal(t, repo.ID, again.ID)
	assert.Equal(t, "abc123", again.CommitHash)
}

// TestFileCRUD verifies insert, lookup, rename, and cascading delete.
func TestFileCRUD(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	fileID := insertTestFile(t, st, "pkg/a.go", "go", "package a")
	defID := insertTestDefinition(t, st, &Definition{
		FileID: fileID, Name: "A", Kind: KindFunction,
		StartLine: 1, EndLine: 3, SourceCode: "func A() {}", SourceCodeHash: "h1",
	})

	f, err := st.GetFileByPath(ctx, "pkg/a.go")
	require.NoError(t, err)
	assert.Equal(t, fileID, f.ID)

	_, err = st.GetFileByPath(ctx, "pkg/missing.go")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.RenameFile(ctx, "pkg/a.go", "pkg/b.go"))
	_, err = st.GetFileByPath(ctx, "pkg/b.go")
	require.NoError(t, err)

	// Deleting the file removes its definitions.
	require.NoError(t, st.DeleteFileByPath(ctx, "pkg/b.go"))
	_, err = st.GetDefinition(ctx, defID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := st.CountFiles(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestDefinitionQueries verifies per-file listing, summary updates, and
// span lookup.
func TestDefinitionQueries(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	fileID := insertTestFile(t, st, "svc.go", "go", "package svc")
	defID := insertTestDefinition(t, st, &Definition{
		FileID: fileID, Name: "Handle", Kind: KindFunction,
		StartLine: 10, EndLine: 30, SourceCode: "func Handle() {}", SourceCodeHash: "h2",
	})

	defs, err := st.DefinitionsByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "Handle", defs[0].Name)

	require.NoError(t, st.SetDefinitionSummary(ctx, defID, "Handles requests.", "Handles requests.\n\nLong form."))
	d, err := st.GetDefinition(ctx, defID)
	require.NoError(t, err)
	require.NotNil(t, d.AIShortSummary)
	assert.Equal(t, "Handles requests.", *d.AIShortSummary)

	at, err := st.FindDefinitionAt(ctx, "svc.go", 15)
	require.NoError(t, err)
	assert.Equal(t, defID, at.ID)

	_, err = st.FindDefinitionAt(ctx, "svc.go", 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestReferencesAndDependencies verifies reference resolution plumbing and
// the materialized dependency tables.
func TestReferencesAndDependencies(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	fileA := insertTestFile(t, st, "a.go", "go", "package a")
	fileB := insertTestFile(t, st, "b.go", "go", "package b")
	defA := insertTestDefinition(t, st, &Definition{
		FileID: fileA, Name: "Caller", Kind: KindFunction,
		StartLine: 1, EndLine: 5, SourceCode: "func Caller() {}", SourceCodeHash: "ha",
	})
	defB := insertTestDefinition(t, st, &Definition{
		FileID: fileB, Name: "Callee", Kind: KindFunction,
		StartLine: 1, EndLine: 5, SourceCode: "func Callee() {}", SourceCodeHash: "hb",
	})

	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.InsertReference(ctx, tx, &Reference{
			SourceID: defA, TargetID: &defB, Name: "Callee", Type: RefImported,
		})
	})
	require.NoError(t, err)

	edges, err := st.ResolvedReferences(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, defA, edges[0].From)
	assert.Equal(t, defB, edges[0].To)

	require.NoError(t, st.RebuildDefinitionDependencies(ctx, edges))
	require.NoError(t, st.RebuildFileDependencies(ctx, []DependencyEdge{{From: fileA, To: fileB}}))
}

// TestEmbeddingRoundTrip verifies vector upsert idempotence and k-NN
// retrieval through the vec0 index.
func TestEmbeddingRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureVectorIndex(ctx, 4))

	fileID := insertTestFile(t, st, "vec.go", "go", "package vec")
	row := &EmbeddingRow{
		EntityType: EntityFile,
		EntityID:   fileID,
		EntityName: "vec.go",
		FilePath:   "vec.go",
		Language:   "go",
		Vector:     PackVector([]float32{1, 0, 0, 0}),
		Model:      "mock",
		Dims:       4,
	}
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.UpsertEmbedding(ctx, tx, row); err != nil {
			return err
		}
		// Second upsert replaces, not duplicates.
		row.Vector = PackVector([]float32{0, 1, 0, 0})
		return st.UpsertEmbedding(ctx, tx, row)
	})
	require.NoError(t, err)

	n, err := st.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := st.NearestNeighbors(ctx, []float32{0, 1, 0, 0}, 5, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, EntityFile, rows[0].EntityType)
	assert.Equal(t, fileID, rows[0].EntityID)
	assert.InDelta(t, 0, rows[0].Distance, 1e-5)
}

// TestEmbeddingCandidates verifies only summarized entities qualify and
// that id scoping works.
func TestEmbeddingCandidates(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	withSummary := insertTestFile(t, st, "yes.go", "go", "package yes")
	insertTestFile(t, st, "no.go", "go", "package no")
	require.NoError(t, st.SetFileSummary(ctx, withSummary, "Gist.", "Gist.\n\nBody."))

	all, err := st.FileEmbeddingCandidates(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "yes.go", all[0].FilePath)
	assert.Equal(t, "Gist.\n\nBody.", all[0].Summary)

	none, err := st.FileEmbeddingCandidates(ctx, []int64{})
	require.NoError(t, err)
	assert.Empty(t, none)

	scoped, err := st.FileEmbeddingCandidates(ctx, []int64{withSummary})
	require.NoError(t, err)
	assert.Len(t, scoped, 1)
}

// TestDeleteDefinitionsRemovesEmbeddings verifies the definition-level
// delete path drops embedding rows and their mirrored vectors, so a
// replaced definition never leaves a stale id in the ANN index.
func TestDeleteDefinitionsRemovesEmbeddings(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureVectorIndex(ctx, 4))

	fileID := insertTestFile(t, st, "calc.go", "go", "package calc")
	defID := insertTestDefinition(t, st, &Definition{
		FileID: fileID, Name: "Add", Kind: "function",
		StartLine: 1, EndLine: 3,
		SourceCode: "func Add() {}", SourceCodeHash: "h1",
	})
	require.NoError(t, st.SetDefinitionSummary(ctx, defID, "Sums.", "Sums.\n\nBody."))

	row := &EmbeddingRow{
		EntityType: EntityDefinition,
		EntityID:   defID,
		EntityName: "Add",
		FilePath:   "calc.go",
		Vector:     PackVector([]float32{1, 0, 0, 0}),
		Model:      "mock",
		Dims:       4,
	}
	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertEmbedding(ctx, tx, row)
	}))

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.DeleteDefinitions(ctx, tx, []int64{defID})
	}))

	n, err := st.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := st.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 5, "")
	require.NoError(t, err)
	assert.Empty(t, rows, "deleted definition must leave no vector behind")
}

// TestTextSearchWithoutFTS exercises the LIKE fallbacks that serve symbol
// and path search when the driver lacks the FTS5 module.
func TestTextSearchWithoutFTS(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	fileID := insertTestFile(t, st, "pkg/calc/calc.go", "go", "package calc")
	insertTestFile(t, st, "pkg/other/other.go", "go", "package other")
	insertTestDefinition(t, st, &Definition{
		FileID: fileID, Name: "AddNumbers", Kind: "function",
		StartLine: 1, EndLine: 3,
		SourceCode: "func AddNumbers() {}", SourceCodeHash: "h1",
	})

	defs, err := st.likeDefinitions(ctx, "AddNum", 10)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "AddNumbers", defs[0].EntityName)
	assert.Equal(t, "pkg/calc/calc.go", defs[0].FilePath)

	files, err := st.likeFiles(ctx, "calc", 10)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "pkg/calc/calc.go", files[0].FilePath)

	// LIKE wildcards in the query are literals, not patterns.
	none, err := st.likeDefinitions(ctx, "%", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	// The dispatching entry points work whichever index is active.
	viaDispatch, err := st.FTSDefinitions(ctx, "AddNumbers", 10)
	require.NoError(t, err)
	assert.Len(t, viaDispatch, 1)
}
