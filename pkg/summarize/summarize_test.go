// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package summarize

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/llm"
	"github.com/kraklabs/repograph/pkg/store"
)

type fixture struct {
	store    *store.Store
	fileID   int64
	caller   int64
	callee   int64
	defGraph *graph.Graph
	fileG    *graph.Graph
}

// newFixture builds one file with two definitions where Caller depends on
// Callee, and the matching dependency graphs.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sum.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	f := &fixture{store: st}

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		f.fileID, err = st.InsertFile(ctx, tx, &store.File{
			Path: "lib.go", Language: "go",
			Content: "package lib\n\nfunc Callee() {}\n\nfunc Caller() { Callee() }\n",
		})
		if err != nil {
			return err
		}
		f.callee, err = st.InsertDefinition(ctx, tx, &store.Definition{
			FileID: f.fileID, Name: "Callee", Kind: store.KindFunction,
			StartLine: 3, EndLine: 3, SourceCode: "func Callee() {}", SourceCodeHash: "hc",
		})
		if err != nil {
			return err
		}
		f.caller, err = st.InsertDefinition(ctx, tx, &store.Definition{
			FileID: f.fileID, Name: "Caller", Kind: store.KindFunction,
			StartLine: 5, EndLine: 5, SourceCode: "func Caller() { Callee() }", SourceCodeHash: "hr",
		})
		return err
	}))

	f.defGraph = graph.New()
	f.defGraph.AddNode(f.callee)
	f.defGraph.AddNode(f.caller)
	f.defGraph.AddEdge(f.caller, f.callee)

	f.fileG = graph.New()
	f.fileG.AddNode(f.fileID)
	return f
}

// TestRunFull_SummarizesEverything verifies both definitions and the file
// get summaries, one chat exchange each.
func TestRunFull_SummarizesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mock := &llm.MockChat{}
	s := New(f.store, mock, DefaultConfig(), nil)

	var phases []string
	require.NoError(t, s.RunFull(ctx, f.defGraph, f.fileG, func(phase string, _, _ int) {
		phases = append(phases, phase)
	}))

	assert.Equal(t, int64(3), mock.Calls.Load())
	assert.Equal(t, int64(2), s.Stats.DefinitionSummaries.Load())
	assert.Equal(t, int64(1), s.Stats.FileSummaries.Load())
	assert.Contains(t, phases, "summaries.definitions")
	assert.Contains(t, phases, "summaries.files")

	for _, id := range []int64{f.callee, f.caller} {
		d, err := f.store.GetDefinition(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, d.AIShortSummary)
		assert.Contains(t, *d.AIShortSummary, "mock gist")
	}
	file, err := f.store.GetFile(ctx, f.fileID)
	require.NoError(t, err)
	require.NotNil(t, file.AIShortSummary)
}

// TestRunFull_SkipsPersistedSummaries verifies full runs resume: a second
// full run finds every summary persisted and makes no model calls.
func TestRunFull_SkipsPersistedSummaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mock := &llm.MockChat{}
	s := New(f.store, mock, DefaultConfig(), nil)
	require.NoError(t, s.RunFull(ctx, f.defGraph, f.fileG, nil))
	fullCalls := mock.Calls.Load()

	s2 := New(f.store, mock, DefaultConfig(), nil)
	require.NoError(t, s2.RunFull(ctx, f.defGraph, f.fileG, nil))
	assert.Equal(t, fullCalls, mock.Calls.Load())
}

// TestRunIncremental_EmptyDelta verifies an incremental run with nothing
// changed makes no model calls.
func TestRunIncremental_EmptyDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mock := &llm.MockChat{}
	s := New(f.store, mock, DefaultConfig(), nil)
	require.NoError(t, s.RunFull(ctx, f.defGraph, f.fileG, nil))
	fullCalls := mock.Calls.Load()

	regenDefs, regenFiles, err := s.RunIncremental(ctx, f.defGraph, f.fileG, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, regenDefs)
	assert.Empty(t, regenFiles)
	assert.Equal(t, fullCalls, mock.Calls.Load())
}

// TestRunIncremental_RegeneratesDependents verifies an edit to a dependency
// also regenerates everything that depends on it.
func TestRunIncremental_RegeneratesDependents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mock := &llm.MockChat{}
	s := New(f.store, mock, DefaultConfig(), nil)
	require.NoError(t, s.RunFull(ctx, f.defGraph, f.fileG, nil))
	fullCalls := mock.Calls.Load()

	regenDefs, regenFiles, err := s.RunIncremental(ctx, f.defGraph, f.fileG,
		[]int64{f.callee}, []int64{f.fileID}, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{f.callee, f.caller}, regenDefs)
	assert.ElementsMatch(t, []int64{f.fileID}, regenFiles)
	// Callee, Caller, and the file were re-summarized.
	assert.Equal(t, fullCalls+3, mock.Calls.Load())
}

// TestRunIncremental_UntouchedDefinitionSkipped verifies a change scoped to
// a leaf with no dependents leaves the rest alone.
func TestRunIncremental_UntouchedDefinitionSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mock := &llm.MockChat{}
	s := New(f.store, mock, DefaultConfig(), nil)
	require.NoError(t, s.RunFull(ctx, f.defGraph, f.fileG, nil))
	fullCalls := mock.Calls.Load()

	// Caller has no dependents, so only Caller and the file regenerate.
	regenDefs, _, err := s.RunIncremental(ctx, f.defGraph, f.fileG,
		[]int64{f.caller}, []int64{f.fileID}, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{f.caller}, regenDefs)
	assert.Equal(t, fullCalls+2, mock.Calls.Load())
}

// TestRunFull_MissingDependencySummaryFails verifies the ordering guard:
// prompts for a definition whose dependency was never summarized fail
// instead of silently omitting context.
func TestRunFull_MissingDependencySummaryFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mock := &llm.MockChat{}
	s := New(f.store, mock, DefaultConfig(), nil)

	// A graph that only contains Caller: its dependency edge is gone, so
	// this succeeds and proves the guard keys off graph successors.
	solo := graph.New()
	solo.AddNode(f.caller)
	require.NoError(t, s.runDefinitionLevels(ctx, graph.Levels(solo), solo, map[int64]string{f.fileID: "lib.go"}, true, nil, "summaries.definitions"))

	// With the edge present but Callee unsummarized and uncached, the
	// guard trips.
	s2 := New(f.store, mock, DefaultConfig(), nil)
	withEdge := graph.New()
	withEdge.AddNode(f.caller)
	withEdge.AddEdge(f.caller, f.callee)
	levels := []graph.Level{{graph.Group{f.caller}}}
	err := s2.runDefinitionLevels(ctx, levels, withEdge, map[int64]string{f.fileID: "lib.go"}, true, nil, "summaries.definitions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing dependency summaries")
}

// TestFileSummaryRequiresDefinitionSummaries verifies the file-level
// ordering guard: a file is summarized only after every definition in it
// carries a summary, never with blank gists in the prompt.
func TestFileSummaryRequiresDefinitionSummaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mock := &llm.MockChat{}
	s := New(f.store, mock, DefaultConfig(), nil)

	// Neither definition is summarized yet.
	fileLevels := []graph.Level{{graph.Group{f.fileID}}}
	err := s.runFileLevels(ctx, fileLevels, f.fileG, true, nil, "summaries.files")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing definition summaries")
	assert.Zero(t, mock.Calls.Load(), "no prompt may be sent with blank definition gists")

	// With the definitions summarized the same levels succeed.
	require.NoError(t, s.runDefinitionLevels(ctx, graph.Levels(f.defGraph), f.defGraph,
		map[int64]string{f.fileID: "lib.go"}, true, nil, "summaries.definitions"))
	require.NoError(t, s.runFileLevels(ctx, fileLevels, f.fileG, true, nil, "summaries.files"))

	file, err := f.store.GetFile(ctx, f.fileID)
	require.NoError(t, err)
	require.NotNil(t, file.AIShortSummary)
}
