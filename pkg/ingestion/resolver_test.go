// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repograph/pkg/store"
)

func openResolverStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "resolve.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertResolverFile(t *testing.T, st *store.Store, path string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, st.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		id, err = st.InsertFile(context.Background(), tx, &store.File{Path: path, Language: "go"})
		return err
	}))
	return id
}

func insertResolverDef(t *testing.T, st *store.Store, fileID int64, name string, start, end int) int64 {
	t.Helper()
	var id int64
	require.NoError(t, st.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		id, err = st.InsertDefinition(context.Background(), tx, &store.Definition{
			FileID:         fileID,
			Name:           name,
			Kind:           "function",
			StartLine:      start,
			EndLine:        end,
			SourceCode:     "func " + name + "() {}",
			SourceCodeHash: name + "-hash",
		})
		return err
	}))
	return id
}

// TestResolve_SameFileReferenceIsLocal verifies a reference between two
// definitions in the same file is typed local even when the target's file
// id and the source's definition id diverge.
func TestResolve_SameFileReferenceIsLocal(t *testing.T) {
	st := openResolverStore(t)
	ctx := context.Background()

	// Padding rows push the calc.go ids apart so a file id can never
	// coincide with a definition id by accident.
	padFile := insertResolverFile(t, st, "pad.go")
	insertResolverDef(t, st, padFile, "Pad", 1, 2)

	calcFile := insertResolverFile(t, st, "calc.go")
	addID := insertResolverDef(t, st, calcFile, "Add", 1, 3)
	doubleID := insertResolverDef(t, st, calcFile, "Double", 5, 8)

	resolver := NewResolver(st, nil)
	stats, err := resolver.Resolve(ctx, []*FileParse{{
		Path:        "calc.go",
		Occurrences: []Occurrence{{Name: "Add", Line: 6}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	refs, err := st.ReferencesBySource(ctx, doubleID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].TargetID)
	assert.Equal(t, addID, *refs[0].TargetID)
	assert.Equal(t, store.RefLocal, refs[0].Type)
}

// TestResolve_CrossFileReferenceIsImported verifies the cross-file type.
func TestResolve_CrossFileReferenceIsImported(t *testing.T) {
	st := openResolverStore(t)
	ctx := context.Background()

	libFile := insertResolverFile(t, st, "lib.go")
	helperID := insertResolverDef(t, st, libFile, "Helper", 1, 3)

	mainFile := insertResolverFile(t, st, "main.go")
	mainID := insertResolverDef(t, st, mainFile, "Run", 1, 4)

	resolver := NewResolver(st, nil)
	_, err := resolver.Resolve(ctx, []*FileParse{{
		Path:        "main.go",
		Occurrences: []Occurrence{{Name: "Helper", Line: 2}},
	}})
	require.NoError(t, err)

	refs, err := st.ReferencesBySource(ctx, mainID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].TargetID)
	assert.Equal(t, helperID, *refs[0].TargetID)
	assert.Equal(t, store.RefImported, refs[0].Type)
}

// TestResolve_UnresolvedNamesGetNullTargetRows verifies external and
// ambiguous use-sites are recorded with a null target, deduplicated per
// (source, name), and kept out of the dependency graph edges.
func TestResolve_UnresolvedNamesGetNullTargetRows(t *testing.T) {
	st := openResolverStore(t)
	ctx := context.Background()

	aFile := insertResolverFile(t, st, "a.go")
	insertResolverDef(t, st, aFile, "Parse", 1, 3)
	bFile := insertResolverFile(t, st, "b.go")
	insertResolverDef(t, st, bFile, "Parse", 1, 3)

	mainFile := insertResolverFile(t, st, "main.go")
	mainID := insertResolverDef(t, st, mainFile, "Run", 1, 6)

	parses := []*FileParse{{
		Path: "main.go",
		Occurrences: []Occurrence{
			{Name: "Sprintf", Line: 2}, // matches nothing: external
			{Name: "Sprintf", Line: 4}, // same name again: one row only
			{Name: "Parse", Line: 3},   // two cross-file candidates: ambiguous
		},
	}}

	resolver := NewResolver(st, nil)
	stats, err := resolver.Resolve(ctx, parses)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.External)
	assert.Equal(t, 1, stats.Ambiguous)

	refs, err := st.ReferencesBySource(ctx, mainID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	for _, ref := range refs {
		assert.Nil(t, ref.TargetID)
		assert.Equal(t, store.RefUnknown, ref.Type)
	}

	// A second pass over the same occurrences must not duplicate rows.
	_, err = resolver.Resolve(ctx, parses)
	require.NoError(t, err)
	refs, err = st.ReferencesBySource(ctx, mainID)
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	edges, err := st.ResolvedReferences(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges, "null targets must not become graph edges")
}
