// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// levelOf returns the level index containing id, or -1.
func levelOf(levels []Level, id int64) int {
	for i, level := range levels {
		for _, group := range level {
			for _, member := range group {
				if member == id {
					return i
				}
			}
		}
	}
	return -1
}

// groupOf returns the group containing id, or nil.
func groupOf(levels []Level, id int64) Group {
	for _, level := range levels {
		for _, group := range level {
			for _, member := range group {
				if member == id {
					return group
				}
			}
		}
	}
	return nil
}

// TestLevels_Chain verifies dependencies-first ordering on a simple chain:
// 1 depends on 2, 2 depends on 3. The leaf must come first.
func TestLevels_Chain(t *testing.T) {
	g := New()
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)

	levels := Levels(g)
	require.Len(t, levels, 3)

	assert.Equal(t, 0, levelOf(levels, 3))
	assert.Equal(t, 1, levelOf(levels, 2))
	assert.Equal(t, 2, levelOf(levels, 1))
}

// TestLevels_Diamond verifies that independent dependencies share a level.
func TestLevels_Diamond(t *testing.T) {
	g := New()
	// 1 depends on 2 and 3; both depend on 4.
	g.AddEdge(1, 2)
	g.AddEdge(1, 3)
	g.AddEdge(2, 4)
	g.AddEdge(3, 4)

	levels := Levels(g)
	require.Len(t, levels, 3)

	assert.Equal(t, 0, levelOf(levels, 4))
	assert.Equal(t, 1, levelOf(levels, 2))
	assert.Equal(t, 1, levelOf(levels, 3))
	assert.Equal(t, 2, levelOf(levels, 1))
}

// TestLevels_Cycle verifies that mutually recursive nodes land in one group
// and that the group is ordered after its dependencies.
func TestLevels_Cycle(t *testing.T) {
	g := New()
	// 1 and 2 call each other; both depend on 3.
	g.AddEdge(1, 2)
	g.AddEdge(2, 1)
	g.AddEdge(1, 3)

	levels := Levels(g)
	require.Len(t, levels, 2)

	assert.Equal(t, 0, levelOf(levels, 3))

	cycle := groupOf(levels, 1)
	require.NotNil(t, cycle)
	assert.ElementsMatch(t, Group{1, 2}, cycle)
	assert.Equal(t, levelOf(levels, 1), levelOf(levels, 2))
}

// TestLevels_DependencyOrderInvariant checks the global invariant on a
// denser graph: for every edge, the target's level is strictly earlier
// unless both ends share a cycle.
func TestLevels_DependencyOrderInvariant(t *testing.T) {
	g := New()
	edges := [][2]int64{
		{1, 2}, {1, 3}, {2, 4}, {3, 4}, {4, 5},
		{6, 4}, {7, 6}, {7, 1},
		{8, 9}, {9, 8}, // cycle
		{8, 5},
	}
	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}

	levels := Levels(g)
	for _, e := range edges {
		lu, lv := levelOf(levels, e[0]), levelOf(levels, e[1])
		require.NotEqual(t, -1, lu)
		require.NotEqual(t, -1, lv)
		if lu == lv {
			assert.Equal(t, groupOf(levels, e[0])[0], groupOf(levels, e[1])[0],
				"same-level edge %v must be inside one cycle group", e)
			continue
		}
		assert.Less(t, lv, lu, "dependency %d must precede dependent %d", e[1], e[0])
	}
}

// TestLevels_Isolated verifies that nodes without edges come out in the
// first level.
func TestLevels_Isolated(t *testing.T) {
	g := New()
	g.AddNode(10)
	g.AddNode(20)

	levels := Levels(g)
	require.Len(t, levels, 1)
	assert.Len(t, levels[0], 2)
}

// TestFilterLevels verifies group intersection and removal of emptied
// groups and levels.
func TestFilterLevels(t *testing.T) {
	levels := []Level{
		{Group{1, 2}, Group{3}},
		{Group{4}},
		{Group{5, 6}},
	}
	allowed := map[int64]struct{}{2: {}, 5: {}, 6: {}}

	filtered := FilterLevels(levels, allowed)
	require.Len(t, filtered, 2)
	assert.Equal(t, Level{Group{2}}, filtered[0])
	assert.Equal(t, Level{Group{5, 6}}, filtered[1])
}

// TestAncestorClosure verifies reverse reachability from a seed set.
func TestAncestorClosure(t *testing.T) {
	g := New()
	// 1 → 2 → 3, 4 → 3, 5 isolated.
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	g.AddEdge(4, 3)
	g.AddNode(5)

	closure := g.AncestorClosure([]int64{3})
	assert.Len(t, closure, 4)
	assert.Contains(t, closure, int64(1))
	assert.Contains(t, closure, int64(2))
	assert.Contains(t, closure, int64(4))
	assert.NotContains(t, closure, int64(5))

	// Seeds not in the graph are ignored.
	assert.Empty(t, g.AncestorClosure([]int64{99}))
}

// TestSubgraph verifies induced-subgraph edge preservation.
func TestSubgraph(t *testing.T) {
	g := New()
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)

	sub := g.Subgraph(map[int64]struct{}{1: {}, 2: {}})
	assert.True(t, sub.HasEdge(1, 2))
	assert.False(t, sub.HasNode(3))
	assert.Equal(t, 2, sub.NumNodes())
	assert.Equal(t, 1, sub.NumEdges())
}
