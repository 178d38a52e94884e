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

package graph

import "sort"

// Group is one SCC: the unit of joint summarization. Size > 1 means a cycle
// whose members must be processed together.
type Group []int64

// Level is one topological generation: groups with no unmet dependencies
// once all earlier levels have been processed.
type Level []Group

// Levels produces the batched topological traversal of g in
// "dependencies first" order:
//
//  1. Reverse g, so leaves of the original (no outgoing dependencies) come
//     first.
//  2. Compute SCCs of the reversed graph.
//  3. Condense to a DAG of SCCs.
//  4. Take the transitive reduction of the condensation.
//  5. Emit topological generations of the reduced DAG.
//
// For any edge u → v in g across distinct SCCs, v's group appears in a
// strictly earlier level than u's.
func Levels(g *Graph) []Level {
	rev := g.Reverse()
	comps := stronglyConnected(rev)

	cond, members := condense(rev, comps)
	reduced := transitiveReduction(cond)
	gens := generations(reduced)

	levels := make([]Level, 0, len(gens))
	for _, gen := range gens {
		level := make(Level, 0, len(gen))
		for _, comp := range gen {
			group := append(Group(nil), members[comp]...)
			sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
			level = append(level, group)
		}
		// Deterministic order inside a level: by smallest member id.
		sort.Slice(level, func(i, j int) bool { return level[i][0] < level[j][0] })
		levels = append(levels, level)
	}
	return levels
}

// stronglyConnected computes SCCs with Tarjan's algorithm (iterative, so
// deep graphs cannot blow the goroutine stack). Returns the component index
// per node.
func stronglyConnected(g *Graph) map[int64]int {
	index := make(map[int64]int, g.NumNodes())
	lowlink := make(map[int64]int, g.NumNodes())
	onStack := make(map[int64]bool, g.NumNodes())
	comp := make(map[int64]int, g.NumNodes())
	var stack []int64
	next := 0
	nComps := 0

	type frame struct {
		node  int64
		succs []int64
		i     int
	}

	for _, root := range g.Nodes() {
		if _, visited := index[root]; visited {
			continue
		}
		var frames []frame
		frames = append(frames, frame{node: root, succs: g.Successors(root)})
		index[root] = next
		lowlink[root] = next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			if f.i < len(f.succs) {
				w := f.succs[f.i]
				f.i++
				if _, visited := index[w]; !visited {
					index[w] = next
					lowlink[w] = next
					next++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, frame{node: w, succs: g.Successors(w)})
				} else if onStack[w] {
					if index[w] < lowlink[f.node] {
						lowlink[f.node] = index[w]
					}
				}
				continue
			}

			// Frame exhausted: close the component if this is its root.
			v := f.node
			if lowlink[v] == index[v] {
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp[w] = nComps
					if w == v {
						break
					}
				}
				nComps++
			}
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
		}
	}
	return comp
}

// condense collapses each SCC to a single node. Returns the condensation
// DAG (nodes are component indexes) and the member list per component.
func condense(g *Graph, comp map[int64]int) (*Graph, map[int64][]int64) {
	cond := New()
	members := make(map[int64][]int64)
	for node, c := range comp {
		cond.AddNode(int64(c))
		members[int64(c)] = append(members[int64(c)], node)
	}
	for _, u := range g.Nodes() {
		for _, v := range g.Successors(u) {
			cu, cv := int64(comp[u]), int64(comp[v])
			if cu != cv {
				cond.AddEdge(cu, cv)
			}
		}
	}
	return cond, members
}

// transitiveReduction removes every edge u → v for which v stays reachable
// from u through another path. Input must be a DAG.
func transitiveReduction(g *Graph) *Graph {
	out := New()
	for _, n := range g.Nodes() {
		out.AddNode(n)
	}
	for _, u := range g.Nodes() {
		succs := g.Successors(u)
		for _, v := range succs {
			if !reachableAvoiding(g, u, v) {
				out.AddEdge(u, v)
			}
		}
	}
	return out
}

// reachableAvoiding reports whether v is reachable from u without using the
// direct edge u → v.
func reachableAvoiding(g *Graph, u, v int64) bool {
	seen := map[int64]bool{u: true}
	var stack []int64
	for _, w := range g.Successors(u) {
		if w != v {
			stack = append(stack, w)
		}
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == v {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, g.Successors(cur)...)
	}
	return false
}

// generations returns topological generations of a DAG: nodes with in-degree
// zero, then nodes whose predecessors are all in earlier generations.
func generations(g *Graph) [][]int64 {
	indeg := make(map[int64]int, g.NumNodes())
	for _, n := range g.Nodes() {
		indeg[n] = len(g.Predecessors(n))
	}

	var gens [][]int64
	current := make([]int64, 0)
	for _, n := range g.Nodes() {
		if indeg[n] == 0 {
			current = append(current, n)
		}
	}
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool { return current[i] < current[j] })
		gens = append(gens, current)
		var next []int64
		for _, n := range current {
			for _, s := range g.Successors(n) {
				indeg[s]--
				if indeg[s] == 0 {
					next = append(next, s)
				}
			}
		}
		current = next
	}
	return gens
}

// FilterLevels intersects every group with the allowed id set, dropping
// empty groups and then empty levels. Used by the incremental summarizer to
// restrict a full traversal to one phase's entities.
func FilterLevels(levels []Level, allowed map[int64]struct{}) []Level {
	var out []Level
	for _, level := range levels {
		var kept Level
		for _, group := range level {
			var filtered Group
			for _, id := range group {
				if _, ok := allowed[id]; ok {
					filtered = append(filtered, id)
				}
			}
			if len(filtered) > 0 {
				kept = append(kept, filtered)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}
