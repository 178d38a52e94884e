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

// Package graph builds the definition and file dependency graphs and
// provides the batched topological traversal that drives dependency-ordered
// summarization.
//
// Nodes are store row ids. Topology is kept as adjacency sets over integer
// ids; entities never own each other in memory, so reference cycles in the
// code being analyzed are just cycles in the edge set.
package graph

import "sort"

// Graph is a directed graph over int64 node ids.
type Graph struct {
	nodes map[int64]struct{}
	succ  map[int64]map[int64]struct{}
	pred  map[int64]map[int64]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[int64]struct{}),
		succ:  make(map[int64]map[int64]struct{}),
		pred:  make(map[int64]map[int64]struct{}),
	}
}

// AddNode inserts a node if absent.
func (g *Graph) AddNode(id int64) {
	g.nodes[id] = struct{}{}
}

// AddEdge inserts a directed edge u → v, adding missing endpoints.
// Self-loops are ignored; they carry no ordering information.
func (g *Graph) AddEdge(u, v int64) {
	if u == v {
		return
	}
	g.AddNode(u)
	g.AddNode(v)
	if g.succ[u] == nil {
		g.succ[u] = make(map[int64]struct{})
	}
	g.succ[u][v] = struct{}{}
	if g.pred[v] == nil {
		g.pred[v] = make(map[int64]struct{})
	}
	g.pred[v][u] = struct{}{}
}

// HasNode reports node membership.
func (g *Graph) HasNode(id int64) bool {
	_, ok := g.nodes[id]
	return ok
}

// HasEdge reports whether u → v exists.
func (g *Graph) HasEdge(u, v int64) bool {
	_, ok := g.succ[u][v]
	return ok
}

// Nodes returns all node ids in ascending order.
func (g *Graph) Nodes() []int64 {
	out := make([]int64, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Successors returns the out-neighbors of u in ascending order.
func (g *Graph) Successors(u int64) []int64 {
	return sortedKeys(g.succ[u])
}

// Predecessors returns the in-neighbors of u in ascending order.
func (g *Graph) Predecessors(u int64) []int64 {
	return sortedKeys(g.pred[u])
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int {
	n := 0
	for _, s := range g.succ {
		n += len(s)
	}
	return n
}

// Reverse returns a new graph with every edge flipped.
func (g *Graph) Reverse() *Graph {
	r := New()
	for id := range g.nodes {
		r.AddNode(id)
	}
	for u, vs := range g.succ {
		for v := range vs {
			r.AddEdge(v, u)
		}
	}
	return r
}

// Subgraph returns the induced subgraph on keep, preserving edges whose
// endpoints are both inside.
func (g *Graph) Subgraph(keep map[int64]struct{}) *Graph {
	sub := New()
	for id := range keep {
		if g.HasNode(id) {
			sub.AddNode(id)
		}
	}
	for u := range keep {
		for v := range g.succ[u] {
			if _, ok := keep[v]; ok {
				sub.AddEdge(u, v)
			}
		}
	}
	return sub
}

// AncestorClosure returns the seeds plus every node that transitively
// references a seed (reverse reachability over predecessor edges).
func (g *Graph) AncestorClosure(seeds []int64) map[int64]struct{} {
	closure := make(map[int64]struct{})
	queue := make([]int64, 0, len(seeds))
	for _, s := range seeds {
		if g.HasNode(s) {
			closure[s] = struct{}{}
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for p := range g.pred[cur] {
			if _, seen := closure[p]; !seen {
				closure[p] = struct{}{}
				queue = append(queue, p)
			}
		}
	}
	return closure
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
