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

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kraklabs/repograph/pkg/store"
)

// Builder materializes dependency graphs from the store.
type Builder struct {
	store  *store.Store
	logger *slog.Logger
}

// NewBuilder creates a graph builder over one repository store.
func NewBuilder(st *store.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: st, logger: logger}
}

// DefinitionGraph builds the graph with a node per definition and an edge
// u → v for every resolved reference (source=u, target=v). Unresolved
// references and self-references are excluded.
func (b *Builder) DefinitionGraph(ctx context.Context) (*Graph, error) {
	g := New()

	defFiles, err := b.store.DefinitionFileIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	for id := range defFiles {
		g.AddNode(id)
	}

	edges, err := b.store.ResolvedReferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("load references: %w", err)
	}
	for _, e := range edges {
		g.AddEdge(e.From, e.To)
	}

	b.logger.Debug("graph.definitions.built", "nodes", g.NumNodes(), "edges", g.NumEdges())
	return g, nil
}

// FileGraph derives the file-level graph from a definition graph: edge
// F → G when some definition in F references some definition in G, F ≠ G.
func (b *Builder) FileGraph(ctx context.Context, defGraph *Graph) (*Graph, error) {
	defFiles, err := b.store.DefinitionFileIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load definition files: %w", err)
	}

	g := New()
	files, err := b.store.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	for _, f := range files {
		g.AddNode(f.ID)
	}

	for _, u := range defGraph.Nodes() {
		for _, v := range defGraph.Successors(u) {
			fu, okU := defFiles[u]
			fv, okV := defFiles[v]
			if okU && okV && fu != fv {
				g.AddEdge(fu, fv)
			}
		}
	}

	b.logger.Debug("graph.files.built", "nodes", g.NumNodes(), "edges", g.NumEdges())
	return g, nil
}

// Materialize rebuilds the persistent dependency tables from the in-memory
// graphs. Both tables are truncated first so removed definitions cannot
// leave stale edges behind.
func (b *Builder) Materialize(ctx context.Context, defGraph, fileGraph *Graph) error {
	var defEdges []store.DependencyEdge
	for _, u := range defGraph.Nodes() {
		for _, v := range defGraph.Successors(u) {
			defEdges = append(defEdges, store.DependencyEdge{From: u, To: v})
		}
	}
	if err := b.store.RebuildDefinitionDependencies(ctx, defEdges); err != nil {
		return fmt.Errorf("materialize definition dependencies: %w", err)
	}

	var fileEdges []store.DependencyEdge
	for _, u := range fileGraph.Nodes() {
		for _, v := range fileGraph.Successors(u) {
			fileEdges = append(fileEdges, store.DependencyEdge{From: u, To: v})
		}
	}
	if err := b.store.RebuildFileDependencies(ctx, fileEdges); err != nil {
		return fmt.Errorf("materialize file dependencies: %w", err)
	}

	b.logger.Info("graph.materialize.complete",
		"definition_edges", len(defEdges), "file_edges", len(fileEdges))
	return nil
}
