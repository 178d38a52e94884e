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

// Package search answers queries over one repository store: semantic
// (vector), symbol-name, file-path, and a hybrid of all three.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kraklabs/repograph/pkg/llm"
	"github.com/kraklabs/repograph/pkg/store"
)

// Search modes.
const (
	ModeSemantic = "semantic"
	ModeSymbol   = "symbol"
	ModePath     = "path"
	ModeHybrid   = "hybrid"
)

// Result-set bounds when the caller does not set them.
const (
	DefaultTopK = 10
	MaxTopK     = 200
)

// Metadata carries the display fields of a search hit.
type Metadata struct {
	EntityType     string `json:"entity_type"`
	EntityID       int64  `json:"entity_id"`
	EntityName     string `json:"entity_name"`
	FilePath       string `json:"file_path"`
	Language       string `json:"language,omitempty"`
	DefinitionType string `json:"definition_type,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// Result is one search hit.
type Result struct {
	EntityType string   `json:"entity_type"`
	EntityID   int64    `json:"entity_id"`
	Similarity float64  `json:"similarity_score"`
	Summary    string   `json:"summary_text,omitempty"`
	Metadata   Metadata `json:"metadata"`
}

// Processor executes searches. The embeddings client is only needed for
// vector and hybrid modes.
type Processor struct {
	store    *store.Store
	embedder llm.EmbeddingsClient
	logger   *slog.Logger
}

// NewProcessor creates a search processor.
func NewProcessor(st *store.Store, embedder llm.EmbeddingsClient, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: st, embedder: embedder, logger: logger}
}

// Search runs one query. entityType filters vector results to "file" or
// "definition"; empty means both.
func (p *Processor) Search(ctx context.Context, query, mode string, topK int, entityType string) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	switch mode {
	case "":
		return p.hybrid(ctx, query, topK, entityType)
	case ModeSemantic:
		rows, err := p.vectorRows(ctx, query, topK, entityType)
		if err != nil {
			return nil, err
		}
		return toResults(rows), nil
	case ModeSymbol:
		rows, err := p.store.FTSDefinitions(ctx, query, topK)
		if err != nil {
			return nil, err
		}
		return toResults(rows), nil
	case ModePath:
		rows, err := p.store.FTSFiles(ctx, query, topK)
		if err != nil {
			return nil, err
		}
		return toResults(rows), nil
	case ModeHybrid:
		return p.hybrid(ctx, query, topK, entityType)
	default:
		return nil, fmt.Errorf("unknown search mode: %q", mode)
	}
}

func (p *Processor) vectorRows(ctx context.Context, query string, topK int, entityType string) ([]store.SearchRow, error) {
	if p.embedder == nil {
		return nil, fmt.Errorf("vector search requires an embeddings client")
	}
	vectors, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}
	return p.store.NearestNeighbors(ctx, vectors[0], topK, entityType)
}

// hybrid merges vector hits with symbol and path FTS hits. Duplicates
// collapse to their best (lowest) distance, then the merged set is
// re-ranked and truncated.
func (p *Processor) hybrid(ctx context.Context, query string, topK int, entityType string) ([]Result, error) {
	var merged []store.SearchRow

	vec, err := p.vectorRows(ctx, query, topK, entityType)
	if err != nil {
		return nil, err
	}
	merged = append(merged, vec...)

	if entityType == "" || entityType == store.EntityDefinition {
		defs, err := p.store.FTSDefinitions(ctx, query, topK)
		if err != nil {
			return nil, err
		}
		merged = append(merged, defs...)
	}
	if entityType == "" || entityType == store.EntityFile {
		files, err := p.store.FTSFiles(ctx, query, topK)
		if err != nil {
			return nil, err
		}
		merged = append(merged, files...)
	}

	type key struct {
		entityType string
		id         int64
	}
	best := make(map[key]store.SearchRow, len(merged))
	for _, row := range merged {
		k := key{row.EntityType, row.EntityID}
		if prev, ok := best[k]; !ok || row.Distance < prev.Distance {
			best[k] = row
		}
	}

	deduped := make([]store.SearchRow, 0, len(best))
	for _, row := range best {
		deduped = append(deduped, row)
	}
	sort.Slice(deduped, func(i, j int) bool { return deduped[i].Distance < deduped[j].Distance })
	if len(deduped) > topK {
		deduped = deduped[:topK]
	}
	return toResults(deduped), nil
}

func toResults(rows []store.SearchRow) []Result {
	out := make([]Result, len(rows))
	for i, row := range rows {
		out[i] = Result{
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			Similarity: similarity(row.Distance),
			Summary:    row.AISummary,
			Metadata: Metadata{
				EntityType:     row.EntityType,
				EntityID:       row.EntityID,
				EntityName:     row.EntityName,
				FilePath:       row.FilePath,
				Language:       row.Language,
				DefinitionType: row.DefinitionType,
				CreatedAt:      row.CreatedAt,
			},
		}
	}
	return out
}

// similarity maps a distance to (0, 1]. FTS bm25 ranks are negative for
// good matches; clamp so those still land near 1.
func similarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}
