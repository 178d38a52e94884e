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

// Package embed turns entity summaries into vectors and mirrors them into
// the sqlite-vec index. Entities without a summary are never embedded, and
// nothing here deletes vectors; row removal is the store's concern.
package embed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kraklabs/repograph/pkg/graph"
	"github.com/kraklabs/repograph/pkg/levelpool"
	"github.com/kraklabs/repograph/pkg/llm"
	"github.com/kraklabs/repograph/pkg/store"
)

// Config bounds the embedding executor.
type Config struct {
	MaxConcurrent    int
	MinBatchSize     int
	RequestsPerMin   float64
	TaskTimeout      time.Duration
	// TextsPerRequest caps how many summaries ride in one API call.
	TextsPerRequest int
}

// DefaultConfig matches the service defaults: 4 concurrent requests, a
// budget of 3000 requests per minute, 100 texts per call, 5 minutes per
// task.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   4,
		MinBatchSize:    100,
		RequestsPerMin:  3000,
		TaskTimeout:     300 * time.Second,
		TextsPerRequest: 100,
	}
}

// Scope selects what to embed. A nil id slice means everything of that
// entity type; an empty non-nil slice means nothing.
type Scope struct {
	FileIDs       []int64
	DefinitionIDs []int64
}

// All embeds every summarized entity.
func All() Scope { return Scope{} }

// Stats counts what a run produced.
type Stats struct {
	Embedded atomic.Int64
	Requests atomic.Int64
}

// Progress reports batch completion.
type Progress func(done, total int)

// Embedder generates and stores embeddings.
type Embedder struct {
	store  *store.Store
	client llm.EmbeddingsClient
	exec   *levelpool.Executor
	retry  llm.RetryPolicy
	logger *slog.Logger
	cfg    Config

	Stats Stats
}

// New creates an embedder.
func New(st *store.Store, client llm.EmbeddingsClient, cfg Config, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TextsPerRequest <= 0 {
		cfg.TextsPerRequest = DefaultConfig().TextsPerRequest
	}
	return &Embedder{
		store:  st,
		client: client,
		exec: levelpool.New(levelpool.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MinBatchSize:  cfg.MinBatchSize,
			RatePerSecond: cfg.RequestsPerMin / 60,
			TaskTimeout:   cfg.TaskTimeout,
		}, logger),
		retry:  llm.DefaultRetryPolicy(),
		logger: logger,
		cfg:    cfg,
	}
}

// Run embeds every candidate in scope. The vector index is sized to the
// client's dimensionality before the first write.
func (e *Embedder) Run(ctx context.Context, scope Scope, progress Progress) error {
	if err := e.store.EnsureVectorIndex(ctx, e.client.Dimensions()); err != nil {
		return err
	}

	files, err := e.store.FileEmbeddingCandidates(ctx, scope.FileIDs)
	if err != nil {
		return err
	}
	defs, err := e.store.DefinitionEmbeddingCandidates(ctx, scope.DefinitionIDs)
	if err != nil {
		return err
	}
	candidates := append(files, defs...)
	if len(candidates) == 0 {
		e.logger.Info("embed.run.nothing_to_do")
		return nil
	}

	// Groups are candidate-slice indexes, not entity ids: file and
	// definition ids share a number space and would collide.
	var level graph.Level
	for start := 0; start < len(candidates); start += e.cfg.TextsPerRequest {
		end := start + e.cfg.TextsPerRequest
		if end > len(candidates) {
			end = len(candidates)
		}
		group := make(graph.Group, 0, end-start)
		for i := start; i < end; i++ {
			group = append(group, int64(i))
		}
		level = append(level, group)
	}

	done := 0
	_, err = e.exec.RunLevel(ctx, level,
		func(ctx context.Context, group graph.Group) (int, error) {
			return e.embedGroup(ctx, candidates, group)
		},
		func(context.Context) error {
			done++
			if progress != nil {
				progress(done, len(level))
			}
			return nil
		})
	if err != nil {
		return err
	}

	e.logger.Info("embed.run.complete",
		"entities", len(candidates),
		"model", e.client.Model(),
		"dims", e.client.Dimensions(),
	)
	return nil
}

// embedGroup sends one API call for the group's texts and upserts all rows
// in one transaction.
func (e *Embedder) embedGroup(ctx context.Context, candidates []store.EmbeddingCandidate, group graph.Group) (int, error) {
	texts := make([]string, len(group))
	for i, idx := range group {
		texts[i] = pageContent(&candidates[idx])
	}

	vectors, err := llm.Retry(ctx, e.logger, e.retry, "embeddings batch", func(ctx context.Context) ([][]float32, error) {
		e.Stats.Requests.Add(1)
		return e.client.Embed(ctx, texts)
	})
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(group) {
		return 0, fmt.Errorf("embeddings batch: got %d vectors for %d texts", len(vectors), len(group))
	}

	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for i, idx := range group {
			c := &candidates[idx]
			row := &store.EmbeddingRow{
				EntityType:     c.EntityType,
				EntityID:       c.EntityID,
				EntityName:     c.EntityName,
				FilePath:       c.FilePath,
				Language:       c.Language,
				DefinitionType: c.DefinitionType,
				Vector:         store.PackVector(vectors[i]),
				Model:          e.client.Model(),
				Dims:           e.client.Dimensions(),
			}
			if err := e.store.UpsertEmbedding(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.Stats.Embedded.Add(int64(len(group)))
	return 1, nil
}

// pageContent builds the text the model sees. Definitions carry their name
// and kind so similar summaries of different entities stay separable.
func pageContent(c *store.EmbeddingCandidate) string {
	if c.EntityType == store.EntityDefinition {
		return fmt.Sprintf("%s\n\nName: %s\nType: %s", c.Summary, c.EntityName, c.DefinitionType)
	}
	return c.Summary
}
