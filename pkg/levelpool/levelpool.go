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

// Package levelpool drives batched, rate-limited execution of one traversal
// level at a time. It is the shared concurrency primitive of the summarizer
// and the embedder: a level is a list of groups, each group is processed by
// one task, and the rate budget paces batches rather than individual tasks.
package levelpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kraklabs/repograph/pkg/graph"
)

// Config bounds the executor.
type Config struct {
	// MaxConcurrent caps in-flight tasks inside a batch.
	MaxConcurrent int
	// MinBatchSize is the batch size target; the effective batch size is
	// min(MinBatchSize, level size).
	MinBatchSize int
	// RatePerSecond is the request budget. The executor sleeps
	// batchSize/RatePerSecond between batches that produced work.
	RatePerSecond float64
	// TaskTimeout bounds each group task.
	TaskTimeout time.Duration
}

// Task processes one group and reports how many units of work (model or
// service calls that actually happened) it performed. Cache hits report
// zero so fully-cached batches skip the rate-limit sleep.
type Task func(ctx context.Context, group graph.Group) (int, error)

// Executor runs levels under a shared configuration.
type Executor struct {
	cfg    Config
	logger *slog.Logger

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration) error
}

// New creates an executor. A non-positive MaxConcurrent is lifted to 1; a
// zero-weight semaphore would block the first Acquire forever.
func New(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Executor{cfg: cfg, logger: logger, sleep: sleepCtx}
}

// RunLevel executes one level: partitions it into batches, fans each batch
// out under the semaphore, gathers every error in the batch, and invokes
// commit after each batch. Returns the total work performed.
//
// Ordering guarantee: RunLevel returns only after every group in the level
// has completed and committed, so callers can feed levels sequentially to
// honor the "dependencies before dependents" contract.
func (e *Executor) RunLevel(ctx context.Context, level graph.Level, task Task, commit func(context.Context) error) (int, error) {
	if len(level) == 0 {
		return 0, nil
	}

	batchSize := e.cfg.MinBatchSize
	if len(level) < batchSize {
		batchSize = len(level)
	}
	if batchSize < 1 {
		batchSize = 1
	}

	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrent))
	totalWork := 0

	for start := 0; start < len(level); start += batchSize {
		end := start + batchSize
		if end > len(level) {
			end = len(level)
		}
		batch := level[start:end]

		work, err := e.runBatch(ctx, batch, sem, task)
		totalWork += work
		if err != nil {
			return totalWork, err
		}

		if commit != nil {
			if err := commit(ctx); err != nil {
				return totalWork, fmt.Errorf("commit batch: %w", err)
			}
		}

		// The rate budget is the backpressure knob: pause between batches,
		// not inside them. Fully-cached batches do not spend budget.
		if end < len(level) && work > 0 && e.cfg.RatePerSecond > 0 {
			pause := time.Duration(float64(len(batch)) / e.cfg.RatePerSecond * float64(time.Second))
			e.logger.Debug("levelpool.rate.sleep", "duration", pause, "batch_size", len(batch))
			if err := e.sleep(ctx, pause); err != nil {
				return totalWork, err
			}
		}
	}
	return totalWork, nil
}

// runBatch fans out one batch and gathers all task errors.
func (e *Executor) runBatch(ctx context.Context, batch []graph.Group, sem *semaphore.Weighted, task Task) (int, error) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		worked int
	)

	for _, group := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(group graph.Group) {
			defer wg.Done()
			defer sem.Release(1)

			taskCtx := ctx
			if e.cfg.TaskTimeout > 0 {
				var cancel context.CancelFunc
				taskCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
				defer cancel()
			}

			n, err := task(taskCtx, group)
			mu.Lock()
			worked += n
			if err != nil {
				errs = append(errs, fmt.Errorf("group %v: %w", group, err))
			}
			mu.Unlock()
		}(group)
	}
	wg.Wait()

	if len(errs) > 0 {
		return worked, fmt.Errorf("%d of %d group tasks failed: %w", len(errs), len(batch), errors.Join(errs...))
	}
	return worked, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
