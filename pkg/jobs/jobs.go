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

// Package jobs tracks asynchronous ingestion runs. Records live in memory
// only; a restart forgets finished and in-flight jobs alike, and clients
// are expected to treat an unknown job id as long since completed.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job states.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Progress phases owned by the manager itself. The phases in between come
// from the runner's own progress reports.
const (
	PhaseQueued    = "queued"
	PhaseStarting  = "starting"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// Progress is the last phase update a job reported.
type Progress struct {
	Phase   string `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// Record is the visible state of one job.
type Record struct {
	ID        string    `json:"job_id"`
	Slug      string    `json:"repo_slug"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Runner is the work a job performs. The returned message becomes the
// job's final message on success.
type Runner func(ctx context.Context, job *Handle) (string, error)

// Handle lets a runner report progress for its own job.
type Handle struct {
	id string
	m  *Manager
}

// SetProgress records the job's current phase.
func (h *Handle) SetProgress(phase string, current, total int) {
	h.m.update(h.id, func(r *Record) {
		r.Progress = Progress{Phase: phase, Current: current, Total: total}
	})
}

// Manager owns the job table and the goroutines running jobs.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Record
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{jobs: make(map[string]*Record), logger: logger}
}

// Submit registers a job and starts it on its own goroutine. The context
// passed in should outlive the HTTP request that triggered the job.
func (m *Manager) Submit(ctx context.Context, slug string, run Runner) *Record {
	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		Slug:      slug,
		Status:    StatusQueued,
		Progress:  Progress{Phase: PhaseQueued},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	m.jobs[rec.ID] = rec
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.update(rec.ID, func(r *Record) {
			r.Status = StatusRunning
			r.Progress.Phase = PhaseStarting
		})
		m.logger.Info("jobs.started", "job_id", rec.ID, "slug", slug)

		message, err := run(ctx, &Handle{id: rec.ID, m: m})
		if err != nil {
			m.update(rec.ID, func(r *Record) {
				r.Status = StatusFailed
				r.Progress.Phase = PhaseFailed
				r.Message = err.Error()
			})
			m.logger.Error("jobs.failed", "job_id", rec.ID, "slug", slug, "error", err)
			return
		}
		m.update(rec.ID, func(r *Record) {
			r.Status = StatusSucceeded
			r.Progress.Phase = PhaseCompleted
			r.Message = message
		})
		m.logger.Info("jobs.succeeded", "job_id", rec.ID, "slug", slug)
	}()

	return m.snapshot(rec.ID)
}

// Get returns a copy of the job record, or nil when the id is unknown.
func (m *Manager) Get(id string) *Record {
	return m.snapshot(id)
}

// Wait blocks until every submitted job has finished. Used by tests and
// graceful shutdown.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) update(id string, fn func(*Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.jobs[id]; ok {
		fn(r)
		r.UpdatedAt = time.Now().UTC()
	}
}

func (m *Manager) snapshot(id string) *Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}
