// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestManager_SuccessfulJob verifies the pending → running → succeeded
// lifecycle and the final message.
func TestManager_SuccessfulJob(t *testing.T) {
	m := NewManager(nil)

	rec := m.Submit(context.Background(), "acme-api", func(_ context.Context, job *Handle) (string, error) {
		job.SetProgress("parse", 3, 10)
		return "done in 2s", nil
	})
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, "acme-api", rec.Slug)

	m.Wait()

	final := m.Get(rec.ID)
	require.NotNil(t, final)
	assert.Equal(t, StatusSucceeded, final.Status)
	assert.Equal(t, "done in 2s", final.Message)
	assert.Equal(t, PhaseCompleted, final.Progress.Phase)
	assert.Equal(t, 3, final.Progress.Current)
	assert.False(t, final.UpdatedAt.Before(final.CreatedAt))
}

// TestManager_FailedJob verifies the error path.
func TestManager_FailedJob(t *testing.T) {
	m := NewManager(nil)

	rec := m.Submit(context.Background(), "acme-api", func(context.Context, *Handle) (string, error) {
		return "", errors.New("clone failed: repository not found")
	})
	m.Wait()

	final := m.Get(rec.ID)
	require.NotNil(t, final)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, PhaseFailed, final.Progress.Phase)
	assert.Contains(t, final.Message, "repository not found")
}

// TestManager_UnknownID verifies lookups of forgotten ids return nil.
func TestManager_UnknownID(t *testing.T) {
	m := NewManager(nil)
	assert.Nil(t, m.Get("no-such-job"))
}

// TestManager_SnapshotIsCopy verifies callers cannot mutate the table
// through a returned record.
func TestManager_SnapshotIsCopy(t *testing.T) {
	m := NewManager(nil)
	rec := m.Submit(context.Background(), "acme-api", func(context.Context, *Handle) (string, error) {
		return "", nil
	})
	m.Wait()

	snap := m.Get(rec.ID)
	snap.Status = StatusFailed
	assert.Equal(t, StatusSucceeded, m.Get(rec.ID).Status)
}
