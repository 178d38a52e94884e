// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// MockChat is a deterministic ChatClient for tests. It emits a well-formed
// gist/body response derived from the prompt and counts calls.
type MockChat struct {
	Calls atomic.Int64
	// Fail, when set, makes every call return this error.
	Fail error
}

// Chat returns a canned response shaped like the real model contract.
func (m *MockChat) Chat(_ context.Context, _, user string) (string, error) {
	m.Calls.Add(1)
	if m.Fail != nil {
		return "", m.Fail
	}
	sum := sha256.Sum256([]byte(user))
	return fmt.Sprintf("<gist>mock gist %x</gist>\nMock summary for prompt %x.", sum[:4], sum[:4]), nil
}

// MockEmbeddings is a deterministic EmbeddingsClient for tests. Each text
// maps to the same vector every time, so idempotence is observable.
type MockEmbeddings struct {
	Dims  int
	Calls atomic.Int64
}

// Embed derives a stable pseudo-vector from each text's hash.
func (m *MockEmbeddings) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.Calls.Add(1)
	dims := m.Dims
	if dims == 0 {
		dims = 8
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		vec := make([]float32, dims)
		for j := range vec {
			bits := binary.LittleEndian.Uint32(sum[(j*4)%28:])
			vec[j] = float32(bits%1000) / 1000.0
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured vector size.
func (m *MockEmbeddings) Dimensions() int {
	if m.Dims == 0 {
		return 8
	}
	return m.Dims
}

// Model returns a fixed identifier.
func (m *MockEmbeddings) Model() string { return "mock-embeddings" }
