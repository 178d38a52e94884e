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

// Package llm provides the language-model and embeddings-service clients
// used by the summarizer and the embedder. Two real providers are wired:
// any OpenAI-compatible endpoint (chat completions + embeddings) and Google
// Gemini via the genai SDK. A deterministic mock backs the tests.
package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// ChatClient is the language-model contract: one system + user exchange
// returning the raw completion text.
type ChatClient interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// EmbeddingsClient is the embeddings-service contract. Embed returns one
// vector per input text, all of Dimensions() length.
type EmbeddingsClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// ChatFromEnv builds a chat client from SUMMARIES_* environment variables.
// A base URL selects the OpenAI-compatible provider; otherwise the API key
// is treated as a Gemini key.
func ChatFromEnv() (ChatClient, error) {
	apiKey := os.Getenv("SUMMARIES_API_KEY")
	baseURL := os.Getenv("SUMMARIES_BASE_URL")
	model := os.Getenv("SUMMARIES_MODEL")

	switch {
	case baseURL != "":
		if model == "" {
			return nil, fmt.Errorf("SUMMARIES_MODEL is required with SUMMARIES_BASE_URL")
		}
		return NewOpenAIChat(baseURL, apiKey, model), nil
	case apiKey != "":
		return NewGeminiClient(apiKey, model)
	default:
		return nil, fmt.Errorf("no summaries provider configured: set SUMMARIES_API_KEY (and optionally SUMMARIES_BASE_URL)")
	}
}

// EmbeddingsFromEnv builds an embeddings client from EMBEDDINGS_* variables.
func EmbeddingsFromEnv() (EmbeddingsClient, error) {
	apiKey := os.Getenv("EMBEDDINGS_API_KEY")
	baseURL := os.Getenv("EMBEDDINGS_BASE_URL")
	model := os.Getenv("EMBEDDINGS_MODEL")

	dims := 1536
	if v := os.Getenv("EMBEDDINGS_DIMS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EMBEDDINGS_DIMS %q: %w", v, err)
		}
		dims = n
	}

	switch {
	case baseURL != "":
		if model == "" {
			return nil, fmt.Errorf("EMBEDDINGS_MODEL is required with EMBEDDINGS_BASE_URL")
		}
		return NewOpenAIEmbeddings(baseURL, apiKey, model, dims), nil
	case apiKey != "":
		return NewGeminiEmbeddings(apiKey, model)
	default:
		return nil, fmt.Errorf("no embeddings provider configured: set EMBEDDINGS_API_KEY (and optionally EMBEDDINGS_BASE_URL)")
	}
}
