// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingProvider computes vector embeddings for text. The ranker
// assumes nothing about the algorithm, only that vectors from the same
// provider are comparable by cosine similarity.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// maxEmbedLength truncates oversized inputs before embedding.
const maxEmbedLength = 8192

// OpenAIEmbedder implements EmbeddingProvider via the OpenAI
// embeddings API.
//
// # Thread Safety
//
// OpenAIEmbedder is safe for concurrent use; the underlying client
// handles connection pooling.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

var _ EmbeddingProvider = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder from environment configuration.
//
// # Description
//
// Reads OPENAI_API_KEY (falling back to the Podman secret file) and
// OPENAI_EMBEDDING_MODEL. The model defaults to text-embedding-3-small.
//
// # Outputs
//
//   - *OpenAIEmbedder: Ready to use embedder.
//   - error: Non-nil if no API key is available.
func NewOpenAIEmbedder() (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}

	model := openai.EmbeddingModel(os.Getenv("OPENAI_EMBEDDING_MODEL"))
	if model == "" {
		model = openai.SmallEmbedding3
		slog.Warn("OPENAI_EMBEDDING_MODEL not set, defaulting to text-embedding-3-small")
	}
	slog.Info("Initializing OpenAI embedder", "model", model)
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Embed computes the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxEmbedLength {
		slog.Debug("Truncating text for embedding", "originalLen", len(text), "truncatedLen", maxEmbedLength)
		text = text[:maxEmbedLength]
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		slog.Error("OpenAI embedding call failed", "error", err)
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}
