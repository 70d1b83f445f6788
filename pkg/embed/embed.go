// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package embed generates embedding vectors for code chunks.
//
// Providers return L2-normalized vectors so that cosine distance in the
// vector store behaves as expected regardless of backend.
package embed

import (
	"context"
	"log/slog"
	"math"
	"os"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// Provider generates embeddings for text.
type Provider interface {
	// Name identifies the provider for metadata and logging.
	Name() string

	// Embed returns a normalized vector (L2 norm = 1.0) for the text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CreateProvider builds a provider by type name, configured from the
// environment the same way across all commands.
func CreateProvider(providerType string, logger *slog.Logger) (Provider, error) {
	switch providerType {
	case "mock", "":
		return NewMockProvider(384, logger), nil

	case "ollama":
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := os.Getenv("OLLAMA_EMBED_MODEL")
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaProvider(baseURL, model, logger), nil

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, cgerrors.New(cgerrors.CodeInvalidParameters,
				"OPENAI_API_KEY environment variable is required for openai provider")
		}
		baseURL := os.Getenv("OPENAI_API_BASE")
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := os.Getenv("OPENAI_EMBED_MODEL")
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIProvider(apiKey, baseURL, model, logger), nil

	default:
		return nil, cgerrors.Newf(cgerrors.CodeInvalidParameters,
			"unknown embedding provider %q (supported: mock, ollama, openai)", providerType)
	}
}

// MockProvider generates deterministic embeddings for tests and dry
// runs. Not semantically meaningful.
type MockProvider struct {
	dimension int
	logger    *slog.Logger
}

// NewMockProvider creates a mock provider with the given dimension.
func NewMockProvider(dimension int, logger *slog.Logger) *MockProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockProvider{dimension: dimension, logger: logger}
}

func (m *MockProvider) Name() string { return "mock" }

// Embed derives a pseudo-random unit vector from the text hash.
func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := hashString(text)
	embedding := make([]float32, m.dimension)
	for i := 0; i < m.dimension; i++ {
		val := float32((hash+uint64(i)*7919)%10000) / 10000.0
		embedding[i] = val*2.0 - 1.0
	}
	return normalize(embedding), nil
}

func hashString(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	return hash
}

// normalize scales a vector to unit length. Zero vectors pass through.
func normalize(v []float32) []float32 {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
