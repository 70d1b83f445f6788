// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider generates embeddings against a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaProvider creates an Ollama-backed provider.
func NewOllamaProvider(baseURL, model string, logger *slog.Logger) *OllamaProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		// Local models may be slow on first load.
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

func (o *OllamaProvider) Name() string { return "ollama/" + o.model }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed generates one embedding via the local Ollama API. Nomic models
// get the asymmetric "search_document:" prefix for retrieval quality.
func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	prompt := text
	if strings.Contains(strings.ToLower(o.model), "nomic") {
		prompt = "search_document: " + text
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request (is Ollama running at %s?): %w", o.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var embedResp ollamaEmbedResponse
	if resp.StatusCode != http.StatusOK {
		if err := json.Unmarshal(data, &embedResp); err == nil && embedResp.Error != "" {
			return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, embedResp.Error)
		}
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}

	return normalize(toFloat32(embedResp.Embedding)), nil
}

// OpenAIProvider generates embeddings via OpenAI or any API-compatible
// endpoint (Azure OpenAI, Together, vLLM, ...).
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

func (o *OpenAIProvider) Name() string { return "openai/" + o.model }

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates one embedding via the embeddings endpoint.
func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{Model: o.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var embedResp openAIEmbedResponse
	if resp.StatusCode != http.StatusOK {
		if err := json.Unmarshal(data, &embedResp); err == nil && embedResp.Error != nil {
			return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, embedResp.Error.Message)
		}
		return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Data) == 0 || len(embedResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned empty embedding")
	}

	return normalize(toFloat32(embedResp.Data[0].Embedding)), nil
}
