// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package vectorstore is the client for the chunk vector index, backed
// by a Chroma-compatible HTTP API.
//
// Collections are created with cosine distance and results are reported
// as similarities in [0, 1]. Collection handles are cached per client;
// a handle is only a name-to-id binding, so the cache never goes stale
// in a way that matters for correctness.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/pkg/retry"
)

const apiBase = "/api/v1"

// Config holds connection settings for the vector store.
type Config struct {
	// BaseURL of the store, e.g. "http://localhost:8000".
	BaseURL string

	// RequestTimeout bounds each HTTP call (default 60s).
	RequestTimeout time.Duration

	// Retry controls backoff for transient failures.
	Retry retry.Config
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialDelay == 0 {
		c.Retry = retry.DefaultConfig()
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Collection is a cached handle binding a collection name to its
// server-side id.
type Collection struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// Client talks to the vector store. Safe for concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Client

	mu          sync.RWMutex
	collections map[string]*Collection
	connected   bool
}

// NewClient creates an unconnected client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Client{
		cfg:         cfg,
		logger:      logger,
		http:        &http.Client{Timeout: cfg.RequestTimeout},
		collections: make(map[string]*Collection),
	}
}

// Connect verifies the store is reachable and marks the client ready.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.heartbeat(ctx); err != nil {
		return cgerrors.Wrap(cgerrors.CodeConnection, "connect to vector store", err)
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("vectorstore.connect", "url", c.cfg.BaseURL)
	return nil
}

// HealthCheck verifies the store still answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.heartbeat(ctx); err != nil {
		return cgerrors.Wrap(cgerrors.CodeHealthCheck, "vector store health check", err)
	}
	return nil
}

// Disconnect drops the handle cache. The underlying HTTP client keeps
// no persistent connection state worth tearing down.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.collections = make(map[string]*Collection)
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) heartbeat(ctx context.Context) error {
	var out map[string]any
	return c.doJSON(ctx, http.MethodGet, apiBase+"/heartbeat", nil, &out)
}

func (c *Client) requireConnected() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return cgerrors.New(cgerrors.CodeConnection, "vector store not connected")
	}
	return nil
}

// httpError is a non-2xx response, kept so retry classification can see
// the status code.
type httpError struct {
	Status int
	Body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("vector store returned status %d: %s", e.Status, e.Body)
}

// doJSON performs one request with retry on transient failures,
// decoding a JSON response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return cgerrors.Wrap(cgerrors.CodeInvalidParameters, "encode request", err)
		}
	}

	cfg := c.cfg.Retry
	cfg.ShouldRetry = retryableHTTP

	return retry.Do(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
		if err != nil {
			return cgerrors.Wrap(cgerrors.CodeConnection, "build request", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return cgerrors.Wrap(cgerrors.CodeConnection, "vector store request", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return cgerrors.Wrap(cgerrors.CodeConnection, "read response", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &httpError{Status: resp.StatusCode, Body: truncate(string(data), 512)}
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return cgerrors.Wrap(cgerrors.CodeCollectionOperation, "decode response", err)
			}
		}
		return nil
	}, cfg)
}

// retryableHTTP retries connection-level failures and gateway-class
// status codes. 4xx responses are contract errors and never retried.
func retryableHTTP(err error) bool {
	if cgerrors.HasCode(err, cgerrors.CodeConnection) {
		return true
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.Status == http.StatusTooManyRequests || he.Status >= 500
	}
	return cgerrors.IsTransient(err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
