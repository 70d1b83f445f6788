// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package graphstore is the typed client for the code-knowledge graph
// backed by Neo4j.
//
// All user-supplied labels and relationship type names are validated
// against the safe-identifier pattern before being composed into Cypher;
// every other value travels as a bound parameter. Node ids are
// deterministic, derived from identifying attributes, so MERGE-based
// writes stay idempotent across re-ingestion.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/pkg/retry"
)

// Config holds connection settings for the graph store.
type Config struct {
	// URI is the bolt/neo4j connection URI, e.g. "neo4j://localhost:7687".
	URI string

	// Username and Password authenticate against the store.
	Username string
	Password string

	// Database selects the target database. Empty uses the server default.
	Database string

	// MaxConnectionPoolSize bounds the shared connection pool (default 50).
	MaxConnectionPoolSize int

	// QueryTimeout bounds each individual query (default 30s).
	QueryTimeout time.Duration

	// Retry controls backoff for transient failures.
	Retry retry.Config
}

func (c Config) withDefaults() Config {
	if c.MaxConnectionPoolSize <= 0 {
		c.MaxConnectionPoolSize = 50
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialDelay == 0 {
		c.Retry = retry.DefaultConfig()
	}
	return c
}

// Client talks to the graph store. Safe for concurrent use; writes for a
// given repository are expected to be serialized by the caller.
type Client struct {
	cfg    Config
	logger *slog.Logger
	driver neo4j.DriverWithContext

	apocOnce      sync.Once
	apocAvailable bool
}

// NewClient creates an unconnected client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg.withDefaults(), logger: logger}
}

// Connect establishes the driver and verifies connectivity.
func (c *Client) Connect(ctx context.Context) error {
	driver, err := neo4j.NewDriverWithContext(
		c.cfg.URI,
		neo4j.BasicAuth(c.cfg.Username, c.cfg.Password, ""),
		func(conf *config.Config) {
			conf.MaxConnectionPoolSize = c.cfg.MaxConnectionPoolSize
		},
	)
	if err != nil {
		return cgerrors.Wrap(cgerrors.CodeConnection, "create graph driver", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return cgerrors.Wrap(cgerrors.CodeConnection, "verify graph connectivity", err)
	}

	c.driver = driver
	c.logger.Info("graphstore.connect", "uri", c.cfg.URI, "pool_size", c.cfg.MaxConnectionPoolSize)
	return nil
}

// Close releases the driver and its pool.
func (c *Client) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	if err != nil {
		return cgerrors.Wrap(cgerrors.CodeConnection, "close graph driver", err)
	}
	return nil
}

// HealthCheck runs a trivial query to verify the store answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.Read(ctx, "RETURN 1 AS ok", nil); err != nil {
		return cgerrors.Wrap(cgerrors.CodeHealthCheck, "graph store health check", err)
	}
	return nil
}

// RunQuery executes a parameterized query and converts every row into a
// language-neutral map: nodes are flattened to {id, labels, ...props},
// relationships to {id, type, fromNodeId, toNodeId, properties}.
// Integers stay int64 end-to-end; conversion to JSON-safe numbers is the
// caller's concern at the external boundary.
func (c *Client) RunQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	records, err := c.Read(ctx, query, params)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(rec.Keys))
		for i, key := range rec.Keys {
			row[key] = convertValue(rec.Values[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Read runs a query in a read session with retry on transient failures.
func (c *Client) Read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	return c.run(ctx, neo4j.AccessModeRead, query, params)
}

// Write runs a query in a write session with retry on transient failures.
func (c *Client) Write(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	return c.run(ctx, neo4j.AccessModeWrite, query, params)
}

func (c *Client) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any) ([]*neo4j.Record, error) {
	if c.driver == nil {
		return nil, cgerrors.New(cgerrors.CodeConnection, "graph store not connected")
	}

	return retry.DoValue(ctx, func(ctx context.Context) ([]*neo4j.Record, error) {
		qctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()

		session := c.driver.NewSession(qctx, neo4j.SessionConfig{
			AccessMode:   mode,
			DatabaseName: c.cfg.Database,
		})
		defer func() { _ = session.Close(qctx) }()

		result, err := session.Run(qctx, query, params)
		if err != nil {
			return nil, classifyGraphErr(qctx, err)
		}
		records, err := result.Collect(qctx)
		if err != nil {
			return nil, classifyGraphErr(qctx, err)
		}
		return records, nil
	}, c.cfg.Retry)
}

// classifyGraphErr maps driver errors to typed codes. Deadline errors
// become TIMEOUT_ERROR so the retry harness treats them as transient.
func classifyGraphErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return cgerrors.Wrap(cgerrors.CodeTimeout, "graph query timed out", err)
	}
	if neo4j.IsConnectivityError(err) {
		return cgerrors.Wrap(cgerrors.CodeConnection, "graph store unreachable", err)
	}
	return cgerrors.Wrap(cgerrors.CodeGraph, "graph query failed", err)
}

// supportsAPOC probes once for the APOC path-expansion procedures and
// caches the answer for the process lifetime.
func (c *Client) supportsAPOC(ctx context.Context) bool {
	c.apocOnce.Do(func() {
		_, err := c.Read(ctx, "RETURN apoc.version() AS version", nil)
		c.apocAvailable = err == nil
		if err != nil {
			c.logger.Info("graphstore.apoc.unavailable", "fallback", "path_pattern")
		}
	})
	return c.apocAvailable
}

// convertValue maps driver values into plain Go values.
func convertValue(v any) any {
	switch val := v.(type) {
	case dbtype.Node:
		return flattenNode(val)
	case dbtype.Relationship:
		return flattenRelationship(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = convertValue(item)
		}
		return out
	default:
		return v
	}
}

func flattenNode(n dbtype.Node) map[string]any {
	out := make(map[string]any, len(n.Props)+2)
	for k, v := range n.Props {
		out[k] = convertValue(v)
	}
	if _, ok := out["id"]; !ok {
		out["id"] = n.ElementId
	}
	out["labels"] = append([]string(nil), n.Labels...)
	return out
}

func flattenRelationship(r dbtype.Relationship) map[string]any {
	props := make(map[string]any, len(r.Props))
	for k, v := range r.Props {
		props[k] = convertValue(v)
	}
	return map[string]any{
		"id":         r.ElementId,
		"type":       r.Type,
		"fromNodeId": r.StartElementId,
		"toNodeId":   r.EndElementId,
		"properties": props,
	}
}

// sanitizeProps drops nil values and stringifies anything that is not a
// primitive scalar or a homogeneous primitive slice, since the store
// rejects nested property values.
func sanitizeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64,
			[]string, []int, []int64, []float64, []bool, []any,
			time.Time:
			out[k] = v
		default:
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
