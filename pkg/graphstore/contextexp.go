// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graphstore

import (
	"context"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// Context kinds for GetContext.
const (
	ContextImports       = "imports"
	ContextCallers       = "callers"
	ContextCallees       = "callees"
	ContextSiblings      = "siblings"
	ContextDocumentation = "documentation"
)

// MaxContextLimit caps how many context items one request may return.
const (
	MaxContextLimit     = 100
	defaultContextLimit = 20
)

// contextRelevance is the fixed relevance assigned to any directly
// connected context node.
const contextRelevance = 0.8

// ContextInput describes a context-expansion request around seed nodes.
type ContextInput struct {
	Seeds   []NodeRef
	Include []string
	Limit   int
}

// ContextItem is one node found in the neighborhood of a seed.
type ContextItem struct {
	Node      map[string]any `json:"node"`
	Kind      string         `json:"kind"`
	Relevance float64        `json:"relevance"`
	Reason    string         `json:"reason"`
}

// contextQueries maps each kind to its batched query over $seedIds and
// the reason attached to its results. One query per requested kind,
// regardless of seed count.
var contextQueries = map[string]struct {
	query  string
	reason string
}{
	ContextImports: {
		query: `MATCH (s)-[:IMPORTS]->(n) WHERE s.id IN $seedIds AND NOT n.id IN $seedIds
RETURN DISTINCT n AS node`,
		reason: "imported by seed",
	},
	ContextCallers: {
		query: `MATCH (n)-[:CALLS]->(s) WHERE s.id IN $seedIds AND NOT n.id IN $seedIds
RETURN DISTINCT n AS node`,
		reason: "calls seed",
	},
	ContextCallees: {
		query: `MATCH (s)-[:CALLS]->(n) WHERE s.id IN $seedIds AND NOT n.id IN $seedIds
RETURN DISTINCT n AS node`,
		reason: "called by seed",
	},
	ContextSiblings: {
		query: `MATCH (p)-[:CONTAINS|DEFINES]->(s) WHERE s.id IN $seedIds
MATCH (p)-[:CONTAINS|DEFINES]->(n) WHERE NOT n.id IN $seedIds
RETURN DISTINCT n AS node`,
		reason: "shares parent with seed",
	},
	ContextDocumentation: {
		query: `MATCH (s)-[:REFERENCES]->(n:File) WHERE s.id IN $seedIds AND n.extension IN ['md', 'txt', 'rst']
RETURN DISTINCT n AS node`,
		reason: "documentation referenced by seed",
	},
}

// GetContext expands the neighborhood of the seed nodes, one batched
// query per requested kind. Results deduplicate within each kind, carry
// a fixed relevance, and are capped at the clamped limit overall.
func (c *Client) GetContext(ctx context.Context, in ContextInput) ([]ContextItem, error) {
	if len(in.Seeds) == 0 {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "context expansion requires at least one seed")
	}
	if len(in.Include) == 0 {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "context expansion requires at least one context kind")
	}
	for _, kind := range in.Include {
		if _, ok := contextQueries[kind]; !ok {
			return nil, cgerrors.Newf(cgerrors.CodeInvalidParameters, "unknown context kind %q", kind)
		}
	}

	limit := clamp(in.Limit, defaultContextLimit, MaxContextLimit)

	resolved, err := c.resolveRefs(ctx, in.Seeds)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, cgerrors.New(cgerrors.CodeNodeNotFound, "no seed nodes matched")
	}
	seedIDs := make([]string, 0, len(resolved))
	for _, id := range resolved {
		seedIDs = append(seedIDs, id)
	}

	items := make([]ContextItem, 0, limit)
	for _, kind := range in.Include {
		if len(items) >= limit {
			break
		}
		spec := contextQueries[kind]
		rows, err := c.RunQuery(ctx, spec.query, map[string]any{"seedIds": seedIDs})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if len(items) >= limit {
				break
			}
			node, ok := row["node"].(map[string]any)
			if !ok {
				continue
			}
			items = append(items, ContextItem{
				Node:      node,
				Kind:      kind,
				Relevance: contextRelevance,
				Reason:    spec.reason,
			})
		}
	}

	c.logger.Debug("graphstore.context.complete",
		"seeds", len(seedIDs), "kinds", len(in.Include), "items", len(items))
	return items, nil
}
