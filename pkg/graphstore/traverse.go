// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/codegraph/internal/contract"
)

// Traversal bounds. Depth and limit above these are clamped, not
// rejected, so callers can ask for "as much as allowed".
const (
	MaxTraverseDepth = 5
	MaxTraverseLimit = 1000

	defaultTraverseDepth = 3
	defaultTraverseLimit = 100
)

// TraverseInput describes a bounded subgraph expansion from one node.
type TraverseInput struct {
	Start         NodeRef
	Relationships []string
	Depth         int
	Limit         int
}

// Subgraph is the result of a traversal: deduplicated nodes and edges
// in their flattened dictionary form.
type Subgraph struct {
	Nodes         []map[string]any `json:"nodes"`
	Relationships []map[string]any `json:"relationships"`
}

// Traverse expands the subgraph rooted at the start node following the
// given relationship types up to the clamped depth. Uses the APOC
// path-expansion procedure when the server has it, otherwise a
// variable-length path pattern with the same semantics.
func (c *Client) Traverse(ctx context.Context, in TraverseInput) (*Subgraph, error) {
	if err := contract.CheckRelationshipTypes(in.Relationships); err != nil {
		return nil, err
	}

	depth := clamp(in.Depth, defaultTraverseDepth, MaxTraverseDepth)
	limit := clamp(in.Limit, defaultTraverseLimit, MaxTraverseLimit)

	startID, err := c.resolveRef(ctx, in.Start)
	if err != nil {
		return nil, err
	}

	relFilter := strings.Join(in.Relationships, "|")
	if relFilter == "" {
		relFilter = strings.Join([]string{RelContains, RelDefines, RelImports, RelCalls, RelReferences}, "|")
	}

	var rows []map[string]any
	if c.supportsAPOC(ctx) {
		rows, err = c.traverseAPOC(ctx, startID, relFilter, depth, limit)
	} else {
		rows, err = c.traversePattern(ctx, startID, relFilter, depth, limit)
	}
	if err != nil {
		return nil, err
	}

	sub := collectSubgraph(rows, limit)
	c.logger.Debug("graphstore.traverse.complete",
		"start", startID, "depth", depth,
		"nodes", len(sub.Nodes), "relationships", len(sub.Relationships))
	return sub, nil
}

func (c *Client) traverseAPOC(ctx context.Context, startID, relFilter string, depth, limit int) ([]map[string]any, error) {
	query := `
MATCH (start {id: $id})
CALL apoc.path.subgraphAll(start, {relationshipFilter: $relFilter, maxLevel: $depth, limit: $limit})
YIELD nodes, relationships
RETURN nodes, relationships`
	return c.RunQuery(ctx, query, map[string]any{
		"id":        startID,
		"relFilter": relFilter,
		"depth":     depth,
		"limit":     limit,
	})
}

// traversePattern is the no-APOC fallback. The relationship filter and
// depth are validated identifiers and a bounded integer, composed into
// the pattern because neither may be a bound parameter.
func (c *Client) traversePattern(ctx context.Context, startID, relFilter string, depth, limit int) ([]map[string]any, error) {
	query := fmt.Sprintf(`
MATCH (start {id: $id})
OPTIONAL MATCH path = (start)-[:%s*1..%d]-(other)
WITH start, collect(path) AS paths
RETURN [start] + reduce(ns = [], p IN paths | ns + nodes(p)) AS nodes,
       reduce(rs = [], p IN paths | rs + relationships(p)) AS relationships`,
		relFilter, depth)
	return c.RunQuery(ctx, query, map[string]any{"id": startID, "limit": limit})
}

// collectSubgraph flattens query rows of {nodes, relationships} lists
// into a deduplicated subgraph capped at limit nodes.
func collectSubgraph(rows []map[string]any, limit int) *Subgraph {
	sub := &Subgraph{
		Nodes:         []map[string]any{},
		Relationships: []map[string]any{},
	}
	seenNodes := map[string]bool{}
	seenRels := map[string]bool{}

	for _, row := range rows {
		for _, v := range asList(row["nodes"]) {
			node, ok := v.(map[string]any)
			if !ok {
				continue
			}
			id, _ := node["id"].(string)
			if id == "" || seenNodes[id] || len(sub.Nodes) >= limit {
				continue
			}
			seenNodes[id] = true
			sub.Nodes = append(sub.Nodes, node)
		}
		for _, v := range asList(row["relationships"]) {
			rel, ok := v.(map[string]any)
			if !ok {
				continue
			}
			id, _ := rel["id"].(string)
			if id == "" || seenRels[id] {
				continue
			}
			seenRels[id] = true
			sub.Relationships = append(sub.Relationships, rel)
		}
	}
	return sub
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
