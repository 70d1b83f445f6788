// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graphstore

import (
	"context"
	"fmt"
	"time"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// Dependency analysis directions.
const (
	DirectionDependsOn    = "dependsOn"
	DirectionDependedOnBy = "dependedOnBy"
	DirectionBoth         = "both"
)

// dependencyRels are the edge types that constitute a dependency.
const dependencyRels = RelImports + "|" + RelCalls + "|" + RelReferences

// DependencyInput describes a dependency analysis request.
type DependencyInput struct {
	Target     NodeRef
	Direction  string
	Transitive bool
	MaxDepth   int
}

// DependencyReport is the result of AnalyzeDependencies. Transitive is
// nil unless transitive analysis was requested.
type DependencyReport struct {
	Direct      []map[string]any `json:"direct"`
	Transitive  []map[string]any `json:"transitive,omitempty"`
	ImpactScore float64          `json:"impactScore"`
	Metadata    map[string]any   `json:"metadata"`
}

// AnalyzeDependencies reports what the target depends on, what depends
// on it, or both, following IMPORTS, CALLS and REFERENCES edges.
func (c *Client) AnalyzeDependencies(ctx context.Context, in DependencyInput) (*DependencyReport, error) {
	direction := in.Direction
	if direction == "" {
		direction = DirectionDependsOn
	}
	switch direction {
	case DirectionDependsOn, DirectionDependedOnBy, DirectionBoth:
	default:
		return nil, cgerrors.Newf(cgerrors.CodeInvalidParameters, "unknown dependency direction %q", direction)
	}

	depth := in.MaxDepth
	if depth <= 0 || depth > MaxTraverseDepth {
		depth = MaxTraverseDepth
	}

	targetID, err := c.resolveRef(ctx, in.Target)
	if err != nil {
		return nil, err
	}

	direct, err := c.dependencyHop(ctx, targetID, direction, 1, 1)
	if err != nil {
		return nil, err
	}

	report := &DependencyReport{
		Direct: direct,
		Metadata: map[string]any{
			"target":     targetID,
			"direction":  direction,
			"analyzedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}

	total := len(direct)
	if in.Transitive && depth > 1 {
		transitive, err := c.dependencyHop(ctx, targetID, direction, 2, depth)
		if err != nil {
			return nil, err
		}

		// Exclude the target and anything already reported as direct.
		seen := map[string]bool{targetID: true}
		for _, node := range direct {
			if id, ok := node["id"].(string); ok {
				seen[id] = true
			}
		}
		filtered := make([]map[string]any, 0, len(transitive))
		for _, node := range transitive {
			id, _ := node["id"].(string)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			filtered = append(filtered, node)
		}
		report.Transitive = filtered
		total += len(filtered)
	}

	report.ImpactScore = impactScore(total)
	return report, nil
}

// dependencyHop returns distinct nodes reachable between minHop and
// maxHop dependency edges from the target, oriented per direction.
func (c *Client) dependencyHop(ctx context.Context, targetID, direction string, minHop, maxHop int) ([]map[string]any, error) {
	var pattern string
	switch direction {
	case DirectionDependsOn:
		pattern = fmt.Sprintf("(t)-[:%s*%d..%d]->(d)", dependencyRels, minHop, maxHop)
	case DirectionDependedOnBy:
		pattern = fmt.Sprintf("(t)<-[:%s*%d..%d]-(d)", dependencyRels, minHop, maxHop)
	case DirectionBoth:
		pattern = fmt.Sprintf("(t)-[:%s*%d..%d]-(d)", dependencyRels, minHop, maxHop)
	}

	query := fmt.Sprintf(`
MATCH (t {id: $id})
MATCH %s
WHERE d.id <> $id
RETURN DISTINCT d AS node`, pattern)

	rows, err := c.RunQuery(ctx, query, map[string]any{"id": targetID})
	if err != nil {
		return nil, err
	}

	nodes := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if node, ok := row["node"].(map[string]any); ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// impactScore maps a dependency count onto [0, 1]. A hundred or more
// dependencies saturates the score.
func impactScore(total int) float64 {
	score := float64(total) / 100.0
	if score > 1 {
		return 1
	}
	return score
}
