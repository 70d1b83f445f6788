// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

func TestDeterministicIDs(t *testing.T) {
	assert.Equal(t, "Repository:acme", RepositoryID("acme"))
	assert.Equal(t, "File:acme:src/app.ts", FileID("acme", "src/app.ts"))
	assert.Equal(t, "File:acme:src/app.ts", FileID("acme", "./src/app.ts"))
	assert.Equal(t, "File:acme:src/app.ts", FileID("acme", "src//app.ts"))
	assert.Equal(t, "Function:acme:src/app.ts:main:10", FunctionID("acme", "src/app.ts", "main", 10))
	assert.Equal(t, "Class:acme:src/app.ts:App", TypeID(LabelClass, "acme", "src/app.ts", "App"))
	assert.Equal(t, "Module:lodash", ModuleID("lodash"))
}

func TestIDStabilityAcrossCalls(t *testing.T) {
	a := FunctionID("repo", "a/b.ts", "fn", 5)
	b := FunctionID("repo", "./a/b.ts", "fn", 5)
	assert.Equal(t, a, b)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"src/app.ts", "src/app.ts"},
		{"./src/app.ts", "src/app.ts"},
		{"/src/app.ts", "src/app.ts"},
		{"src/../lib/x.ts", "lib/x.ts"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, defaultTraverseDepth, clamp(0, defaultTraverseDepth, MaxTraverseDepth))
	assert.Equal(t, defaultTraverseDepth, clamp(-1, defaultTraverseDepth, MaxTraverseDepth))
	assert.Equal(t, 2, clamp(2, defaultTraverseDepth, MaxTraverseDepth))
	assert.Equal(t, MaxTraverseDepth, clamp(99, defaultTraverseDepth, MaxTraverseDepth))
	assert.Equal(t, MaxTraverseLimit, clamp(5000, defaultTraverseLimit, MaxTraverseLimit))
}

func TestImpactScore(t *testing.T) {
	assert.Equal(t, 0.0, impactScore(0))
	assert.InDelta(t, 0.05, impactScore(5), 1e-9)
	assert.Equal(t, 1.0, impactScore(100))
	assert.Equal(t, 1.0, impactScore(250))
}

func TestConvertValueFlattensNode(t *testing.T) {
	node := dbtype.Node{
		ElementId: "el-1",
		Labels:    []string{"File"},
		Props: map[string]any{
			"id":   "File:acme:src/app.ts",
			"path": "src/app.ts",
			"size": int64(1024),
		},
	}
	got, ok := convertValue(node).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "File:acme:src/app.ts", got["id"])
	assert.Equal(t, []string{"File"}, got["labels"])
	assert.Equal(t, int64(1024), got["size"])
}

func TestConvertValueNodeWithoutIDFallsBackToElementID(t *testing.T) {
	node := dbtype.Node{ElementId: "el-7", Labels: []string{"Module"}, Props: map[string]any{}}
	got := convertValue(node).(map[string]any)
	assert.Equal(t, "el-7", got["id"])
}

func TestConvertValueFlattensRelationship(t *testing.T) {
	rel := dbtype.Relationship{
		ElementId:      "rel-1",
		StartElementId: "el-1",
		EndElementId:   "el-2",
		Type:           "IMPORTS",
		Props:          map[string]any{"line": int64(3)},
	}
	got, ok := convertValue(rel).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rel-1", got["id"])
	assert.Equal(t, "IMPORTS", got["type"])
	assert.Equal(t, "el-1", got["fromNodeId"])
	assert.Equal(t, "el-2", got["toNodeId"])
	assert.Equal(t, map[string]any{"line": int64(3)}, got["properties"])
}

func TestConvertValueRecursesLists(t *testing.T) {
	node := dbtype.Node{ElementId: "el-1", Labels: []string{"File"}, Props: map[string]any{"id": "f1"}}
	got := convertValue([]any{node, int64(2)}).([]any)
	require.Len(t, got, 2)
	assert.Equal(t, "f1", got[0].(map[string]any)["id"])
	assert.Equal(t, int64(2), got[1])
}

func TestSanitizeProps(t *testing.T) {
	now := time.Now()
	out := sanitizeProps(map[string]any{
		"name":    "app",
		"lines":   int64(42),
		"ratio":   0.5,
		"flags":   []string{"a", "b"},
		"when":    now,
		"nothing": nil,
		"nested":  map[string]any{"x": 1},
	})
	assert.Equal(t, "app", out["name"])
	assert.Equal(t, int64(42), out["lines"])
	assert.Equal(t, now, out["when"])
	assert.NotContains(t, out, "nothing")
	// Nested values are stringified, not dropped.
	assert.Equal(t, "map[x:1]", out["nested"])
}

func TestCollectSubgraphDeduplicatesAndCaps(t *testing.T) {
	n1 := map[string]any{"id": "a"}
	n2 := map[string]any{"id": "b"}
	r1 := map[string]any{"id": "r1", "type": "CALLS"}
	rows := []map[string]any{
		{"nodes": []any{n1, n2, n1}, "relationships": []any{r1, r1}},
		{"nodes": []any{n2}, "relationships": []any{}},
	}

	sub := collectSubgraph(rows, 10)
	assert.Len(t, sub.Nodes, 2)
	assert.Len(t, sub.Relationships, 1)

	capped := collectSubgraph(rows, 1)
	assert.Len(t, capped.Nodes, 1)
	assert.Equal(t, "a", capped.Nodes[0]["id"])
}

func TestTraverseRejectsInvalidRelationshipType(t *testing.T) {
	c := NewClient(Config{URI: "neo4j://localhost:7687"}, nil)
	_, err := c.Traverse(context.Background(), TraverseInput{
		Start:         NodeRef{Type: "File", Identifier: "src/app.ts"},
		Relationships: []string{"IMPORTS", "MATCH (n) DETACH DELETE n"},
	})
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeValidation, cgerrors.CodeOf(err))
}

func TestAnalyzeDependenciesRejectsUnknownDirection(t *testing.T) {
	c := NewClient(Config{URI: "neo4j://localhost:7687"}, nil)
	_, err := c.AnalyzeDependencies(context.Background(), DependencyInput{
		Target:    NodeRef{Type: "File", Identifier: "src/app.ts", Repository: "acme"},
		Direction: "sideways",
	})
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))
}

func TestGetContextRejectsUnknownKind(t *testing.T) {
	c := NewClient(Config{URI: "neo4j://localhost:7687"}, nil)
	_, err := c.GetContext(context.Background(), ContextInput{
		Seeds:   []NodeRef{{Type: "Function", Identifier: "main"}},
		Include: []string{"imports", "vibes"},
	})
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))
}

func TestGetContextRequiresSeeds(t *testing.T) {
	c := NewClient(Config{URI: "neo4j://localhost:7687"}, nil)
	_, err := c.GetContext(context.Background(), ContextInput{Include: []string{"imports"}})
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))
}

func TestUpsertFileChunksRejectsEmptyChromaID(t *testing.T) {
	c := NewClient(Config{URI: "neo4j://localhost:7687"}, nil)
	err := c.UpsertFileChunks(context.Background(), "acme", "src/app.ts", []ChunkRef{
		{ChromaID: "acme:src/app.ts:0", ChunkIndex: 0},
		{ChromaID: "", ChunkIndex: 1},
	})
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))
}

func TestOperationsFailWhenNotConnected(t *testing.T) {
	c := NewClient(Config{URI: "neo4j://localhost:7687"}, nil)
	_, err := c.RunQuery(context.Background(), "RETURN 1", nil)
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeConnection, cgerrors.CodeOf(err))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URI: "neo4j://localhost:7687"}.withDefaults()
	assert.Equal(t, 50, cfg.MaxConnectionPoolSize)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
}

func TestNodeRefValidate(t *testing.T) {
	assert.NoError(t, NodeRef{Type: "File", Identifier: "src/app.ts"}.validate())
	assert.Error(t, NodeRef{Type: "File"}.validate())
	assert.Error(t, NodeRef{Type: "File; DROP", Identifier: "x"}.validate())
}
