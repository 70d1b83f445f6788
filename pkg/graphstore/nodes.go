// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graphstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kraklabs/codegraph/internal/contract"
	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// Node labels for the code-knowledge graph.
const (
	LabelRepository = "Repository"
	LabelFile       = "File"
	LabelFunction   = "Function"
	LabelClass      = "Class"
	LabelInterface  = "Interface"
	LabelTypeAlias  = "TypeAlias"
	LabelEnum       = "Enum"
	LabelModule     = "Module"
	LabelChunk      = "Chunk"
)

// Relationship types.
const (
	RelContains   = "CONTAINS"
	RelDefines    = "DEFINES"
	RelImports    = "IMPORTS"
	RelCalls      = "CALLS"
	RelReferences = "REFERENCES"
	RelHasChunk   = "HAS_CHUNK"
)

// EntityLabels are the labels a File can DEFINE.
var EntityLabels = []string{LabelFunction, LabelClass, LabelInterface, LabelTypeAlias, LabelEnum}

// normalizePath normalizes a file path for consistent id generation:
// forward slashes, no leading ./ or /.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "./") {
		path = path[2:]
	}
	path = filepath.ToSlash(filepath.Clean(path))
	return strings.TrimPrefix(path, "/")
}

// Deterministic node ids. Identical identifying attributes always yield
// the same id, which is what makes MERGE-based re-ingestion idempotent.

// RepositoryID returns the id for a repository node.
func RepositoryID(name string) string {
	return "Repository:" + name
}

// FileID returns the id for a file node.
func FileID(repository, path string) string {
	return fmt.Sprintf("File:%s:%s", repository, normalizePath(path))
}

// FunctionID returns the id for a function node.
func FunctionID(repository, filePath, name string, lineStart int) string {
	return fmt.Sprintf("Function:%s:%s:%s:%d", repository, normalizePath(filePath), name, lineStart)
}

// TypeID returns the id for a class/interface/enum/type-alias node.
func TypeID(label, repository, filePath, name string) string {
	return fmt.Sprintf("%s:%s:%s:%s", label, repository, normalizePath(filePath), name)
}

// ModuleID returns the id for an external-package marker node.
func ModuleID(name string) string {
	return "Module:" + name
}

// Relationship is an edge as a flat tuple. Edges are never materialized
// as an in-memory object graph; the underlying graph is cyclic.
type Relationship struct {
	FromID string
	ToID   string
	Type   string
	Props  map[string]any
}

// UpsertNode creates or updates a node by deterministic id. Running it
// twice with identical inputs yields exactly one node.
func (c *Client) UpsertNode(ctx context.Context, label, id string, props map[string]any) error {
	if err := contract.CheckLabel(label); err != nil {
		return err
	}
	if id == "" {
		return cgerrors.New(cgerrors.CodeInvalidParameters, "node id must not be empty")
	}

	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", label)
	_, err := c.Write(ctx, query, map[string]any{
		"id":    id,
		"props": sanitizeProps(props),
	})
	return err
}

// DeleteNode removes a node and its incident edges (DETACH DELETE).
// Returns NODE_NOT_FOUND when no node with the id exists.
func (c *Client) DeleteNode(ctx context.Context, label, id string) error {
	if err := contract.CheckLabel(label); err != nil {
		return err
	}

	query := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n RETURN count(n) AS deleted", label)
	records, err := c.Write(ctx, query, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if len(records) > 0 {
		if deleted, ok := records[0].Values[0].(int64); ok && deleted == 0 {
			return cgerrors.Newf(cgerrors.CodeNodeNotFound, "node %s:%s not found", label, id)
		}
	}
	return nil
}

// CreateRelationship merges a typed edge between two existing nodes.
// Returns NODE_NOT_FOUND when either endpoint is missing.
func (c *Client) CreateRelationship(ctx context.Context, rel Relationship) error {
	if err := contract.CheckRelationshipType(rel.Type); err != nil {
		return err
	}

	query := fmt.Sprintf(
		"MATCH (a {id: $fromId}) MATCH (b {id: $toId}) MERGE (a)-[r:%s]->(b) SET r += $props RETURN count(r) AS created",
		rel.Type,
	)
	records, err := c.Write(ctx, query, map[string]any{
		"fromId": rel.FromID,
		"toId":   rel.ToID,
		"props":  sanitizeProps(rel.Props),
	})
	if err != nil {
		return err
	}
	if len(records) > 0 {
		if created, ok := records[0].Values[0].(int64); ok && created == 0 {
			return cgerrors.Newf(cgerrors.CodeNodeNotFound,
				"relationship endpoints missing: %s -> %s", rel.FromID, rel.ToID)
		}
	}
	return nil
}

// DeleteRelationship removes the typed edge between two nodes.
// Deleting a non-existent edge is a no-op.
func (c *Client) DeleteRelationship(ctx context.Context, fromID, toID, relType string) error {
	if err := contract.CheckRelationshipType(relType); err != nil {
		return err
	}

	query := fmt.Sprintf("MATCH (a {id: $fromId})-[r:%s]->(b {id: $toId}) DELETE r", relType)
	_, err := c.Write(ctx, query, map[string]any{"fromId": fromID, "toId": toID})
	return err
}

// BatchUpsertNodes writes a batch of same-label nodes in one query.
// Each row is {id, props}.
func (c *Client) BatchUpsertNodes(ctx context.Context, label string, rows []NodeRow) error {
	if err := contract.CheckLabel(label); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	params := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			return cgerrors.Newf(cgerrors.CodeInvalidParameters, "%s node with empty id in batch", label)
		}
		params = append(params, map[string]any{
			"id":    row.ID,
			"props": sanitizeProps(row.Props),
		})
	}

	query := fmt.Sprintf("UNWIND $rows AS row MERGE (n:%s {id: row.id}) SET n += row.props", label)
	_, err := c.Write(ctx, query, map[string]any{"rows": params})
	return err
}

// NodeRow is one node in a batch write.
type NodeRow struct {
	ID    string
	Props map[string]any
}

// BatchCreateRelationships writes a batch of same-type edges in one
// query. Rows whose endpoints are missing are silently skipped by the
// MATCH, mirroring per-file error isolation in the pipeline.
func (c *Client) BatchCreateRelationships(ctx context.Context, relType string, rels []Relationship) error {
	if err := contract.CheckRelationshipType(relType); err != nil {
		return err
	}
	if len(rels) == 0 {
		return nil
	}

	params := make([]map[string]any, 0, len(rels))
	for _, rel := range rels {
		params = append(params, map[string]any{
			"fromId": rel.FromID,
			"toId":   rel.ToID,
			"props":  sanitizeProps(rel.Props),
		})
	}

	query := fmt.Sprintf(
		"UNWIND $rows AS row MATCH (a {id: row.fromId}) MATCH (b {id: row.toId}) MERGE (a)-[r:%s]->(b) SET r += row.props",
		relType,
	)
	_, err := c.Write(ctx, query, map[string]any{"rows": params})
	return err
}

// DeleteRepositoryCascade removes a repository and everything it owns:
// files via CONTAINS, entities via DEFINES, chunks via HAS_CHUNK, and
// any module markers left without importers afterwards.
func (c *Client) DeleteRepositoryCascade(ctx context.Context, name string) error {
	query := `
MATCH (r:Repository {name: $name})
OPTIONAL MATCH (r)-[:CONTAINS]->(f:File)
OPTIONAL MATCH (f)-[:DEFINES]->(e)
OPTIONAL MATCH (f)-[:HAS_CHUNK]->(ch:Chunk)
DETACH DELETE r, f, e, ch`
	if _, err := c.Write(ctx, query, map[string]any{"name": name}); err != nil {
		return err
	}

	// Module markers are shared across repositories; sweep only the ones
	// nothing imports anymore.
	sweep := `MATCH (m:Module) WHERE NOT ()-[:IMPORTS]->(m) DELETE m`
	if _, err := c.Write(ctx, sweep, nil); err != nil {
		return err
	}

	c.logger.Info("graphstore.repository.cascade_delete", "repository", name)
	return nil
}

// DeleteFileCascade removes a file node, the entities it defines, and
// its chunks (DETACH DELETE). Used by incremental updates; the file is
// observed either in its prior-complete or post-complete state.
func (c *Client) DeleteFileCascade(ctx context.Context, repository, path string) error {
	query := `
MATCH (f:File {id: $id})
OPTIONAL MATCH (f)-[:DEFINES]->(e)
OPTIONAL MATCH (f)-[:HAS_CHUNK]->(ch:Chunk)
DETACH DELETE f, e, ch`
	_, err := c.Write(ctx, query, map[string]any{"id": FileID(repository, path)})
	return err
}

// ChunkRef identifies one vector-store document to mirror as a Chunk
// node.
type ChunkRef struct {
	ChromaID    string
	ChunkIndex  int
	ContentHash string
}

// UpsertFileChunks replaces a file's Chunk nodes so the graph mirrors
// the vector store: chunks of the file whose chromaId is not in the new
// set are removed, the rest are merged by chromaId and owned by the
// file through HAS_CHUNK. An empty set clears the file's chunks.
func (c *Client) UpsertFileChunks(ctx context.Context, repository, path string, chunks []ChunkRef) error {
	fileID := FileID(repository, path)

	ids := make([]string, 0, len(chunks))
	rows := make([]map[string]any, 0, len(chunks))
	for _, ch := range chunks {
		if ch.ChromaID == "" {
			return cgerrors.Newf(cgerrors.CodeInvalidParameters,
				"chunk with empty chromaId for file %s", path)
		}
		ids = append(ids, ch.ChromaID)
		rows = append(rows, map[string]any{
			"chromaId": ch.ChromaID,
			"props": map[string]any{
				"id":          ch.ChromaID,
				"chromaId":    ch.ChromaID,
				"repository":  repository,
				"filePath":    normalizePath(path),
				"chunkIndex":  ch.ChunkIndex,
				"contentHash": ch.ContentHash,
			},
		})
	}

	prune := `
MATCH (f:File {id: $fileId})-[:HAS_CHUNK]->(ch:Chunk)
WHERE NOT ch.chromaId IN $ids
DETACH DELETE ch`
	if _, err := c.Write(ctx, prune, map[string]any{"fileId": fileID, "ids": ids}); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	merge := `
MATCH (f:File {id: $fileId})
UNWIND $rows AS row
MERGE (ch:Chunk {chromaId: row.chromaId})
SET ch += row.props
MERGE (f)-[:HAS_CHUNK]->(ch)`
	_, err := c.Write(ctx, merge, map[string]any{"fileId": fileID, "rows": rows})
	return err
}

// RepositoryExists reports whether a repository node with the name is
// already present.
func (c *Client) RepositoryExists(ctx context.Context, name string) (bool, error) {
	records, err := c.Read(ctx,
		"MATCH (r:Repository {name: $name}) RETURN count(r) AS n",
		map[string]any{"name": name})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	n, _ := records[0].Values[0].(int64)
	return n > 0, nil
}

// CountNodes returns the number of nodes carrying the given label for a
// repository. Used by verification after ingestion.
func (c *Client) CountNodes(ctx context.Context, label, repository string) (int64, error) {
	if err := contract.CheckLabel(label); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("MATCH (n:%s {repository: $repository}) RETURN count(n) AS n", label)
	records, err := c.Read(ctx, query, map[string]any{"repository": repository})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	n, _ := records[0].Values[0].(int64)
	return n, nil
}
