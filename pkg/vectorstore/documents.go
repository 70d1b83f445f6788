// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// Document is one embedded chunk going into a collection.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

// StoredDocument is a document returned from a metadata scan.
type StoredDocument struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding,omitempty"`
}

func validateDocuments(docs []Document) error {
	if len(docs) == 0 {
		return cgerrors.New(cgerrors.CodeInvalidParameters, "document batch must not be empty")
	}
	for i, doc := range docs {
		if doc.ID == "" {
			return cgerrors.Newf(cgerrors.CodeInvalidParameters, "document %d has empty id", i)
		}
		if len(doc.Embedding) == 0 {
			return cgerrors.Newf(cgerrors.CodeInvalidParameters, "document %q has empty embedding", doc.ID)
		}
	}
	return nil
}

// documentsPayload shapes a batch into the store's columnar form.
func documentsPayload(docs []Document) map[string]any {
	ids := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	metadatas := make([]map[string]any, len(docs))
	contents := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		embeddings[i] = doc.Embedding
		metadatas[i] = sanitizeMetadata(doc.Metadata)
		contents[i] = doc.Content
	}
	return map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"metadatas":  metadatas,
		"documents":  contents,
	}
}

// sanitizeMetadata stringifies anything that is not a primitive scalar,
// since the store only accepts flat primitive metadata.
func sanitizeMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[k] = v
		case nil:
			continue
		default:
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// AddDocuments batch-inserts documents. The whole batch is validated up
// front; a malformed document fails the call before anything is sent.
func (c *Client) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	return c.writeDocuments(ctx, collection, docs, "add")
}

// UpsertDocuments batch-inserts or updates documents by id. Idempotent.
func (c *Client) UpsertDocuments(ctx context.Context, collection string, docs []Document) error {
	return c.writeDocuments(ctx, collection, docs, "upsert")
}

func (c *Client) writeDocuments(ctx context.Context, collection string, docs []Document, op string) error {
	if err := validateDocuments(docs); err != nil {
		return err
	}
	if err := c.requireConnected(); err != nil {
		return err
	}
	col, err := c.lookupCollection(ctx, collection)
	if err != nil {
		return err
	}

	path := apiBase + "/collections/" + url.PathEscape(col.ID) + "/" + op
	if err := c.doJSON(ctx, http.MethodPost, path, documentsPayload(docs), nil); err != nil {
		return cgerrors.Wrap(cgerrors.CodeDocumentOperation,
			fmt.Sprintf("%s %d documents to %q", op, len(docs), collection), err)
	}
	c.logger.Debug("vectorstore.documents.write", "collection", collection, "op", op, "count", len(docs))
	return nil
}

// DeleteDocuments removes documents by id. Deleting ids that do not
// exist is a no-op; an empty id list is a no-op without a round trip.
func (c *Client) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.requireConnected(); err != nil {
		return err
	}
	col, err := c.lookupCollection(ctx, collection)
	if err != nil {
		return err
	}

	path := apiBase + "/collections/" + url.PathEscape(col.ID) + "/delete"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"ids": ids}, nil); err != nil {
		return cgerrors.Wrap(cgerrors.CodeDocumentOperation,
			fmt.Sprintf("delete %d documents from %q", len(ids), collection), err)
	}
	return nil
}

// GetDocumentsByMetadata scans a collection with an equality filter.
// An empty where clause is rejected; unfiltered scans are never wanted
// at this layer.
func (c *Client) GetDocumentsByMetadata(ctx context.Context, collection string, where map[string]any, includeEmbeddings bool) ([]StoredDocument, error) {
	if len(where) == 0 {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "metadata filter must not be empty")
	}
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	col, err := c.lookupCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	include := []string{"metadatas", "documents"}
	if includeEmbeddings {
		include = append(include, "embeddings")
	}

	var resp struct {
		IDs        []string         `json:"ids"`
		Documents  []string         `json:"documents"`
		Metadatas  []map[string]any `json:"metadatas"`
		Embeddings [][]float32      `json:"embeddings"`
	}
	path := apiBase + "/collections/" + url.PathEscape(col.ID) + "/get"
	err = c.doJSON(ctx, http.MethodPost, path, map[string]any{
		"where":   buildWhere(where),
		"include": include,
	}, &resp)
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.CodeDocumentOperation,
			fmt.Sprintf("get documents from %q", collection), err)
	}

	docs := make([]StoredDocument, len(resp.IDs))
	for i, id := range resp.IDs {
		docs[i] = StoredDocument{ID: id}
		if i < len(resp.Documents) {
			docs[i].Content = resp.Documents[i]
		}
		if i < len(resp.Metadatas) {
			docs[i].Metadata = resp.Metadatas[i]
		}
		if includeEmbeddings && i < len(resp.Embeddings) {
			docs[i].Embedding = resp.Embeddings[i]
		}
	}
	return docs, nil
}

// DeleteDocumentsByFilePrefix removes every chunk of one file in one
// repository, returning how many documents were deleted.
func (c *Client) DeleteDocumentsByFilePrefix(ctx context.Context, collection, repository, filePath string) (int, error) {
	if repository == "" || filePath == "" {
		return 0, cgerrors.New(cgerrors.CodeInvalidParameters, "repository and file path must not be empty")
	}

	docs, err := c.GetDocumentsByMetadata(ctx, collection, map[string]any{
		"repository": repository,
		"file_path":  filePath,
	}, false)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	if err := c.DeleteDocuments(ctx, collection, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// buildWhere shapes an equality filter into the store's where syntax.
// A single condition stays flat; multiple conditions combine with $and.
func buildWhere(where map[string]any) map[string]any {
	if len(where) == 1 {
		return where
	}
	conditions := make([]map[string]any, 0, len(where))
	for k, v := range where {
		conditions = append(conditions, map[string]any{k: v})
	}
	return map[string]any{"$and": conditions}
}
