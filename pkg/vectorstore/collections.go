// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// CollectionInfo is one entry from ListCollections.
type CollectionInfo struct {
	Name     string         `json:"name"`
	Count    int            `json:"count"`
	Metadata map[string]any `json:"metadata"`
}

// cosineMetadata pins every collection to cosine distance. The
// similarity conversion in search assumes it.
var cosineMetadata = map[string]any{"hnsw:space": "cosine"}

// GetOrCreateCollection returns a handle for the named collection,
// creating it with cosine distance when absent. Handles are cached;
// repeated calls for the same name hit the server once.
func (c *Client) GetOrCreateCollection(ctx context.Context, name string) (*Collection, error) {
	if name == "" {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "collection name must not be empty")
	}
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	cached, ok := c.collections[name]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var col Collection
	err := c.doJSON(ctx, http.MethodPost, apiBase+"/collections", map[string]any{
		"name":          name,
		"metadata":      cosineMetadata,
		"get_or_create": true,
	}, &col)
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.CodeCollectionOperation,
			fmt.Sprintf("get or create collection %q", name), err)
	}

	// A pre-existing collection created elsewhere may carry a different
	// distance function. Cosine is a hard requirement.
	if space, ok := col.Metadata["hnsw:space"].(string); ok && space != "cosine" {
		return nil, cgerrors.Newf(cgerrors.CodeCollectionOperation,
			"collection %q uses distance %q, expected cosine", name, space)
	}

	c.mu.Lock()
	c.collections[name] = &col
	c.mu.Unlock()

	c.logger.Debug("vectorstore.collection.ready", "name", name, "id", col.ID)
	return &col, nil
}

// DeleteCollection removes a collection and drops its cached handle.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if name == "" {
		return cgerrors.New(cgerrors.CodeInvalidParameters, "collection name must not be empty")
	}
	if err := c.requireConnected(); err != nil {
		return err
	}

	err := c.doJSON(ctx, http.MethodDelete, apiBase+"/collections/"+url.PathEscape(name), nil, nil)

	c.mu.Lock()
	delete(c.collections, name)
	c.mu.Unlock()

	if err != nil {
		if isNotFound(err) {
			return cgerrors.Wrap(cgerrors.CodeCollectionNotFound,
				fmt.Sprintf("collection %q", name), err)
		}
		return cgerrors.Wrap(cgerrors.CodeCollectionDelete,
			fmt.Sprintf("delete collection %q", name), err)
	}
	c.logger.Info("vectorstore.collection.deleted", "name", name)
	return nil
}

// ListCollections returns every collection with its document count.
// A collection whose count call fails is skipped with a warning rather
// than failing the whole listing.
func (c *Client) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	var cols []Collection
	if err := c.doJSON(ctx, http.MethodGet, apiBase+"/collections", nil, &cols); err != nil {
		return nil, cgerrors.Wrap(cgerrors.CodeCollectionList, "list collections", err)
	}

	infos := make([]CollectionInfo, 0, len(cols))
	for _, col := range cols {
		count, err := c.collectionCount(ctx, col.ID)
		if err != nil {
			c.logger.Warn("vectorstore.collection.count_failed", "name", col.Name, "error", err)
			continue
		}
		infos = append(infos, CollectionInfo{Name: col.Name, Count: count, Metadata: col.Metadata})
	}
	return infos, nil
}

func (c *Client) collectionCount(ctx context.Context, id string) (int, error) {
	var count int
	err := c.doJSON(ctx, http.MethodGet, apiBase+"/collections/"+url.PathEscape(id)+"/count", nil, &count)
	return count, err
}

// lookupCollection resolves a name to a handle without creating,
// returning COLLECTION_NOT_FOUND when the server does not know it.
func (c *Client) lookupCollection(ctx context.Context, name string) (*Collection, error) {
	c.mu.RLock()
	cached, ok := c.collections[name]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var col Collection
	err := c.doJSON(ctx, http.MethodGet, apiBase+"/collections/"+url.PathEscape(name), nil, &col)
	if err != nil {
		if isNotFound(err) {
			return nil, cgerrors.Newf(cgerrors.CodeCollectionNotFound, "collection %q not found", name)
		}
		return nil, cgerrors.Wrap(cgerrors.CodeCollectionOperation,
			fmt.Sprintf("lookup collection %q", name), err)
	}

	c.mu.Lock()
	c.collections[name] = &col
	c.mu.Unlock()
	return &col, nil
}

func isNotFound(err error) bool {
	var he *httpError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}
