// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// SearchInput is a similarity query fanned out across collections.
type SearchInput struct {
	Embedding   []float32
	Collections []string
	Limit       int
	Threshold   float64
}

// SearchResult is one matching chunk with its cosine similarity.
type SearchResult struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
	Collection string         `json:"collection"`
}

// SimilaritySearch queries each collection with the embedding, merges
// the hits, and returns the top results by similarity. Collections the
// server does not know are skipped with a warning rather than failing
// the whole search.
func (c *Client) SimilaritySearch(ctx context.Context, in SearchInput) ([]SearchResult, error) {
	if len(in.Embedding) == 0 {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "search embedding must not be empty")
	}
	if len(in.Collections) == 0 {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "search requires at least one collection")
	}
	if in.Limit < 1 {
		return nil, cgerrors.Newf(cgerrors.CodeInvalidParameters, "search limit must be >= 1, got %d", in.Limit)
	}
	if in.Threshold < 0 || in.Threshold > 1 {
		return nil, cgerrors.Newf(cgerrors.CodeInvalidParameters, "search threshold must be in [0, 1], got %g", in.Threshold)
	}
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	var merged []SearchResult
	for _, name := range in.Collections {
		results, err := c.searchCollection(ctx, name, in)
		if err != nil {
			if cgerrors.HasCode(err, cgerrors.CodeCollectionNotFound) {
				c.logger.Warn("vectorstore.search.collection_missing", "collection", name)
				continue
			}
			return nil, err
		}
		merged = append(merged, results...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > in.Limit {
		merged = merged[:in.Limit]
	}
	return merged, nil
}

func (c *Client) searchCollection(ctx context.Context, name string, in SearchInput) ([]SearchResult, error) {
	col, err := c.lookupCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	var resp struct {
		IDs       [][]string         `json:"ids"`
		Distances [][]float64        `json:"distances"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
	}
	path := apiBase + "/collections/" + url.PathEscape(col.ID) + "/query"
	err = c.doJSON(ctx, http.MethodPost, path, map[string]any{
		"query_embeddings": [][]float32{in.Embedding},
		"n_results":        in.Limit,
		"include":          []string{"metadatas", "documents", "distances"},
	}, &resp)
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.CodeSearchOperation,
			fmt.Sprintf("query collection %q", name), err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	ids := resp.IDs[0]
	results := make([]SearchResult, 0, len(ids))
	for i, id := range ids {
		var distance float64
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			distance = resp.Distances[0][i]
		}
		similarity := distanceToSimilarity(distance)
		if similarity < in.Threshold {
			continue
		}
		result := SearchResult{ID: id, Similarity: similarity, Collection: name}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			result.Content = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			result.Metadata = resp.Metadatas[0][i]
		}
		results = append(results, result)
	}
	return results, nil
}

// distanceToSimilarity maps a raw cosine distance in [0, 2] onto a
// similarity in [0, 1], clamping values that drift out of range.
func distanceToSimilarity(distance float64) float64 {
	s := 1 - distance/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
