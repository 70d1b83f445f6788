// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/pkg/retry"
)

// fakeStore is a minimal in-memory Chroma-compatible server.
type fakeStore struct {
	mu          chan struct{}
	collections map[string]*fakeCollection
	failCounts  map[string]bool
}

type fakeCollection struct {
	id       string
	metadata map[string]any
	docs     map[string]fakeDoc
}

type fakeDoc struct {
	content   string
	embedding []float32
	metadata  map[string]any
}

func newFakeStore() *fakeStore {
	fs := &fakeStore{
		mu:          make(chan struct{}, 1),
		collections: map[string]*fakeCollection{},
		failCounts:  map[string]bool{},
	}
	fs.mu <- struct{}{}
	return fs
}

func (fs *fakeStore) lock() func() {
	<-fs.mu
	return func() { fs.mu <- struct{}{} }
}

func (fs *fakeStore) byID(id string) *fakeCollection {
	for _, col := range fs.collections {
		if col.id == id {
			return col
		}
	}
	return nil
}

func (fs *fakeStore) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"nanosecond heartbeat": 1})
	})

	mux.HandleFunc("POST /api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		defer fs.lock()()
		var req struct {
			Name     string         `json:"name"`
			Metadata map[string]any `json:"metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		col, ok := fs.collections[req.Name]
		if !ok {
			col = &fakeCollection{id: "id-" + req.Name, metadata: req.Metadata, docs: map[string]fakeDoc{}}
			fs.collections[req.Name] = col
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": col.id, "name": req.Name, "metadata": col.metadata})
	})

	mux.HandleFunc("GET /api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		defer fs.lock()()
		out := []map[string]any{}
		for name, col := range fs.collections {
			out = append(out, map[string]any{"id": col.id, "name": name, "metadata": col.metadata})
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("GET /api/v1/collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		defer fs.lock()()
		name := r.PathValue("name")
		col, ok := fs.collections[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": col.id, "name": name, "metadata": col.metadata})
	})

	mux.HandleFunc("GET /api/v1/collections/{id}/count", func(w http.ResponseWriter, r *http.Request) {
		defer fs.lock()()
		if fs.failCounts[r.PathValue("id")] {
			http.Error(w, "count unavailable", http.StatusInternalServerError)
			return
		}
		col := fs.byID(r.PathValue("id"))
		if col == nil {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(len(col.docs))
	})

	mux.HandleFunc("DELETE /api/v1/collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		defer fs.lock()()
		name := r.PathValue("name")
		if _, ok := fs.collections[name]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(fs.collections, name)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /api/v1/collections/{id}/{op}", func(w http.ResponseWriter, r *http.Request) {
		defer fs.lock()()
		col := fs.byID(r.PathValue("id"))
		if col == nil {
			http.NotFound(w, r)
			return
		}
		switch r.PathValue("op") {
		case "add", "upsert":
			var req struct {
				IDs        []string         `json:"ids"`
				Embeddings [][]float32      `json:"embeddings"`
				Metadatas  []map[string]any `json:"metadatas"`
				Documents  []string         `json:"documents"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			for i, id := range req.IDs {
				col.docs[id] = fakeDoc{content: req.Documents[i], embedding: req.Embeddings[i], metadata: req.Metadatas[i]}
			}
			w.WriteHeader(http.StatusCreated)
		case "delete":
			var req struct {
				IDs []string `json:"ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			for _, id := range req.IDs {
				delete(col.docs, id)
			}
			w.WriteHeader(http.StatusOK)
		case "get":
			var req struct {
				Where map[string]any `json:"where"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			ids := []string{}
			contents := []string{}
			metadatas := []map[string]any{}
			for id, doc := range col.docs {
				if matchWhere(doc.metadata, req.Where) {
					ids = append(ids, id)
					contents = append(contents, doc.content)
					metadatas = append(metadatas, doc.metadata)
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"ids": ids, "documents": contents, "metadatas": metadatas})
		case "query":
			var req struct {
				NResults int `json:"n_results"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			ids := []string{}
			distances := []float64{}
			contents := []string{}
			metadatas := []map[string]any{}
			for id, doc := range col.docs {
				ids = append(ids, id)
				// Distance stored in metadata by the test, default 0.
				d, _ := doc.metadata["test_distance"].(float64)
				distances = append(distances, d)
				contents = append(contents, doc.content)
				metadatas = append(metadatas, doc.metadata)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ids":       [][]string{ids},
				"distances": [][]float64{distances},
				"documents": [][]string{contents},
				"metadatas": [][]map[string]any{metadatas},
			})
		default:
			http.NotFound(w, r)
		}
	})

	return mux
}

func matchWhere(meta, where map[string]any) bool {
	if and, ok := where["$and"].([]any); ok {
		for _, cond := range and {
			m, _ := cond.(map[string]any)
			if !matchWhere(meta, m) {
				return false
			}
		}
		return true
	}
	for k, v := range where {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func newTestClient(t *testing.T) (*Client, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL, Retry: retry.Config{MaxRetries: 1, InitialDelay: 1}}, nil)
	require.NoError(t, client.Connect(context.Background()))
	return client, fs
}

func TestConnectAndHealthCheck(t *testing.T) {
	client, _ := newTestClient(t)
	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	client := NewClient(Config{
		BaseURL: "http://127.0.0.1:1",
		Retry:   retry.Config{MaxRetries: 1, InitialDelay: 1},
	}, nil)
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeConnection, cgerrors.CodeOf(err))
}

func TestGetOrCreateCollectionIsIdempotentAndCached(t *testing.T) {
	client, fs := newTestClient(t)
	ctx := context.Background()

	col1, err := client.GetOrCreateCollection(ctx, "repo_acme")
	require.NoError(t, err)
	col2, err := client.GetOrCreateCollection(ctx, "repo_acme")
	require.NoError(t, err)
	assert.Equal(t, col1.ID, col2.ID)
	assert.Len(t, fs.collections, 1)
	assert.Equal(t, "cosine", fs.collections["repo_acme"].metadata["hnsw:space"])
}

func TestGetOrCreateCollectionRejectsNonCosine(t *testing.T) {
	client, fs := newTestClient(t)
	done := fs.lock()
	fs.collections["weird"] = &fakeCollection{
		id:       "id-weird",
		metadata: map[string]any{"hnsw:space": "l2"},
		docs:     map[string]fakeDoc{},
	}
	done()

	_, err := client.GetOrCreateCollection(context.Background(), "weird")
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeCollectionOperation, cgerrors.CodeOf(err))
}

func TestDeleteCollection(t *testing.T) {
	client, fs := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetOrCreateCollection(ctx, "repo_acme")
	require.NoError(t, err)
	require.NoError(t, client.DeleteCollection(ctx, "repo_acme"))
	assert.Empty(t, fs.collections)

	err = client.DeleteCollection(ctx, "repo_acme")
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeCollectionNotFound, cgerrors.CodeOf(err))
}

func TestAddAndListDocuments(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetOrCreateCollection(ctx, "repo_acme")
	require.NoError(t, err)

	docs := []Document{
		{ID: "acme:src/a.ts:0", Content: "func a", Embedding: []float32{0.1, 0.2},
			Metadata: map[string]any{"repository": "acme", "file_path": "src/a.ts"}},
		{ID: "acme:src/a.ts:1", Content: "func b", Embedding: []float32{0.3, 0.4},
			Metadata: map[string]any{"repository": "acme", "file_path": "src/a.ts"}},
	}
	require.NoError(t, client.AddDocuments(ctx, "repo_acme", docs))

	infos, err := client.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "repo_acme", infos[0].Name)
	assert.Equal(t, 2, infos[0].Count)
}

func TestListCollectionsSkipsFailingCounts(t *testing.T) {
	client, fs := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetOrCreateCollection(ctx, "repo_ok")
	require.NoError(t, err)
	_, err = client.GetOrCreateCollection(ctx, "repo_broken")
	require.NoError(t, err)

	done := fs.lock()
	fs.failCounts["id-repo_broken"] = true
	done()

	infos, err := client.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "repo_ok", infos[0].Name)
}

func TestAddDocumentsValidation(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	err := client.AddDocuments(ctx, "repo_acme", nil)
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))

	err = client.AddDocuments(ctx, "repo_acme", []Document{{ID: "", Embedding: []float32{1}}})
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))

	err = client.AddDocuments(ctx, "repo_acme", []Document{{ID: "x"}})
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))
}

func TestDeleteDocumentsEmptyIsNoop(t *testing.T) {
	client, _ := newTestClient(t)
	// No collection exists; an empty batch must not even hit the server.
	assert.NoError(t, client.DeleteDocuments(context.Background(), "missing", nil))
}

func TestDeleteDocumentsMissingCollection(t *testing.T) {
	client, _ := newTestClient(t)
	err := client.DeleteDocuments(context.Background(), "missing", []string{"x"})
	require.Error(t, err)
	assert.Equal(t, cgerrors.CodeCollectionNotFound, cgerrors.CodeOf(err))
}

func TestGetDocumentsByMetadata(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetOrCreateCollection(ctx, "repo_acme")
	require.NoError(t, err)
	require.NoError(t, client.UpsertDocuments(ctx, "repo_acme", []Document{
		{ID: "acme:a.ts:0", Content: "a", Embedding: []float32{1},
			Metadata: map[string]any{"repository": "acme", "file_path": "a.ts"}},
		{ID: "acme:b.ts:0", Content: "b", Embedding: []float32{1},
			Metadata: map[string]any{"repository": "acme", "file_path": "b.ts"}},
	}))

	docs, err := client.GetDocumentsByMetadata(ctx, "repo_acme", map[string]any{"file_path": "a.ts"}, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "acme:a.ts:0", docs[0].ID)

	_, err = client.GetDocumentsByMetadata(ctx, "repo_acme", map[string]any{}, false)
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))
}

func TestDeleteDocumentsByFilePrefix(t *testing.T) {
	client, fs := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetOrCreateCollection(ctx, "repo_acme")
	require.NoError(t, err)
	require.NoError(t, client.UpsertDocuments(ctx, "repo_acme", []Document{
		{ID: "acme:a.ts:0", Embedding: []float32{1}, Metadata: map[string]any{"repository": "acme", "file_path": "a.ts"}},
		{ID: "acme:a.ts:1", Embedding: []float32{1}, Metadata: map[string]any{"repository": "acme", "file_path": "a.ts"}},
		{ID: "acme:b.ts:0", Embedding: []float32{1}, Metadata: map[string]any{"repository": "acme", "file_path": "b.ts"}},
	}))

	count, err := client.DeleteDocumentsByFilePrefix(ctx, "repo_acme", "acme", "a.ts")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, fs.collections["repo_acme"].docs, 1)

	// Deleting again finds nothing; still not an error.
	count, err = client.DeleteDocumentsByFilePrefix(ctx, "repo_acme", "acme", "a.ts")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSimilaritySearchFiltersSortsAndTruncates(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetOrCreateCollection(ctx, "repo_acme")
	require.NoError(t, err)
	require.NoError(t, client.UpsertDocuments(ctx, "repo_acme", []Document{
		{ID: "close", Embedding: []float32{1}, Metadata: map[string]any{"test_distance": 0.2}},   // s = 0.9
		{ID: "mid", Embedding: []float32{1}, Metadata: map[string]any{"test_distance": 0.8}},     // s = 0.6
		{ID: "far", Embedding: []float32{1}, Metadata: map[string]any{"test_distance": 1.8}},     // s = 0.1
	}))

	results, err := client.SimilaritySearch(ctx, SearchInput{
		Embedding:   []float32{0.5},
		Collections: []string{"repo_acme"},
		Limit:       10,
		Threshold:   0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].ID)
	assert.InDelta(t, 0.9, results[0].Similarity, 1e-9)
	assert.Equal(t, "mid", results[1].ID)

	limited, err := client.SimilaritySearch(ctx, SearchInput{
		Embedding:   []float32{0.5},
		Collections: []string{"repo_acme"},
		Limit:       1,
		Threshold:   0,
	})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "close", limited[0].ID)
}

func TestSimilaritySearchSkipsMissingCollections(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetOrCreateCollection(ctx, "repo_acme")
	require.NoError(t, err)
	require.NoError(t, client.UpsertDocuments(ctx, "repo_acme", []Document{
		{ID: "doc", Embedding: []float32{1}, Metadata: map[string]any{"test_distance": 0.0}},
	}))

	results, err := client.SimilaritySearch(ctx, SearchInput{
		Embedding:   []float32{0.5},
		Collections: []string{"ghost", "repo_acme"},
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc", results[0].ID)
}

func TestSimilaritySearchValidation(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.SimilaritySearch(ctx, SearchInput{Collections: []string{"x"}, Limit: 1})
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))

	_, err = client.SimilaritySearch(ctx, SearchInput{Embedding: []float32{1}, Limit: 1})
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))

	_, err = client.SimilaritySearch(ctx, SearchInput{Embedding: []float32{1}, Collections: []string{"x"}, Limit: 0})
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))

	_, err = client.SimilaritySearch(ctx, SearchInput{Embedding: []float32{1}, Collections: []string{"x"}, Limit: 1, Threshold: 1.5})
	assert.Equal(t, cgerrors.CodeInvalidParameters, cgerrors.CodeOf(err))
}

func TestDistanceToSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, distanceToSimilarity(0))
	assert.Equal(t, 0.5, distanceToSimilarity(1))
	assert.Equal(t, 0.0, distanceToSimilarity(2))
	// Out-of-range distances clamp instead of producing invalid scores.
	assert.Equal(t, 1.0, distanceToSimilarity(-0.1))
	assert.Equal(t, 0.0, distanceToSimilarity(2.5))
}

func TestSanitizeMetadataStringifiesNonScalars(t *testing.T) {
	out := sanitizeMetadata(map[string]any{
		"name":  "a",
		"count": 3,
		"list":  []string{"x", "y"},
		"skip":  nil,
	})
	assert.Equal(t, "a", out["name"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, "[x y]", out["list"])
	assert.NotContains(t, out, "skip")
}

func TestBuildWhere(t *testing.T) {
	flat := buildWhere(map[string]any{"repository": "acme"})
	assert.Equal(t, map[string]any{"repository": "acme"}, flat)

	combined := buildWhere(map[string]any{"repository": "acme", "file_path": "a.ts"})
	and, ok := combined["$and"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, and, 2)
}

func TestChunkMetadataToMap(t *testing.T) {
	meta := ChunkMetadata{
		FilePath:    "src/a.ts",
		Repository:  "acme",
		ChunkIndex:  1,
		TotalChunks: 3,
		ContentHash: "abc",
	}
	m := meta.ToMap()
	assert.Equal(t, "src/a.ts", m["file_path"])
	assert.Equal(t, 1, m["chunk_index"])
	assert.Len(t, m, 11)
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "acme:src/a.ts:2", DocumentID("acme", "src/a.ts", 2))
}
