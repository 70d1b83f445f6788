// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package coordinator keeps the vector store and graph store consistent
// with the git state of indexed repositories.
//
// It holds no durable state of its own: everything it knows is read
// from and written through the metadata store. Within a process,
// updates to the same repository serialize on a per-name mutex; across
// processes the metadata updateInProgress flag is the guard, with a
// staleness threshold so a crashed updater does not wedge the
// repository forever.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/pkg/chunk"
	"github.com/kraklabs/codegraph/pkg/embed"
	"github.com/kraklabs/codegraph/pkg/graphstore"
	"github.com/kraklabs/codegraph/pkg/metastore"
	"github.com/kraklabs/codegraph/pkg/pipeline"
	"github.com/kraklabs/codegraph/pkg/vectorstore"
)

// Update statuses.
const (
	StatusSuccess   = "success"
	StatusNoChanges = "no_changes"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// VectorWriter is the slice of the vector store the coordinator needs.
type VectorWriter interface {
	GetOrCreateCollection(ctx context.Context, name string) (*vectorstore.Collection, error)
	UpsertDocuments(ctx context.Context, collection string, docs []vectorstore.Document) error
	DeleteDocumentsByFilePrefix(ctx context.Context, collection, repository, filePath string) (int, error)
}

// GraphWriter is the slice of the graph side the coordinator needs:
// per-file subgraph replacement, per-file cascade deletion, and the
// Chunk-node mirror of the vector store's documents.
type GraphWriter interface {
	IngestFile(ctx context.Context, repository string, file pipeline.FileInput) (*pipeline.Stats, error)
	DeleteFileCascade(ctx context.Context, repository, path string) error
	SyncFileChunks(ctx context.Context, repository, path string, chunks []graphstore.ChunkRef) error
}

// Config tunes the coordinator.
type Config struct {
	// StaleThreshold after which a lingering updateInProgress flag is
	// treated as a crashed updater and taken over (default 2h).
	StaleThreshold time.Duration

	// HistoryLimit caps updateHistory length (default 50).
	HistoryLimit int

	// Chunking controls how changed files are split for embedding.
	Chunking chunk.Options
}

func (c Config) withDefaults() Config {
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 2 * time.Hour
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	return c
}

// UpdateResult is the terminal outcome of one repository update.
type UpdateResult struct {
	Repository           string   `json:"repository"`
	Status               string   `json:"status"`
	PreviousCommit       string   `json:"previousCommit,omitempty"`
	NewCommit            string   `json:"newCommit,omitempty"`
	FilesAdded           int      `json:"filesAdded"`
	FilesModified        int      `json:"filesModified"`
	FilesDeleted         int      `json:"filesDeleted"`
	ChunksUpserted       int      `json:"chunksUpserted"`
	ChunksDeleted        int      `json:"chunksDeleted"`
	NodesCreated         int      `json:"nodesCreated"`
	RelationshipsCreated int      `json:"relationshipsCreated"`
	DurationMs           int64    `json:"durationMs"`
	Errors               []string `json:"errors,omitempty"`
}

// UpdateAllResult summarizes a batch run over every ready repository.
type UpdateAllResult struct {
	Total    int            `json:"total"`
	Updated  int            `json:"updated"`
	UpToDate int            `json:"current"`
	Failed   int            `json:"failed"`
	Results  []UpdateResult `json:"results"`
}

// Coordinator orchestrates incremental updates across the vector store,
// graph store, and metadata store.
type Coordinator struct {
	meta     *metastore.Store
	vectors  VectorWriter
	graph    GraphWriter
	embedder embed.Provider
	cfg      Config
	logger   *slog.Logger

	// newDelta builds the delta source for a working copy; swapped in
	// tests.
	newDelta func(repoPath string) DeltaSource

	lockMu    sync.Mutex
	repoLocks map[string]*sync.Mutex
}

// New creates a coordinator.
func New(meta *metastore.Store, vectors VectorWriter, graph GraphWriter, embedder embed.Provider, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		meta:      meta,
		vectors:   vectors,
		graph:     graph,
		embedder:  embedder,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		repoLocks: map[string]*sync.Mutex{},
	}
	c.newDelta = func(repoPath string) DeltaSource {
		return NewGitDeltaSource(repoPath, logger)
	}
	return c
}

// repoLock returns the in-process mutex serializing writes for one
// repository name.
func (c *Coordinator) repoLock(name string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	mu, ok := c.repoLocks[name]
	if !ok {
		mu = &sync.Mutex{}
		c.repoLocks[name] = mu
	}
	return mu
}

// UpdateRepository brings one repository's indexes up to its current
// HEAD. Per-file failures are collected, not fatal; the updateInProgress
// flag is cleared on every terminal path.
func (c *Coordinator) UpdateRepository(ctx context.Context, name string) (*UpdateResult, error) {
	mu := c.repoLock(name)
	mu.Lock()
	defer mu.Unlock()

	started := time.Now()

	info, err := c.meta.GetRepository(name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, cgerrors.Newf(cgerrors.CodeRepositoryMetadata, "repository %q is not indexed", name)
	}
	if err := c.claimUpdate(info); err != nil {
		return nil, err
	}

	result := &UpdateResult{Repository: name, PreviousCommit: info.LastIndexedCommitSha}
	defer func() {
		result.DurationMs = time.Since(started).Milliseconds()
		c.releaseUpdate(name, result)
		recordUpdate(result.Status, time.Since(started).Seconds())
	}()

	source := c.newDelta(info.LocalPath)
	if !source.IsGitRepository(ctx) {
		result.Status = StatusFailed
		result.Errors = append(result.Errors, fmt.Sprintf("%s is not a git repository", info.LocalPath))
		return result, cgerrors.Newf(cgerrors.CodeFileOperation, "%s is not a git repository", info.LocalPath)
	}

	head, err := source.HeadSHA(ctx)
	if err != nil {
		result.Status = StatusFailed
		result.Errors = append(result.Errors, err.Error())
		return result, err
	}
	result.NewCommit = head

	if head == info.LastIndexedCommitSha {
		result.Status = StatusNoChanges
		c.logger.Info("coordinator.update.no_changes", "repository", name, "head_sha", shortSHA(head))
		return result, nil
	}

	delta, err := source.Diff(ctx, info.LastIndexedCommitSha, head)
	if err != nil {
		result.Status = StatusFailed
		result.Errors = append(result.Errors, err.Error())
		return result, err
	}

	collection := info.CollectionName
	if collection == "" {
		collection = metastore.SanitizeCollectionName(name)
	}
	if _, err := c.vectors.GetOrCreateCollection(ctx, collection); err != nil {
		result.Status = StatusFailed
		result.Errors = append(result.Errors, err.Error())
		return result, err
	}

	c.applyDeletes(ctx, info, collection, delta.Deleted, result)
	c.applyUpserts(ctx, info, collection, append(delta.Added, delta.Modified...), delta, result)

	attempted := len(delta.Added) + len(delta.Modified) + len(delta.Deleted)
	processed := result.FilesAdded + result.FilesModified + result.FilesDeleted
	switch {
	case len(result.Errors) == 0:
		result.Status = StatusSuccess
	case processed == 0 && attempted > 0:
		result.Status = StatusFailed
	default:
		result.Status = StatusPartial
	}

	c.logger.Info("coordinator.update.complete",
		"repository", name,
		"status", result.Status,
		"files_added", result.FilesAdded,
		"files_modified", result.FilesModified,
		"files_deleted", result.FilesDeleted,
		"chunks_upserted", result.ChunksUpserted,
		"chunks_deleted", result.ChunksDeleted,
		"errors", len(result.Errors),
	)
	return result, nil
}

// claimUpdate marks the repository as updating, rejecting concurrent
// updaters unless their flag is stale.
func (c *Coordinator) claimUpdate(info *metastore.RepositoryInfo) error {
	if info.Status == metastore.StatusIndexing {
		return cgerrors.Newf(cgerrors.CodeValidation,
			"repository %q is being indexed", info.Name)
	}
	if info.UpdateInProgress {
		startedAt, err := time.Parse(time.RFC3339, info.UpdateStartedAt)
		if err == nil && time.Since(startedAt) < c.cfg.StaleThreshold {
			return cgerrors.Newf(cgerrors.CodeValidation,
				"repository %q has an update in progress since %s", info.Name, info.UpdateStartedAt)
		}
		c.logger.Warn("coordinator.update.stale_takeover",
			"repository", info.Name, "update_started_at", info.UpdateStartedAt)
	}

	info.UpdateInProgress = true
	info.UpdateStartedAt = time.Now().UTC().Format(time.RFC3339)
	return c.meta.UpdateRepository(*info)
}

// releaseUpdate records the terminal outcome and always clears the
// in-progress flag. The commit sha advances only on non-failed runs.
func (c *Coordinator) releaseUpdate(name string, result *UpdateResult) {
	info, err := c.meta.GetRepository(name)
	if err != nil || info == nil {
		c.logger.Warn("coordinator.update.release_failed", "repository", name, "error", err)
		return
	}

	info.UpdateInProgress = false
	info.UpdateStartedAt = ""

	if result.Status != StatusNoChanges {
		entry := metastore.UpdateRecord{
			Timestamp:            time.Now().UTC().Format(time.RFC3339),
			PreviousCommit:       result.PreviousCommit,
			NewCommit:            result.NewCommit,
			FilesAdded:           result.FilesAdded,
			FilesModified:        result.FilesModified,
			FilesDeleted:         result.FilesDeleted,
			ChunksUpserted:       result.ChunksUpserted,
			ChunksDeleted:        result.ChunksDeleted,
			DurationMs:           result.DurationMs,
			ErrorCount:           len(result.Errors),
			Status:               result.Status,
			NodesCreated:         result.NodesCreated,
			RelationshipsCreated: result.RelationshipsCreated,
		}
		info.UpdateHistory = append([]metastore.UpdateRecord{entry}, info.UpdateHistory...)
		if len(info.UpdateHistory) > c.cfg.HistoryLimit {
			info.UpdateHistory = info.UpdateHistory[:c.cfg.HistoryLimit]
		}
		info.IncrementalUpdateCount++
		info.LastIncrementalUpdateAt = entry.Timestamp

		if result.Status != StatusFailed {
			info.LastIndexedCommitSha = result.NewCommit
			info.LastIndexedAt = entry.Timestamp
			info.FileCount += result.FilesAdded - result.FilesDeleted
			info.ChunkCount += result.ChunksUpserted - result.ChunksDeleted
			if info.FileCount < 0 {
				info.FileCount = 0
			}
			if info.ChunkCount < 0 {
				info.ChunkCount = 0
			}
		}
	}

	if err := c.meta.UpdateRepository(*info); err != nil {
		c.logger.Warn("coordinator.update.release_failed", "repository", name, "error", err)
	}
}

// applyDeletes removes vector chunks and graph subgraphs for deleted
// files. Both stores are attempted for every file; a failure in either
// records the file as failed.
func (c *Coordinator) applyDeletes(ctx context.Context, info *metastore.RepositoryInfo, collection string, deleted []string, result *UpdateResult) {
	for _, p := range deleted {
		if !c.shouldIndex(info, p) {
			continue
		}

		failed := false
		n, err := c.vectors.DeleteDocumentsByFilePrefix(ctx, collection, info.Name, p)
		if err != nil {
			failed = true
			result.Errors = append(result.Errors, fmt.Sprintf("%s: delete chunks: %v", p, err))
		} else {
			result.ChunksDeleted += n
		}

		if err := c.graph.DeleteFileCascade(ctx, info.Name, p); err != nil {
			failed = true
			result.Errors = append(result.Errors, fmt.Sprintf("%s: delete graph: %v", p, err))
		}

		if failed {
			recordFileChange("deleted_failed")
			continue
		}
		result.FilesDeleted++
		recordFileChange("deleted")
	}
}

// applyUpserts re-chunks, re-embeds, and re-ingests added and modified
// files. Mutations for one file run consecutively so observers only see
// it in its prior-complete or post-complete state.
func (c *Coordinator) applyUpserts(ctx context.Context, info *metastore.RepositoryInfo, collection string, paths []string, delta *Delta, result *UpdateResult) {
	added := map[string]bool{}
	for _, p := range delta.Added {
		added[p] = true
	}

	for _, p := range paths {
		if !c.shouldIndex(info, p) {
			continue
		}

		if err := c.upsertFile(ctx, info, collection, p, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", p, err))
			recordFileChange("upsert_failed")
			continue
		}
		if added[p] {
			result.FilesAdded++
			recordFileChange("added")
		} else {
			result.FilesModified++
			recordFileChange("modified")
		}
	}
}

// upsertFile replaces one file's chunks and graph subgraph.
func (c *Coordinator) upsertFile(ctx context.Context, info *metastore.RepositoryInfo, collection, p string, result *UpdateResult) error {
	fullPath := filepath.Join(info.LocalPath, filepath.FromSlash(p))
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return cgerrors.Wrap(cgerrors.CodeFileOperation, "read file", err)
	}

	var modifiedAt time.Time
	if fi, statErr := os.Stat(fullPath); statErr == nil {
		modifiedAt = fi.ModTime()
	}

	// Old chunk ids may outnumber new ones, so delete before upsert.
	deleted, err := c.vectors.DeleteDocumentsByFilePrefix(ctx, collection, info.Name, p)
	if err != nil {
		return err
	}
	result.ChunksDeleted += deleted

	var refs []graphstore.ChunkRef
	chunks := chunk.Split(string(content), c.cfg.Chunking)
	if len(chunks) > 0 {
		embeddings := make([][]float32, len(chunks))
		for i, ch := range chunks {
			embeddings[i], err = c.embedder.Embed(ctx, ch.Content)
			if err != nil {
				return err
			}
		}

		docs := chunk.BuildDocuments(chunk.FileMeta{
			Repository: info.Name,
			Path:       p,
			SizeBytes:  int64(len(content)),
			ModifiedAt: modifiedAt,
		}, string(content), chunks, embeddings)

		if err := c.vectors.UpsertDocuments(ctx, collection, docs); err != nil {
			return err
		}
		result.ChunksUpserted += len(docs)

		contentHash := chunk.Hash(string(content))
		refs = make([]graphstore.ChunkRef, len(docs))
		for i, doc := range docs {
			refs[i] = graphstore.ChunkRef{
				ChromaID:    doc.ID,
				ChunkIndex:  chunks[i].Index,
				ContentHash: contentHash,
			}
		}
	}

	stats, err := c.graph.IngestFile(ctx, info.Name, pipeline.FileInput{
		Path:       p,
		Content:    content,
		SizeBytes:  int64(len(content)),
		ModifiedAt: modifiedAt,
	})
	if stats != nil {
		result.NodesCreated += stats.NodesCreated
		result.RelationshipsCreated += stats.RelationshipsCreated
	}
	if err != nil {
		return err
	}

	// Chunk nodes carry the vector-store document ids, so the graph and
	// the vector store describe the same chunk set after every upsert.
	return c.graph.SyncFileChunks(ctx, info.Name, p, refs)
}

// shouldIndex applies the repository's extension and exclusion filters.
func (c *Coordinator) shouldIndex(info *metastore.RepositoryInfo, p string) bool {
	normalized := filepath.ToSlash(p)
	for _, pattern := range info.ExcludePatterns {
		if matchesPattern(normalized, pattern) {
			return false
		}
	}
	if len(info.IncludeExtensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(path.Ext(normalized), ".")
	for _, allowed := range info.IncludeExtensions {
		if strings.TrimPrefix(allowed, ".") == ext {
			return true
		}
	}
	return false
}

// matchesPattern matches one exclusion pattern against a slash path.
// "dir/**" matches the whole subtree; plain patterns match the full
// path or the basename.
func matchesPattern(p, pattern string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(p))
	return ok
}

// UpdateAll updates every ready repository sequentially, continuing
// past per-repository failures.
func (c *Coordinator) UpdateAll(ctx context.Context) (*UpdateAllResult, error) {
	repos, err := c.meta.ListRepositories()
	if err != nil {
		return nil, err
	}

	summary := &UpdateAllResult{}
	for _, info := range repos {
		if info.Status != metastore.StatusReady {
			c.logger.Info("coordinator.update_all.skip", "repository", info.Name, "status", info.Status)
			continue
		}
		summary.Total++

		result, err := c.UpdateRepository(ctx, info.Name)
		if result == nil {
			result = &UpdateResult{Repository: info.Name, Status: StatusFailed}
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
			}
		}
		summary.Results = append(summary.Results, *result)

		switch result.Status {
		case StatusNoChanges:
			summary.UpToDate++
		case StatusFailed:
			summary.Failed++
		default:
			summary.Updated++
		}
	}
	return summary, nil
}
