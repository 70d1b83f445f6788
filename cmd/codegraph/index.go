// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	"github.com/kraklabs/codegraph/internal/config"
	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/chunk"
	"github.com/kraklabs/codegraph/pkg/coordinator"
	"github.com/kraklabs/codegraph/pkg/graphstore"
	"github.com/kraklabs/codegraph/pkg/metastore"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// IndexResult is the machine-readable outcome of one index run.
type IndexResult struct {
	Repository          string         `json:"repository"`
	Status              string         `json:"status"`
	Files               int            `json:"files"`
	ChunksUpserted      int            `json:"chunksUpserted"`
	EmbeddingDimensions int            `json:"embeddingDimensions,omitempty"`
	CommitSha           string         `json:"commitSha,omitempty"`
	Graph               pipeline.Stats `json:"graph"`
	Errors              []string       `json:"errors,omitempty"`
	DurationMs          int64          `json:"durationMs"`
}

func runIndex(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	name := fs.String("repo", "", "Repository name (default: directory basename)")
	repoURL := fs.String("url", "", "Repository URL recorded in metadata")
	branch := fs.String("branch", "main", "Branch recorded in metadata")
	force := fs.Bool("force", false, "Replace the repository if it is already indexed")
	graphOnly := fs.Bool("graph-only", false, "Skip chunk embedding and vector upserts")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph index [options] [path]

Parses every indexable file under path (default ".") into the code
graph and, unless --graph-only is set, chunks and embeds file contents
into the vector store. Records the repository in the metadata store so
"codegraph update" can keep it current.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  codegraph index
  codegraph index --repo acme --force ~/src/acme
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	root := fs.Arg(0)
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		cgerrors.FatalError(cgerrors.Wrap(cgerrors.CodeFileOperation, "resolve path", err), globals.JSON)
	}
	repoName := *name
	if repoName == "" {
		repoName = filepath.Base(absRoot)
	}

	cfg := loadConfig(globals)
	ctx := context.Background()
	started := time.Now()

	app, err := bootstrap.New(cfg, nil)
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	if err := app.Connect(ctx); err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	defer app.Close(ctx)

	if !globals.Quiet {
		ui.Infof("Indexing %s as %q", absRoot, repoName)
	}

	files, err := collectFiles(absRoot, cfg.Indexing)
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	if len(files) == 0 {
		cgerrors.FatalError(cgerrors.Newf(cgerrors.CodeInvalidParameters,
			"no indexable files under %s", absRoot), globals.JSON)
	}

	progress := NewProgressConfig(globals)
	graphBar := NewProgressBar(progress, 100, "building graph")
	ingest, err := app.Pipeline.IngestFiles(ctx, files, pipeline.Options{
		Repository:    repoName,
		RepositoryURL: *repoURL,
		Branch:        *branch,
		Force:         *force,
		OnProgress: func(p pipeline.Progress) {
			if graphBar != nil {
				_ = graphBar.Set(p.Percentage)
			}
		},
	})
	if graphBar != nil {
		_ = graphBar.Finish()
	}
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	result := &IndexResult{
		Repository: repoName,
		Status:     ingest.Status,
		Files:      len(files),
		Graph:      ingest.Stats,
	}
	for _, fe := range ingest.Errors {
		result.Errors = append(result.Errors, fe.Message)
	}

	collection := metastore.SanitizeCollectionName(repoName)
	if !*graphOnly {
		n, dims, err := embedFiles(ctx, app, collection, repoName, files, progress)
		if err != nil {
			cgerrors.FatalError(err, globals.JSON)
		}
		result.ChunksUpserted = n
		result.EmbeddingDimensions = dims
	}

	// Record the commit so incremental updates have a baseline.
	delta := coordinator.NewGitDeltaSource(absRoot, nil)
	if delta.IsGitRepository(ctx) {
		if sha, err := delta.HeadSHA(ctx); err == nil {
			result.CommitSha = sha
		}
	}

	result.DurationMs = time.Since(started).Milliseconds()
	if err := recordRepository(app, cfg, absRoot, *repoURL, *branch, collection, result); err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(result); err != nil {
			cgerrors.FatalError(err, true)
		}
		return
	}

	switch result.Status {
	case "success":
		ui.Successf("Indexed %d files: %d nodes, %d relationships, %d chunks",
			result.Files, result.Graph.NodesCreated, result.Graph.RelationshipsCreated, result.ChunksUpserted)
	case "partial":
		ui.Warningf("Indexed with %d errors: %d of %d files processed",
			len(result.Errors), result.Graph.FilesProcessed, result.Files)
	default:
		ui.Errorf("Indexing failed with %d errors", len(result.Errors))
		os.Exit(1)
	}
}

// embedFiles chunks, embeds, and upserts every file into the vector
// store, mirroring each file's chunk set into the graph. Returns the
// number of chunks written and the embedding dimensionality.
func embedFiles(ctx context.Context, app *bootstrap.App, collection, repo string, files []pipeline.FileInput, progress ProgressConfig) (int, int, error) {
	if _, err := app.Vectors.GetOrCreateCollection(ctx, collection); err != nil {
		return 0, 0, err
	}

	bar := NewProgressBar(progress, int64(len(files)), "embedding chunks")
	total := 0
	dims := 0
	for _, file := range files {
		content := string(file.Content)
		chunks := chunk.Split(content, chunk.Options{
			MaxLines:     app.Config.Indexing.ChunkLines,
			OverlapLines: app.Config.Indexing.ChunkOverlap,
		})
		if len(chunks) == 0 {
			if bar != nil {
				_ = bar.Add(1)
			}
			continue
		}

		embeddings := make([][]float32, len(chunks))
		for i, ch := range chunks {
			embedding, err := app.Embedder.Embed(ctx, ch.Content)
			if err != nil {
				return total, dims, err
			}
			embeddings[i] = embedding
		}
		if dims == 0 && len(embeddings[0]) > 0 {
			dims = len(embeddings[0])
		}

		docs := chunk.BuildDocuments(chunk.FileMeta{
			Repository: repo,
			Path:       file.Path,
			SizeBytes:  file.SizeBytes,
			ModifiedAt: file.ModifiedAt,
		}, content, chunks, embeddings)

		if err := app.Vectors.UpsertDocuments(ctx, collection, docs); err != nil {
			return total, dims, err
		}

		contentHash := chunk.Hash(content)
		refs := make([]graphstore.ChunkRef, len(docs))
		for i, doc := range docs {
			refs[i] = graphstore.ChunkRef{
				ChromaID:    doc.ID,
				ChunkIndex:  chunks[i].Index,
				ContentHash: contentHash,
			}
		}
		if err := app.Graph.UpsertFileChunks(ctx, repo, file.Path, refs); err != nil {
			return total, dims, err
		}

		total += len(docs)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return total, dims, nil
}

// recordRepository persists the repository entry so update and status
// can find it.
func recordRepository(app *bootstrap.App, cfg *config.Config, localPath, repoURL, branch, collection string, result *IndexResult) error {
	status := metastore.StatusReady
	errorMessage := ""
	if result.Status == "failed" {
		status = metastore.StatusError
		if len(result.Errors) > 0 {
			errorMessage = result.Errors[0]
		}
	}

	return app.Meta.UpdateRepository(metastore.RepositoryInfo{
		Name:                 result.Repository,
		URL:                  repoURL,
		LocalPath:            localPath,
		CollectionName:       collection,
		FileCount:            result.Files,
		ChunkCount:           result.ChunksUpserted,
		LastIndexedAt:        time.Now().UTC().Format(time.RFC3339),
		IndexDurationMs:      result.DurationMs,
		Status:               status,
		ErrorMessage:         errorMessage,
		Branch:               branch,
		IncludeExtensions:    cfg.Indexing.IncludeExtensions,
		ExcludePatterns:      cfg.Indexing.ExcludePatterns,
		EmbeddingProvider:    cfg.Embedding.Provider,
		EmbeddingModel:       cfg.Embedding.Model,
		EmbeddingDimensions:  result.EmbeddingDimensions,
		LastIndexedCommitSha: result.CommitSha,
	})
}

// collectFiles walks the tree applying the indexing filters and loads
// eligible file contents.
func collectFiles(root string, indexing config.IndexingConfig) ([]pipeline.FileInput, error) {
	allowed := map[string]bool{}
	for _, ext := range indexing.IncludeExtensions {
		allowed[strings.TrimPrefix(ext, ".")] = true
	}

	var files []pipeline.FileInput
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if excluded(rel, indexing.ExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || excluded(rel, indexing.ExcludePatterns) {
			return nil
		}
		if len(allowed) > 0 && !allowed[strings.TrimPrefix(path.Ext(rel), ".")] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if indexing.MaxFileSize > 0 && info.Size() > indexing.MaxFileSize {
			return nil
		}

		content, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		files = append(files, pipeline.FileInput{
			Path:       rel,
			Content:    content,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.CodeFileOperation, "walk repository", err)
	}
	return files, nil
}

// excluded matches one path against the exclusion patterns. "dir/**"
// covers the subtree; other patterns match the path or basename.
func excluded(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(p)); ok {
			return true
		}
	}
	return false
}
