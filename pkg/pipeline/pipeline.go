// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package pipeline turns parsed source files into the code-knowledge
// graph: repository, file, and entity nodes plus the edges between
// them, written in sized batches.
//
// Per-file failures are recorded and never abort a run; the final
// status reflects how much of the input made it in.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/pkg/graphstore"
	"github.com/kraklabs/codegraph/pkg/parser"
)

// Progress phases, emitted in order.
const (
	PhaseInitializing           = "initializing"
	PhaseExtractingEntities     = "extracting_entities"
	PhaseExtractingRelations    = "extracting_relationships"
	PhaseCreatingRepositoryNode = "creating_repository_node"
	PhaseCreatingFileNodes      = "creating_file_nodes"
	PhaseCreatingEntityNodes    = "creating_entity_nodes"
	PhaseCreatingModuleNodes    = "creating_module_nodes"
	PhaseCreatingRelationships  = "creating_relationships"
	PhaseVerifying              = "verifying"
	PhaseCompleted              = "completed"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// GraphWriter is the slice of the graph store the pipeline writes
// through.
type GraphWriter interface {
	RepositoryExists(ctx context.Context, name string) (bool, error)
	DeleteRepositoryCascade(ctx context.Context, name string) error
	DeleteFileCascade(ctx context.Context, repository, path string) error
	UpsertNode(ctx context.Context, label, id string, props map[string]any) error
	BatchUpsertNodes(ctx context.Context, label string, rows []graphstore.NodeRow) error
	BatchCreateRelationships(ctx context.Context, relType string, rels []graphstore.Relationship) error
}

// Config sizes the pipeline.
type Config struct {
	// NodeBatchSize is nodes per batched write (default 50).
	NodeBatchSize int

	// RelationshipBatchSize is edges per batched write (default 100).
	RelationshipBatchSize int

	// Workers bounds concurrent file parsing (default 4).
	Workers int
}

func (c Config) withDefaults() Config {
	if c.NodeBatchSize <= 0 {
		c.NodeBatchSize = 50
	}
	if c.RelationshipBatchSize <= 0 {
		c.RelationshipBatchSize = 100
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// FileInput is one file handed to ingestion.
type FileInput struct {
	Path       string
	Content    []byte
	SizeBytes  int64
	ModifiedAt time.Time
}

// Options controls one IngestFiles run.
type Options struct {
	Repository    string
	RepositoryURL string
	Branch        string
	Force         bool
	OnProgress    func(Progress)
}

// Progress is one phase event.
type Progress struct {
	Phase      string `json:"phase"`
	Percentage int    `json:"percentage"`
	Repository string `json:"repository"`
}

// FileError is one recorded failure. FilePath is empty for failures not
// tied to a file (batch writes, repository setup).
type FileError struct {
	FilePath string `json:"filePath,omitempty"`
	Message  string `json:"message"`
}

// Stats aggregates what a run wrote.
type Stats struct {
	FilesProcessed       int            `json:"filesProcessed"`
	FilesFailed          int            `json:"filesFailed"`
	NodesCreated         int            `json:"nodesCreated"`
	RelationshipsCreated int            `json:"relationshipsCreated"`
	NodesByType          map[string]int `json:"nodesByType"`
	RelationshipsByType  map[string]int `json:"relationshipsByType"`
	DurationMs           int64          `json:"durationMs"`
}

// Result is the outcome of one IngestFiles run.
type Result struct {
	Status string      `json:"status"`
	Stats  Stats       `json:"stats"`
	Errors []FileError `json:"errors,omitempty"`
}

// Pipeline ingests files into the graph.
type Pipeline struct {
	graph  GraphWriter
	parser *parser.Parser
	cfg    Config
	logger *slog.Logger
}

// New creates a pipeline over the given graph writer and parser.
func New(graph GraphWriter, p *parser.Parser, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{graph: graph, parser: p, cfg: cfg.withDefaults(), logger: logger}
}

// parsedFile is one file's extraction output plus its node form.
type parsedFile struct {
	input  FileInput
	result *parser.ParseResult
	err    error
}

// IngestFiles runs the full ingestion protocol for one repository.
func (p *Pipeline) IngestFiles(ctx context.Context, files []FileInput, opts Options) (*Result, error) {
	if opts.Repository == "" {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "repository name must not be empty")
	}

	start := time.Now()
	emit := func(phase string, pct int) {
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{Phase: phase, Percentage: pct, Repository: opts.Repository})
		}
	}
	emit(PhaseInitializing, 0)

	exists, err := p.graph.RepositoryExists(ctx, opts.Repository)
	if err != nil {
		return nil, err
	}
	if exists {
		if !opts.Force {
			return nil, cgerrors.Newf(cgerrors.CodeRepositoryExists,
				"repository %q already ingested; use force to replace it", opts.Repository)
		}
		if err := p.graph.DeleteRepositoryCascade(ctx, opts.Repository); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Stats: Stats{
			NodesByType:         map[string]int{},
			RelationshipsByType: map[string]int{},
		},
	}

	emit(PhaseExtractingEntities, 10)
	parsed := p.parseAll(ctx, files)

	knownPaths := make(map[string]bool, len(files))
	for _, f := range files {
		knownPaths[normalizeIngestPath(f.Path)] = true
	}

	emit(PhaseExtractingRelations, 30)
	builder := newGraphBuilder(opts.Repository, knownPaths)
	for _, pf := range parsed {
		if pf.err != nil {
			result.Stats.FilesFailed++
			recordFileFailed()
			result.Errors = append(result.Errors, FileError{
				FilePath: pf.input.Path,
				Message:  pf.err.Error(),
			})
			continue
		}
		builder.addFile(pf.input, pf.result)
		result.Stats.FilesProcessed++
	}

	emit(PhaseCreatingRepositoryNode, 40)
	if err := p.graph.UpsertNode(ctx, graphstore.LabelRepository,
		graphstore.RepositoryID(opts.Repository), map[string]any{
			"id":        graphstore.RepositoryID(opts.Repository),
			"name":      opts.Repository,
			"url":       opts.RepositoryURL,
			"branch":    opts.Branch,
			"indexedAt": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
		result.Errors = append(result.Errors, FileError{Message: err.Error()})
		result.Status = StatusFailed
		result.Stats.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}
	result.Stats.NodesCreated++
	result.Stats.NodesByType[graphstore.LabelRepository]++
	recordNodesWritten(graphstore.LabelRepository, 1)

	emit(PhaseCreatingFileNodes, 50)
	p.writeNodes(ctx, graphstore.LabelFile, builder.fileNodes, result)

	emit(PhaseCreatingEntityNodes, 60)
	for _, label := range []string{
		graphstore.LabelFunction, graphstore.LabelClass, graphstore.LabelInterface,
		graphstore.LabelEnum, graphstore.LabelTypeAlias,
	} {
		p.writeNodes(ctx, label, builder.entityNodes[label], result)
	}

	emit(PhaseCreatingModuleNodes, 70)
	p.writeNodes(ctx, graphstore.LabelModule, builder.moduleNodes(), result)

	emit(PhaseCreatingRelationships, 80)
	for _, relType := range []string{
		graphstore.RelContains, graphstore.RelDefines, graphstore.RelImports,
		graphstore.RelCalls, graphstore.RelReferences,
	} {
		p.writeRelationships(ctx, relType, builder.relationships[relType], result)
	}

	emit(PhaseVerifying, 90)
	result.Stats.DurationMs = time.Since(start).Milliseconds()
	result.Status = statusFor(result)
	emit(PhaseCompleted, 100)

	recordRun(result.Status, time.Since(start).Seconds())
	p.logger.Info("pipeline.ingest.complete",
		"repository", opts.Repository,
		"status", result.Status,
		"files_processed", result.Stats.FilesProcessed,
		"files_failed", result.Stats.FilesFailed,
		"nodes", result.Stats.NodesCreated,
		"relationships", result.Stats.RelationshipsCreated,
		"duration_ms", result.Stats.DurationMs)
	return result, nil
}

// statusFor applies the result calculus: partial when some files failed
// but some landed, failed when nothing landed and errors exist.
func statusFor(r *Result) string {
	switch {
	case r.Stats.FilesProcessed == 0 && len(r.Errors) > 0:
		return StatusFailed
	case r.Stats.FilesFailed > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

// parseAll runs the parser over all files on a bounded worker pool.
// Unsupported files are skipped silently; real parse failures surface
// as per-file errors.
func (p *Pipeline) parseAll(ctx context.Context, files []FileInput) []parsedFile {
	jobs := make(chan FileInput)
	results := make(chan parsedFile, len(files))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				res, err := p.parser.Parse(ctx, file.Content, file.Path)
				if err != nil && cgerrors.HasCode(err, cgerrors.CodeLanguageUnsupported) {
					// Unparseable kinds still become File nodes.
					results <- parsedFile{input: file, result: nil}
					continue
				}
				results <- parsedFile{input: file, result: res, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, file := range files {
			select {
			case jobs <- file:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	parsed := make([]parsedFile, 0, len(files))
	for pf := range results {
		parsed = append(parsed, pf)
	}
	return parsed
}

func (p *Pipeline) writeNodes(ctx context.Context, label string, rows []graphstore.NodeRow, result *Result) {
	for start := 0; start < len(rows); start += p.cfg.NodeBatchSize {
		end := start + p.cfg.NodeBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		if err := p.graph.BatchUpsertNodes(ctx, label, batch); err != nil {
			result.Errors = append(result.Errors, FileError{
				Message: fmt.Sprintf("write %s batch: %v", label, err),
			})
			continue
		}
		result.Stats.NodesCreated += len(batch)
		result.Stats.NodesByType[label] += len(batch)
		recordNodesWritten(label, len(batch))
	}
}

func (p *Pipeline) writeRelationships(ctx context.Context, relType string, rels []graphstore.Relationship, result *Result) {
	for start := 0; start < len(rels); start += p.cfg.RelationshipBatchSize {
		end := start + p.cfg.RelationshipBatchSize
		if end > len(rels) {
			end = len(rels)
		}
		batch := rels[start:end]
		if err := p.graph.BatchCreateRelationships(ctx, relType, batch); err != nil {
			result.Errors = append(result.Errors, FileError{
				Message: fmt.Sprintf("write %s batch: %v", relType, err),
			})
			continue
		}
		result.Stats.RelationshipsCreated += len(batch)
		result.Stats.RelationshipsByType[relType] += len(batch)
		recordRelationshipsWritten(relType, len(batch))
	}
}

// IngestFile re-ingests a single file: its prior subgraph is removed,
// then the fresh one written. Used by incremental updates; the file is
// observed either fully old or fully new.
func (p *Pipeline) IngestFile(ctx context.Context, repository string, file FileInput) (*Stats, error) {
	if err := p.graph.DeleteFileCascade(ctx, repository, file.Path); err != nil {
		return nil, err
	}

	result, err := p.parser.Parse(ctx, file.Content, file.Path)
	if err != nil && !cgerrors.HasCode(err, cgerrors.CodeLanguageUnsupported) {
		return nil, err
	}

	builder := newGraphBuilder(repository, map[string]bool{normalizeIngestPath(file.Path): true})
	builder.addFile(file, result)

	res := &Result{Stats: Stats{NodesByType: map[string]int{}, RelationshipsByType: map[string]int{}}}

	p.writeNodes(ctx, graphstore.LabelFile, builder.fileNodes, res)
	for _, label := range []string{
		graphstore.LabelFunction, graphstore.LabelClass, graphstore.LabelInterface,
		graphstore.LabelEnum, graphstore.LabelTypeAlias,
	} {
		p.writeNodes(ctx, label, builder.entityNodes[label], res)
	}
	p.writeNodes(ctx, graphstore.LabelModule, builder.moduleNodes(), res)
	for _, relType := range []string{
		graphstore.RelContains, graphstore.RelDefines, graphstore.RelImports,
		graphstore.RelCalls, graphstore.RelReferences,
	} {
		p.writeRelationships(ctx, relType, builder.relationships[relType], res)
	}

	if len(res.Errors) > 0 {
		return &res.Stats, cgerrors.Newf(cgerrors.CodeGraph,
			"ingest %s: %s", file.Path, res.Errors[0].Message)
	}
	return &res.Stats, nil
}
