// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package bootstrap wires the codegraph components together for the
// CLI: stores, parser, pipeline, coordinator, and query service, all
// built from one loaded configuration.
package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/kraklabs/codegraph/internal/config"
	"github.com/kraklabs/codegraph/pkg/chunk"
	"github.com/kraklabs/codegraph/pkg/coordinator"
	"github.com/kraklabs/codegraph/pkg/embed"
	"github.com/kraklabs/codegraph/pkg/graphstore"
	"github.com/kraklabs/codegraph/pkg/metastore"
	"github.com/kraklabs/codegraph/pkg/parser"
	"github.com/kraklabs/codegraph/pkg/pipeline"
	"github.com/kraklabs/codegraph/pkg/query"
	"github.com/kraklabs/codegraph/pkg/vectorstore"
)

// App holds every wired component for one CLI invocation.
type App struct {
	Config      *config.Config
	Graph       *graphstore.Client
	Vectors     *vectorstore.Client
	Parser      *parser.Parser
	Pipeline    *pipeline.Pipeline
	Meta        *metastore.Store
	Coordinator *coordinator.Coordinator
	Query       *query.Service
	Embedder    embed.Provider

	logger *slog.Logger
}

// graphSide adapts the pipeline and graph client into the coordinator's
// per-file write surface.
type graphSide struct {
	pipeline *pipeline.Pipeline
	graph    *graphstore.Client
}

func (g *graphSide) IngestFile(ctx context.Context, repository string, file pipeline.FileInput) (*pipeline.Stats, error) {
	return g.pipeline.IngestFile(ctx, repository, file)
}

func (g *graphSide) DeleteFileCascade(ctx context.Context, repository, path string) error {
	return g.graph.DeleteFileCascade(ctx, repository, path)
}

func (g *graphSide) SyncFileChunks(ctx context.Context, repository, path string, chunks []graphstore.ChunkRef) error {
	return g.graph.UpsertFileChunks(ctx, repository, path, chunks)
}

// New builds the application from configuration without touching the
// network. Call Connect before using the stores.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	graph := graphstore.NewClient(graphstore.Config{
		URI:                   cfg.Graph.URI,
		Username:              cfg.Graph.Username,
		Password:              cfg.Graph.Password,
		Database:              cfg.Graph.Database,
		MaxConnectionPoolSize: cfg.Graph.PoolSize,
	}, logger)

	vectors := vectorstore.NewClient(vectorstore.Config{
		BaseURL: cfg.Vector.BaseURL,
	}, logger)

	p := parser.New(parser.Options{
		MaxFileSizeBytes: cfg.Indexing.MaxFileSize,
	}, logger)

	pipe := pipeline.New(graph, p, pipeline.Config{
		Workers: cfg.Indexing.Workers,
	}, logger)

	meta := metastore.NewStore(cfg.Metadata.Path, logger)

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	coord := coordinator.New(meta, vectors, &graphSide{pipeline: pipe, graph: graph}, embedder, coordinator.Config{
		Chunking: chunk.Options{
			MaxLines:     cfg.Indexing.ChunkLines,
			OverlapLines: cfg.Indexing.ChunkOverlap,
		},
	}, logger)

	return &App{
		Config:      cfg,
		Graph:       graph,
		Vectors:     vectors,
		Parser:      p,
		Pipeline:    pipe,
		Meta:        meta,
		Coordinator: coord,
		Query:       query.New(graph, logger),
		Embedder:    embedder,
		logger:      logger,
	}, nil
}

// buildEmbedder maps the embedding config onto a provider. The config
// file wins over provider-specific environment defaults.
func buildEmbedder(cfg *config.Config, logger *slog.Logger) (embed.Provider, error) {
	if cfg.Embedding.Provider == "ollama" {
		baseURL := cfg.Embedding.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Embedding.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return embed.NewOllamaProvider(baseURL, model, logger), nil
	}
	return embed.CreateProvider(cfg.Embedding.Provider, logger)
}

// Connect opens both store connections. Either failure closes whatever
// already connected.
func (a *App) Connect(ctx context.Context) error {
	if err := a.Graph.Connect(ctx); err != nil {
		return err
	}
	if err := a.Vectors.Connect(ctx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Graph.Close(closeCtx)
		return err
	}
	a.logger.Info("bootstrap.connected",
		"graph_uri", a.Config.Graph.URI,
		"vector_url", a.Config.Vector.BaseURL,
	)
	return nil
}

// Close releases both store connections.
func (a *App) Close(ctx context.Context) {
	a.Vectors.Disconnect()
	if err := a.Graph.Close(ctx); err != nil {
		a.logger.Warn("bootstrap.close.graph", "error", err)
	}
}
