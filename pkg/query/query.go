// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package query is the read-side fan-out over the graph store:
// dependency analysis, architecture summaries, and context expansion.
//
// The service validates inputs and shapes results; every traversal and
// its error kinds come from the graph store unchanged.
package query

import (
	"context"
	"log/slog"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/pkg/graphstore"
)

// knownKinds are the entity kinds a caller may reference. The graph
// store only checks identifier shape; the service rejects kinds the
// schema does not define.
var knownKinds = map[string]bool{
	graphstore.LabelRepository: true,
	graphstore.LabelFile:       true,
	graphstore.LabelFunction:   true,
	graphstore.LabelClass:      true,
	graphstore.LabelInterface:  true,
	graphstore.LabelTypeAlias:  true,
	graphstore.LabelEnum:       true,
	graphstore.LabelModule:     true,
	graphstore.LabelChunk:      true,
}

func checkEntityKind(kind string) error {
	if !knownKinds[kind] {
		return cgerrors.Newf(cgerrors.CodeInvalidParameters, "unknown entity kind %q", kind)
	}
	return nil
}

// Architecture detail levels.
const (
	DetailModules  = "modules"
	DetailFiles    = "files"
	DetailEntities = "entities"
)

// Graph is the read surface of the graph store the service uses.
type Graph interface {
	AnalyzeDependencies(ctx context.Context, in graphstore.DependencyInput) (*graphstore.DependencyReport, error)
	GetContext(ctx context.Context, in graphstore.ContextInput) ([]graphstore.ContextItem, error)
	Traverse(ctx context.Context, in graphstore.TraverseInput) (*graphstore.Subgraph, error)
	RunQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// Service answers read-only questions about indexed repositories.
type Service struct {
	graph  Graph
	logger *slog.Logger
}

// New creates a query service over the graph.
func New(graph Graph, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{graph: graph, logger: logger}
}

// DependenciesInput identifies an entity and the analysis to run on it.
type DependenciesInput struct {
	Repository string `json:"repository"`
	EntityType string `json:"entityType"`
	Identifier string `json:"identifier"`
	Direction  string `json:"direction,omitempty"`
	Transitive bool   `json:"transitive,omitempty"`
	MaxDepth   int    `json:"maxDepth,omitempty"`
}

// GetDependencies reports what the entity depends on, what depends on
// it, or both.
func (s *Service) GetDependencies(ctx context.Context, in DependenciesInput) (*graphstore.DependencyReport, error) {
	if err := checkEntityKind(in.EntityType); err != nil {
		return nil, err
	}
	if in.Identifier == "" {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "identifier must not be empty")
	}
	if err := requireRepository(in.Repository, in.EntityType); err != nil {
		return nil, err
	}
	if in.MaxDepth < 0 || in.MaxDepth > graphstore.MaxTraverseDepth {
		return nil, cgerrors.Newf(cgerrors.CodeInvalidParameters,
			"maxDepth must be between 0 and %d", graphstore.MaxTraverseDepth)
	}

	return s.graph.AnalyzeDependencies(ctx, graphstore.DependencyInput{
		Target: graphstore.NodeRef{
			Type:       in.EntityType,
			Identifier: in.Identifier,
			Repository: in.Repository,
		},
		Direction:  in.Direction,
		Transitive: in.Transitive,
		MaxDepth:   in.MaxDepth,
	})
}

// ArchitectureInput scopes an architecture summary.
type ArchitectureInput struct {
	Repository  string `json:"repository"`
	DetailLevel string `json:"detailLevel"`
}

// ModuleSummary is one external module and how widely it is imported.
type ModuleSummary struct {
	Name      string `json:"name"`
	Importers int64  `json:"importers"`
}

// FileSummary is one file and the repository files it references.
type FileSummary struct {
	Path       string   `json:"path"`
	References []string `json:"references,omitempty"`
}

// EntitySummary is one defined entity.
type EntitySummary struct {
	FilePath  string `json:"filePath"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	LineStart int64  `json:"lineStart,omitempty"`
}

// ArchitectureView is the projection of a repository at one detail
// level. Exactly one of Modules, Files, Entities is populated.
type ArchitectureView struct {
	Repository  string          `json:"repository"`
	DetailLevel string          `json:"detailLevel"`
	Modules     []ModuleSummary `json:"modules,omitempty"`
	Files       []FileSummary   `json:"files,omitempty"`
	Entities    []EntitySummary `json:"entities,omitempty"`
}

const archModulesQuery = `
MATCH (r:Repository {name: $repository})-[:CONTAINS]->(f:File)-[:IMPORTS]->(m:Module)
RETURN m.name AS name, count(DISTINCT f) AS importers
ORDER BY importers DESC, name`

const archFilesQuery = `
MATCH (r:Repository {name: $repository})-[:CONTAINS]->(f:File)
OPTIONAL MATCH (f)-[:REFERENCES]->(g:File)
RETURN f.path AS path, [p IN collect(DISTINCT g.path) WHERE p IS NOT NULL] AS references
ORDER BY path`

const archEntitiesQuery = `
MATCH (r:Repository {name: $repository})-[:CONTAINS]->(f:File)-[:DEFINES]->(e)
RETURN f.path AS path, e.name AS name, head(labels(e)) AS kind, e.lineStart AS lineStart
ORDER BY path, lineStart, name`

// GetArchitecture summarizes a repository's structure at the requested
// detail level.
func (s *Service) GetArchitecture(ctx context.Context, in ArchitectureInput) (*ArchitectureView, error) {
	if in.Repository == "" {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "repository must not be empty")
	}
	detail := in.DetailLevel
	if detail == "" {
		detail = DetailModules
	}

	view := &ArchitectureView{Repository: in.Repository, DetailLevel: detail}
	params := map[string]any{"repository": in.Repository}

	switch detail {
	case DetailModules:
		rows, err := s.graph.RunQuery(ctx, archModulesQuery, params)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			view.Modules = append(view.Modules, ModuleSummary{
				Name:      asString(row["name"]),
				Importers: asInt64(row["importers"]),
			})
		}

	case DetailFiles:
		rows, err := s.graph.RunQuery(ctx, archFilesQuery, params)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			summary := FileSummary{Path: asString(row["path"])}
			if refs, ok := row["references"].([]any); ok {
				for _, ref := range refs {
					summary.References = append(summary.References, asString(ref))
				}
			}
			view.Files = append(view.Files, summary)
		}

	case DetailEntities:
		rows, err := s.graph.RunQuery(ctx, archEntitiesQuery, params)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			view.Entities = append(view.Entities, EntitySummary{
				FilePath:  asString(row["path"]),
				Name:      asString(row["name"]),
				Kind:      asString(row["kind"]),
				LineStart: asInt64(row["lineStart"]),
			})
		}

	default:
		return nil, cgerrors.Newf(cgerrors.CodeInvalidParameters,
			"unknown detail level %q (supported: modules, files, entities)", detail)
	}

	return view, nil
}

// Seed identifies one starting node for context expansion.
type Seed struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// RelatedContextInput describes a context-expansion request.
type RelatedContextInput struct {
	Repository string   `json:"repository"`
	Seeds      []Seed   `json:"seeds"`
	Include    []string `json:"include,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// GetRelatedContext returns the graph neighborhood of the seed nodes,
// grouped by the requested context kinds.
func (s *Service) GetRelatedContext(ctx context.Context, in RelatedContextInput) ([]graphstore.ContextItem, error) {
	if in.Repository == "" {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "repository must not be empty")
	}
	if len(in.Seeds) == 0 {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters, "at least one seed is required")
	}
	if in.Limit < 0 || in.Limit > graphstore.MaxContextLimit {
		return nil, cgerrors.Newf(cgerrors.CodeInvalidParameters,
			"limit must be between 0 and %d", graphstore.MaxContextLimit)
	}

	refs := make([]graphstore.NodeRef, 0, len(in.Seeds))
	for _, seed := range in.Seeds {
		if err := checkEntityKind(seed.Type); err != nil {
			return nil, err
		}
		refs = append(refs, graphstore.NodeRef{
			Type:       seed.Type,
			Identifier: seed.Identifier,
			Repository: in.Repository,
		})
	}

	return s.graph.GetContext(ctx, graphstore.ContextInput{
		Seeds:   refs,
		Include: in.Include,
		Limit:   in.Limit,
	})
}

// requireRepository enforces repository scoping for entity kinds whose
// identifiers are only unique within a repository. Repository and
// Module names are global.
func requireRepository(repository, entityType string) error {
	switch entityType {
	case graphstore.LabelRepository, graphstore.LabelModule:
		return nil
	}
	if repository == "" {
		return cgerrors.Newf(cgerrors.CodeInvalidParameters,
			"repository is required for %s targets", entityType)
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
