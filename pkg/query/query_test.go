// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/pkg/graphstore"
)

type fakeGraph struct {
	depIn   *graphstore.DependencyInput
	depOut  *graphstore.DependencyReport
	ctxIn   *graphstore.ContextInput
	ctxOut  []graphstore.ContextItem
	ctxErr  error
	queries []string
	rows    []map[string]any
	rowsErr error
}

func (f *fakeGraph) AnalyzeDependencies(ctx context.Context, in graphstore.DependencyInput) (*graphstore.DependencyReport, error) {
	f.depIn = &in
	if f.depOut == nil {
		f.depOut = &graphstore.DependencyReport{}
	}
	return f.depOut, nil
}

func (f *fakeGraph) GetContext(ctx context.Context, in graphstore.ContextInput) ([]graphstore.ContextItem, error) {
	f.ctxIn = &in
	return f.ctxOut, f.ctxErr
}

func (f *fakeGraph) Traverse(ctx context.Context, in graphstore.TraverseInput) (*graphstore.Subgraph, error) {
	return &graphstore.Subgraph{}, nil
}

func (f *fakeGraph) RunQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	f.queries = append(f.queries, query)
	return f.rows, f.rowsErr
}

func TestGetDependenciesMapsInput(t *testing.T) {
	fake := &fakeGraph{depOut: &graphstore.DependencyReport{ImpactScore: 0.4}}
	svc := New(fake, nil)

	report, err := svc.GetDependencies(context.Background(), DependenciesInput{
		Repository: "acme",
		EntityType: graphstore.LabelFunction,
		Identifier: "handleRequest",
		Direction:  graphstore.DirectionBoth,
		Transitive: true,
		MaxDepth:   3,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.4, report.ImpactScore)

	require.NotNil(t, fake.depIn)
	assert.Equal(t, "acme", fake.depIn.Target.Repository)
	assert.Equal(t, graphstore.LabelFunction, fake.depIn.Target.Type)
	assert.Equal(t, "handleRequest", fake.depIn.Target.Identifier)
	assert.True(t, fake.depIn.Transitive)
	assert.Equal(t, 3, fake.depIn.MaxDepth)
}

func TestGetDependenciesValidation(t *testing.T) {
	svc := New(&fakeGraph{}, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   DependenciesInput
	}{
		{"unknown entity kind", DependenciesInput{Repository: "acme", EntityType: "Gadget", Identifier: "x"}},
		{"empty identifier", DependenciesInput{Repository: "acme", EntityType: graphstore.LabelClass}},
		{"missing repository", DependenciesInput{EntityType: graphstore.LabelFile, Identifier: "src/a.ts"}},
		{"depth out of range", DependenciesInput{Repository: "acme", EntityType: graphstore.LabelFile, Identifier: "src/a.ts", MaxDepth: 9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GetDependencies(ctx, tc.in)
			require.Error(t, err)
			assert.True(t, cgerrors.HasCode(err, cgerrors.CodeInvalidParameters))
		})
	}
}

func TestGetDependenciesGlobalKindsSkipRepository(t *testing.T) {
	fake := &fakeGraph{}
	svc := New(fake, nil)

	_, err := svc.GetDependencies(context.Background(), DependenciesInput{
		EntityType: graphstore.LabelModule,
		Identifier: "express",
	})
	require.NoError(t, err)
	assert.Empty(t, fake.depIn.Target.Repository)
}

func TestGetArchitectureModules(t *testing.T) {
	fake := &fakeGraph{rows: []map[string]any{
		{"name": "express", "importers": int64(7)},
		{"name": "lodash", "importers": int64(2)},
	}}
	svc := New(fake, nil)

	view, err := svc.GetArchitecture(context.Background(), ArchitectureInput{Repository: "acme"})
	require.NoError(t, err)

	assert.Equal(t, DetailModules, view.DetailLevel)
	require.Len(t, view.Modules, 2)
	assert.Equal(t, ModuleSummary{Name: "express", Importers: 7}, view.Modules[0])
	require.Len(t, fake.queries, 1)
	assert.Contains(t, fake.queries[0], ":IMPORTS]->(m:Module)")
}

func TestGetArchitectureFiles(t *testing.T) {
	fake := &fakeGraph{rows: []map[string]any{
		{"path": "src/app.ts", "references": []any{"src/util.ts"}},
		{"path": "src/util.ts", "references": []any{}},
	}}
	svc := New(fake, nil)

	view, err := svc.GetArchitecture(context.Background(), ArchitectureInput{
		Repository:  "acme",
		DetailLevel: DetailFiles,
	})
	require.NoError(t, err)

	require.Len(t, view.Files, 2)
	assert.Equal(t, []string{"src/util.ts"}, view.Files[0].References)
	assert.Empty(t, view.Files[1].References)
}

func TestGetArchitectureEntities(t *testing.T) {
	fake := &fakeGraph{rows: []map[string]any{
		{"path": "src/app.ts", "name": "main", "kind": "Function", "lineStart": int64(3)},
	}}
	svc := New(fake, nil)

	view, err := svc.GetArchitecture(context.Background(), ArchitectureInput{
		Repository:  "acme",
		DetailLevel: DetailEntities,
	})
	require.NoError(t, err)

	require.Len(t, view.Entities, 1)
	assert.Equal(t, EntitySummary{FilePath: "src/app.ts", Name: "main", Kind: "Function", LineStart: 3}, view.Entities[0])
}

func TestGetArchitectureValidation(t *testing.T) {
	svc := New(&fakeGraph{}, nil)
	ctx := context.Background()

	_, err := svc.GetArchitecture(ctx, ArchitectureInput{DetailLevel: DetailModules})
	require.Error(t, err)
	assert.True(t, cgerrors.HasCode(err, cgerrors.CodeInvalidParameters))

	_, err = svc.GetArchitecture(ctx, ArchitectureInput{Repository: "acme", DetailLevel: "galaxies"})
	require.Error(t, err)
	assert.True(t, cgerrors.HasCode(err, cgerrors.CodeInvalidParameters))
}

func TestGetRelatedContextMapsSeeds(t *testing.T) {
	fake := &fakeGraph{ctxOut: []graphstore.ContextItem{{Kind: "callers", Relevance: 0.8}}}
	svc := New(fake, nil)

	items, err := svc.GetRelatedContext(context.Background(), RelatedContextInput{
		Repository: "acme",
		Seeds:      []Seed{{Type: graphstore.LabelFunction, Identifier: "main"}},
		Include:    []string{"callers"},
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "callers", items[0].Kind)

	require.NotNil(t, fake.ctxIn)
	require.Len(t, fake.ctxIn.Seeds, 1)
	assert.Equal(t, "acme", fake.ctxIn.Seeds[0].Repository)
	assert.Equal(t, 10, fake.ctxIn.Limit)
}

func TestGetRelatedContextValidation(t *testing.T) {
	svc := New(&fakeGraph{}, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RelatedContextInput
	}{
		{"missing repository", RelatedContextInput{Seeds: []Seed{{Type: graphstore.LabelFunction, Identifier: "main"}}}},
		{"no seeds", RelatedContextInput{Repository: "acme"}},
		{"unknown seed kind", RelatedContextInput{Repository: "acme", Seeds: []Seed{{Type: "Widget", Identifier: "x"}}}},
		{"limit out of range", RelatedContextInput{Repository: "acme", Seeds: []Seed{{Type: graphstore.LabelFunction, Identifier: "main"}}, Limit: 500}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GetRelatedContext(ctx, tc.in)
			require.Error(t, err)
			assert.True(t, cgerrors.HasCode(err, cgerrors.CodeInvalidParameters))
		})
	}
}

func TestGetRelatedContextPreservesErrorKind(t *testing.T) {
	fake := &fakeGraph{ctxErr: cgerrors.New(cgerrors.CodeConnection, "not connected")}
	svc := New(fake, nil)

	_, err := svc.GetRelatedContext(context.Background(), RelatedContextInput{
		Repository: "acme",
		Seeds:      []Seed{{Type: graphstore.LabelFunction, Identifier: "main"}},
	})
	require.Error(t, err)
	assert.True(t, cgerrors.HasCode(err, cgerrors.CodeConnection))
}
