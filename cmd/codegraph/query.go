// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/metastore"
	"github.com/kraklabs/codegraph/pkg/query"
	"github.com/kraklabs/codegraph/pkg/vectorstore"
)

func queryUsage() {
	fmt.Fprintf(os.Stderr, `Usage: codegraph query <subcommand> [options]

Subcommands:
  deps      Dependency analysis for one entity
  arch      Architecture summary of a repository
  context   Graph neighborhood of seed entities
  search    Semantic similarity search over chunks

Examples:
  codegraph query deps --repo acme --kind Function --id handleRequest --direction both
  codegraph query arch --repo acme --detail files
  codegraph query context --repo acme --seed Function:main --include callers,imports
  codegraph query search --repo acme "parse configuration file"
`)
}

func runQuery(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		queryUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "deps":
		runQueryDeps(args[1:], globals)
	case "arch":
		runQueryArch(args[1:], globals)
	case "context":
		runQueryContext(args[1:], globals)
	case "search":
		runQuerySearch(args[1:], globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown query subcommand: %s\n", args[0])
		queryUsage()
		os.Exit(2)
	}
}

// connect builds and connects the app or exits.
func connect(globals GlobalFlags) (*bootstrap.App, context.Context) {
	cfg := loadConfig(globals)
	ctx := context.Background()

	app, err := bootstrap.New(cfg, nil)
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	if err := app.Connect(ctx); err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	return app, ctx
}

func runQueryDeps(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query deps", flag.ExitOnError)
	repo := fs.String("repo", "", "Repository scope")
	kind := fs.String("kind", "Function", "Entity kind (File, Function, Class, ...)")
	id := fs.String("id", "", "Entity identifier (id, name, or path)")
	direction := fs.String("direction", "dependsOn", "dependsOn, dependedOnBy, or both")
	transitive := fs.Bool("transitive", false, "Include transitive dependencies")
	depth := fs.Int("depth", 0, "Transitive depth (0 = maximum)")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	app, ctx := connect(globals)
	defer app.Close(ctx)

	report, err := app.Query.GetDependencies(ctx, query.DependenciesInput{
		Repository: *repo,
		EntityType: *kind,
		Identifier: *id,
		Direction:  *direction,
		Transitive: *transitive,
		MaxDepth:   *depth,
	})
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(report); err != nil {
			cgerrors.FatalError(err, true)
		}
		return
	}

	ui.Header(fmt.Sprintf("Dependencies of %s %s", *kind, *id))
	fmt.Printf("%s %.2f\n", ui.Label("Impact score:"), report.ImpactScore)
	ui.SubHeader(fmt.Sprintf("Direct (%d):", len(report.Direct)))
	for _, node := range report.Direct {
		printNodeLine(node)
	}
	if report.Transitive != nil {
		ui.SubHeader(fmt.Sprintf("Transitive (%d):", len(report.Transitive)))
		for _, node := range report.Transitive {
			printNodeLine(node)
		}
	}
}

func runQueryArch(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query arch", flag.ExitOnError)
	repo := fs.String("repo", "", "Repository scope")
	detail := fs.String("detail", "modules", "Detail level: modules, files, entities")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	app, ctx := connect(globals)
	defer app.Close(ctx)

	view, err := app.Query.GetArchitecture(ctx, query.ArchitectureInput{
		Repository:  *repo,
		DetailLevel: *detail,
	})
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(view); err != nil {
			cgerrors.FatalError(err, true)
		}
		return
	}

	ui.Header(fmt.Sprintf("Architecture of %s (%s)", view.Repository, view.DetailLevel))
	switch view.DetailLevel {
	case query.DetailModules:
		for _, m := range view.Modules {
			fmt.Printf("  %s  imported by %s files\n", m.Name, ui.CountText(int(m.Importers)))
		}
	case query.DetailFiles:
		for _, f := range view.Files {
			fmt.Printf("  %s\n", f.Path)
			for _, ref := range f.References {
				fmt.Printf("    -> %s\n", ui.DimText(ref))
			}
		}
	case query.DetailEntities:
		for _, e := range view.Entities {
			fmt.Printf("  %s  %s %s\n", ui.DimText(e.FilePath), e.Kind, e.Name)
		}
	}
}

func runQueryContext(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query context", flag.ExitOnError)
	repo := fs.String("repo", "", "Repository scope")
	seeds := fs.StringSlice("seed", nil, "Seed as Kind:Identifier (repeatable)")
	include := fs.StringSlice("include", nil, "Context kinds: imports, callers, callees, siblings, documentation")
	limit := fs.Int("limit", 0, "Maximum context items")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	in := query.RelatedContextInput{Repository: *repo, Include: *include, Limit: *limit}
	for _, s := range *seeds {
		kind, identifier, ok := strings.Cut(s, ":")
		if !ok {
			cgerrors.FatalError(cgerrors.Newf(cgerrors.CodeInvalidParameters,
				"seed %q must be Kind:Identifier", s), globals.JSON)
		}
		in.Seeds = append(in.Seeds, query.Seed{Type: kind, Identifier: identifier})
	}

	app, ctx := connect(globals)
	defer app.Close(ctx)

	items, err := app.Query.GetRelatedContext(ctx, in)
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(items); err != nil {
			cgerrors.FatalError(err, true)
		}
		return
	}

	ui.Header(fmt.Sprintf("Context (%d items)", len(items)))
	for _, item := range items {
		fmt.Printf("  [%s] ", item.Kind)
		printNodeLine(item.Node)
	}
}

// SearchHit is the human- and machine-readable search result row.
type SearchHit struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	FilePath   string  `json:"filePath,omitempty"`
	Content    string  `json:"content"`
}

func runQuerySearch(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query search", flag.ExitOnError)
	repos := fs.StringSlice("repo", nil, "Repositories to search (default: all ready)")
	limit := fs.Int("limit", 10, "Maximum results")
	threshold := fs.Float64("threshold", 0, "Minimum similarity in [0,1]")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		cgerrors.FatalError(cgerrors.New(cgerrors.CodeInvalidParameters,
			"search text is required"), globals.JSON)
	}

	app, ctx := connect(globals)
	defer app.Close(ctx)

	collections, err := searchCollections(app, *repos)
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	embedding, err := app.Embedder.Embed(ctx, text)
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	results, err := app.Vectors.SimilaritySearch(ctx, vectorstore.SearchInput{
		Embedding:   embedding,
		Collections: collections,
		Limit:       *limit,
		Threshold:   *threshold,
	})
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hit := SearchHit{ID: r.ID, Similarity: r.Similarity, Content: r.Content}
		if p, ok := r.Metadata["file_path"].(string); ok {
			hit.FilePath = p
		}
		hits = append(hits, hit)
	}

	if globals.JSON {
		if err := output.JSON(hits); err != nil {
			cgerrors.FatalError(err, true)
		}
		return
	}

	if len(hits) == 0 {
		ui.Info("No matches")
		return
	}
	for _, hit := range hits {
		fmt.Printf("%s %.3f  %s\n", ui.Label("match"), hit.Similarity, ui.DimText(hit.FilePath))
		fmt.Println(indent(firstLines(hit.Content, 4), "  "))
	}
}

// searchCollections maps repository names to collection names, taking
// every ready repository when none are named.
func searchCollections(app *bootstrap.App, repos []string) ([]string, error) {
	if len(repos) > 0 {
		collections := make([]string, 0, len(repos))
		for _, name := range repos {
			info, err := app.Meta.GetRepository(name)
			if err != nil {
				return nil, err
			}
			if info == nil {
				return nil, cgerrors.Newf(cgerrors.CodeRepositoryMetadata,
					"repository %q is not indexed", name)
			}
			collections = append(collections, info.CollectionName)
		}
		return collections, nil
	}

	infos, err := app.Meta.ListRepositories()
	if err != nil {
		return nil, err
	}
	var collections []string
	for _, info := range infos {
		if info.Status == metastore.StatusReady {
			collections = append(collections, info.CollectionName)
		}
	}
	if len(collections) == 0 {
		return nil, cgerrors.New(cgerrors.CodeInvalidParameters,
			"no indexed repositories to search")
	}
	return collections, nil
}

// printNodeLine prints one flattened graph node as a single line.
func printNodeLine(node map[string]any) {
	name, _ := node["name"].(string)
	if name == "" {
		name, _ = node["path"].(string)
	}
	if name == "" {
		name, _ = node["id"].(string)
	}
	if p, ok := node["filePath"].(string); ok && p != "" {
		fmt.Printf("  %s  %s\n", name, ui.DimText(p))
		return
	}
	fmt.Printf("  %s\n", name)
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
