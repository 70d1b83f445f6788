// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/graphstore"
	"github.com/kraklabs/codegraph/pkg/metastore"
)

// StatusReport is the machine-readable status of one repository.
type StatusReport struct {
	Repository metastore.RepositoryInfo `json:"repository"`
	Graph      map[string]int64         `json:"graph,omitempty"`
	Stores     StoreHealth              `json:"stores"`
}

// StoreHealth records backend reachability. Empty error means healthy.
type StoreHealth struct {
	GraphError  string `json:"graphError,omitempty"`
	VectorError string `json:"vectorError,omitempty"`
}

var statusLabels = append(
	[]string{graphstore.LabelFile, graphstore.LabelModule},
	graphstore.EntityLabels...,
)

func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	withGraph := fs.Bool("graph", false, "Include node counts from the graph store")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph status [options] [name]

Without a name, prints a one-line summary per indexed repository.
With a name, prints full details from the metadata store and, with
--graph, per-label node counts from the graph store.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	name := fs.Arg(0)
	if name == "" {
		runStatusList(globals)
		return
	}

	app, ctx := connect(globals)
	defer app.Close(ctx)

	info, err := app.Meta.GetRepository(name)
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	if info == nil {
		cgerrors.FatalError(cgerrors.Newf(cgerrors.CodeRepositoryMetadata,
			"repository %q is not indexed", name), globals.JSON)
	}

	report := StatusReport{Repository: *info}
	if err := app.Graph.HealthCheck(ctx); err != nil {
		report.Stores.GraphError = err.Error()
	}
	if err := app.Vectors.HealthCheck(ctx); err != nil {
		report.Stores.VectorError = err.Error()
	}

	if *withGraph && report.Stores.GraphError == "" {
		report.Graph = map[string]int64{}
		for _, label := range statusLabels {
			n, err := app.Graph.CountNodes(ctx, label, name)
			if err != nil {
				report.Stores.GraphError = err.Error()
				break
			}
			report.Graph[label] = n
		}
	}

	if globals.JSON {
		if err := output.JSON(report); err != nil {
			cgerrors.FatalError(err, true)
		}
		return
	}
	printStatusReport(report)
}

// runStatusList reads only the metadata store, so it works with the
// backends down.
func runStatusList(globals GlobalFlags) {
	cfg := loadConfig(globals)
	meta := metastore.NewStore(cfg.Metadata.Path, nil)

	infos, err := meta.ListRepositories()
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(infos); err != nil {
			cgerrors.FatalError(err, true)
		}
		return
	}

	if len(infos) == 0 {
		ui.Info("No indexed repositories")
		return
	}
	ui.Header(fmt.Sprintf("Indexed repositories (%d)", len(infos)))
	for _, info := range infos {
		fmt.Printf("  %-24s %-10s %s files, %s chunks  %s\n",
			info.Name,
			ui.StatusText(info.Status),
			ui.CountText(info.FileCount),
			ui.CountText(info.ChunkCount),
			ui.DimText(info.LastIndexedAt))
	}
}

func printStatusReport(report StatusReport) {
	info := report.Repository

	ui.Header(info.Name)
	fmt.Printf("%s %s\n", ui.Label("Status:"), ui.StatusText(info.Status))
	if info.ErrorMessage != "" {
		fmt.Printf("%s %s\n", ui.Label("Error:"), info.ErrorMessage)
	}
	fmt.Printf("%s %s\n", ui.Label("Path:"), info.LocalPath)
	if info.URL != "" {
		fmt.Printf("%s %s (%s)\n", ui.Label("URL:"), info.URL, info.Branch)
	}
	fmt.Printf("%s %s files, %s chunks\n", ui.Label("Indexed:"),
		ui.CountText(info.FileCount), ui.CountText(info.ChunkCount))
	fmt.Printf("%s %s\n", ui.Label("Last indexed:"), info.LastIndexedAt)
	if info.LastIndexedCommitSha != "" {
		fmt.Printf("%s %s\n", ui.Label("Commit:"), shortCommit(info.LastIndexedCommitSha))
	}
	if info.EmbeddingProvider != "" {
		fmt.Printf("%s %s/%s\n", ui.Label("Embedding:"), info.EmbeddingProvider, info.EmbeddingModel)
	}
	if info.UpdateInProgress {
		ui.Warningf("Update in progress since %s", info.UpdateStartedAt)
	}

	if len(report.Graph) > 0 {
		ui.SubHeader("Graph:")
		for _, label := range statusLabels {
			if n, ok := report.Graph[label]; ok {
				fmt.Printf("  %-12s %s\n", label, ui.CountText(int(n)))
			}
		}
	}

	ui.SubHeader("Stores:")
	printStoreHealth("graph", report.Stores.GraphError)
	printStoreHealth("vector", report.Stores.VectorError)

	if len(info.UpdateHistory) > 0 {
		ui.SubHeader(fmt.Sprintf("Updates (%d total):", info.IncrementalUpdateCount))
		limit := min(len(info.UpdateHistory), 5)
		for _, rec := range info.UpdateHistory[:limit] {
			fmt.Printf("  %s  %-9s +%d ~%d -%d  %s -> %s\n",
				rec.Timestamp, rec.Status,
				rec.FilesAdded, rec.FilesModified, rec.FilesDeleted,
				shortCommit(rec.PreviousCommit), shortCommit(rec.NewCommit))
		}
	}
}

func printStoreHealth(name, errMsg string) {
	if errMsg == "" {
		ui.Successf("%s store reachable", name)
		return
	}
	ui.Errorf("%s store unreachable: %s", name, errMsg)
}
