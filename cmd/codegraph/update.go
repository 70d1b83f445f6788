// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/coordinator"
)

func runUpdate(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	all := fs.Bool("all", false, "Update every ready repository")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph update [options] [name]

Diffs the repository's indexed commit against its current HEAD and
applies the changes to both stores: deleted files lose their chunks and
subgraph, changed files are re-chunked, re-embedded, and re-ingested.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  codegraph update acme
  codegraph update --all
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	name := fs.Arg(0)
	if !*all && name == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg := loadConfig(globals)
	ctx := context.Background()

	app, err := bootstrap.New(cfg, nil)
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	if err := app.Connect(ctx); err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	defer app.Close(ctx)

	if *all {
		summary, err := app.Coordinator.UpdateAll(ctx)
		if err != nil {
			cgerrors.FatalError(err, globals.JSON)
		}
		if globals.JSON {
			if err := output.JSON(summary); err != nil {
				cgerrors.FatalError(err, true)
			}
			return
		}
		for _, r := range summary.Results {
			printUpdateResult(&r)
		}
		ui.Infof("%d repositories: %d updated, %d current, %d failed",
			summary.Total, summary.Updated, summary.UpToDate, summary.Failed)
		if summary.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	result, err := app.Coordinator.UpdateRepository(ctx, name)
	if err != nil && result == nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	if globals.JSON {
		if err := output.JSON(result); err != nil {
			cgerrors.FatalError(err, true)
		}
	} else {
		printUpdateResult(result)
	}
	if result.Status == coordinator.StatusFailed {
		os.Exit(1)
	}
}

func printUpdateResult(r *coordinator.UpdateResult) {
	switch r.Status {
	case coordinator.StatusNoChanges:
		ui.Infof("%s: already current at %s", r.Repository, shortCommit(r.NewCommit))
	case coordinator.StatusSuccess:
		ui.Successf("%s: +%d ~%d -%d files, %d chunks upserted, %d deleted",
			r.Repository, r.FilesAdded, r.FilesModified, r.FilesDeleted,
			r.ChunksUpserted, r.ChunksDeleted)
	case coordinator.StatusPartial:
		ui.Warningf("%s: partial update, %d errors (first: %s)",
			r.Repository, len(r.Errors), r.Errors[0])
	default:
		msg := "unknown failure"
		if len(r.Errors) > 0 {
			msg = r.Errors[0]
		}
		ui.Errorf("%s: update failed: %s", r.Repository, msg)
	}
}

func shortCommit(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
