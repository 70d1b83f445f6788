// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"os"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/ui"
)

func runRepos(args []string, globals GlobalFlags) {
	if len(args) == 0 || args[0] == "list" {
		runStatusList(globals)
		return
	}

	switch args[0] {
	case "remove":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: codegraph repos remove <name>")
			os.Exit(2)
		}
		runReposRemove(args[1], globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown repos subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "Usage: codegraph repos [list | remove <name>]")
		os.Exit(2)
	}
}

// runReposRemove deletes the repository from all three stores. Metadata
// is removed last so a partial failure stays visible and retryable.
func runReposRemove(name string, globals GlobalFlags) {
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

	if err := app.Graph.DeleteRepositoryCascade(ctx, name); err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	if info.CollectionName != "" {
		if err := app.Vectors.DeleteCollection(ctx, info.CollectionName); err != nil {
			cgerrors.FatalError(err, globals.JSON)
		}
	}
	if err := app.Meta.RemoveRepository(name); err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		fmt.Printf("{\"removed\":%q}\n", name)
		return
	}
	ui.Successf("Removed %s from graph, vector, and metadata stores", name)
}
