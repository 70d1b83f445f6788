// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the codegraph CLI for indexing source
// repositories into a vector store and a code graph, keeping them
// current with git, and querying the result.
//
// Usage:
//
//	codegraph index <path>           Index a repository
//	codegraph update [name|--all]    Incrementally update indexed repositories
//	codegraph query <subcommand>     Dependency, architecture, context, search
//	codegraph status [name]          Show repository status
//	codegraph repos [remove <name>]  List or remove indexed repositories
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/config"
	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/ui"
)

// Version information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// GlobalFlags are the flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Quiet      bool
	Verbose    bool
	NoColor    bool
}

func usage() {
	fmt.Fprintf(os.Stderr, `codegraph - code knowledge indexing

codegraph parses source repositories into a typed code graph and an
embedded chunk index, keeps both in sync with git, and answers
dependency, architecture, and context queries.

Usage:
  codegraph <command> [options]

Commands:
  index    Index a repository from a local path
  update   Incrementally update one or all indexed repositories
  query    Run dependency, architecture, context, or search queries
  status   Show status of indexed repositories
  repos    List or remove indexed repositories

Global Options:
  --config     Path to codegraph.yaml (default: discovered upward)
  --json       Machine-readable JSON output
  --no-color   Disable colored output
  -q, --quiet  Suppress progress output
  -v, --verbose  Debug logging
  --version    Show version and exit

Environment Variables:
  NEO4J_URI, NEO4J_USERNAME, NEO4J_PASSWORD   Graph store connection
  CHROMA_URL                                  Vector store URL
  OLLAMA_BASE_URL, OLLAMA_EMBED_MODEL         Embedding provider

For detailed command help: codegraph <command> --help

`)
}

func main() {
	globals := GlobalFlags{}
	showVersion := false

	fs := flag.NewFlagSet("codegraph", flag.ExitOnError)
	fs.StringVar(&globals.ConfigPath, "config", "", "Path to codegraph.yaml")
	fs.BoolVar(&globals.JSON, "json", false, "Machine-readable JSON output")
	fs.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress progress output")
	fs.BoolVarP(&globals.Verbose, "verbose", "v", false, "Debug logging")
	fs.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&showVersion, "version", false, "Show version and exit")
	fs.SetInterspersed(false)
	fs.Usage = usage

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if showVersion {
		fmt.Printf("codegraph version %s (commit %s)\n", version, commit)
		return
	}

	// JSON output implies no progress noise on the terminal.
	if globals.JSON {
		globals.Quiet = true
	}
	ui.InitColors(globals.NoColor)
	initLogging(globals)

	args := fs.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "index":
		runIndex(cmdArgs, globals)
	case "update":
		runUpdate(cmdArgs, globals)
	case "query":
		runQuery(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "repos":
		runRepos(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// initLogging routes slog to stderr. Default level hides the stores'
// operational chatter unless --verbose asks for it.
func initLogging(globals GlobalFlags) {
	level := slog.LevelWarn
	if globals.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig loads configuration or exits with a formatted error.
func loadConfig(globals GlobalFlags) *config.Config {
	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		cgerrors.FatalError(err, globals.JSON)
	}
	return cfg
}
