// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package coordinator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// emptyTreeSHA is git's well-known empty tree, used as the base when no
// commit has been indexed yet so every file shows up as added.
const emptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Delta is the file-level difference between two commits. Renames are
// already decomposed into a delete of the old path plus an add of the
// new one.
type Delta struct {
	BaseSHA  string
	HeadSHA  string
	Added    []string
	Modified []string
	Deleted  []string
}

// Empty reports whether the delta carries no changes.
func (d *Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// DeltaSource resolves commits and computes file-level diffs for one
// repository working copy.
type DeltaSource interface {
	IsGitRepository(ctx context.Context) bool
	HeadSHA(ctx context.Context) (string, error)
	Diff(ctx context.Context, baseSHA, headSHA string) (*Delta, error)
}

// GitDeltaSource shells out to git for diffs. Rename detection uses
// git's similarity matching (-M).
type GitDeltaSource struct {
	repoPath string
	logger   *slog.Logger
}

// NewGitDeltaSource creates a delta source over a local clone.
func NewGitDeltaSource(repoPath string, logger *slog.Logger) *GitDeltaSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitDeltaSource{repoPath: repoPath, logger: logger}
}

// IsGitRepository reports whether the path is inside a git work tree.
func (g *GitDeltaSource) IsGitRepository(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--git-dir")
	cmd.Dir = g.repoPath
	return cmd.Run() == nil
}

// HeadSHA resolves HEAD to a full commit sha.
func (g *GitDeltaSource) HeadSHA(ctx context.Context) (string, error) {
	return g.resolveRef(ctx, "HEAD")
}

func (g *GitDeltaSource) resolveRef(ctx context.Context, ref string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", ref)
	cmd.Dir = g.repoPath

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", cgerrors.Newf(cgerrors.CodeFileOperation,
				"git rev-parse %s: %s", ref, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", cgerrors.Wrap(cgerrors.CodeFileOperation, "git rev-parse", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Diff computes the file-level delta between two commits. An empty
// baseSHA compares against the empty tree so everything is added; an
// empty headSHA means HEAD.
func (g *GitDeltaSource) Diff(ctx context.Context, baseSHA, headSHA string) (*Delta, error) {
	if headSHA == "" {
		headSHA = "HEAD"
	}
	head, err := g.resolveRef(ctx, headSHA)
	if err != nil {
		return nil, err
	}

	base := baseSHA
	if base == "" {
		base = emptyTreeSHA
	} else if base, err = g.resolveRef(ctx, base); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "git", "diff", "--name-status", "-M", base, head)
	cmd.Dir = g.repoPath

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, cgerrors.Newf(cgerrors.CodeFileOperation,
				"git diff: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, cgerrors.Wrap(cgerrors.CodeFileOperation, "git diff", err)
	}

	delta := parseNameStatus(out)
	delta.BaseSHA = base
	delta.HeadSHA = head

	g.logger.Info("coordinator.delta.complete",
		"base_sha", shortSHA(base),
		"head_sha", shortSHA(head),
		"added", len(delta.Added),
		"modified", len(delta.Modified),
		"deleted", len(delta.Deleted),
	)
	return delta, nil
}

// parseNameStatus parses `git diff --name-status -M` output. Renames
// (R###) become delete+add, copies (C###) become add.
func parseNameStatus(out []byte) *Delta {
	delta := &Delta{}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "\t")
		if len(parts) < 2 {
			continue
		}
		paths := parts[1:]
		for i, p := range paths {
			paths[i] = unquoteGitPath(p)
		}

		switch parts[0][0] {
		case 'A':
			delta.Added = append(delta.Added, paths[0])
		case 'M':
			delta.Modified = append(delta.Modified, paths[0])
		case 'D':
			delta.Deleted = append(delta.Deleted, paths[0])
		case 'R':
			if len(paths) >= 2 {
				delta.Deleted = append(delta.Deleted, paths[0])
				delta.Added = append(delta.Added, paths[1])
			}
		case 'C':
			if len(paths) >= 2 {
				delta.Added = append(delta.Added, paths[1])
			}
		}
	}

	sort.Strings(delta.Added)
	sort.Strings(delta.Modified)
	sort.Strings(delta.Deleted)
	return delta
}

// unquoteGitPath strips git's quoting of paths with special characters.
func unquoteGitPath(path string) string {
	if len(path) < 2 || path[0] != '"' || path[len(path)-1] != '"' {
		return path
	}
	unquoted := path[1 : len(path)-1]
	replacer := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`)
	return replacer.Replace(unquoted)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
