// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// csharpHelperEnv overrides the helper binary used for C# extraction.
const csharpHelperEnv = "CODEGRAPH_CSHARP_HELPER"

// defaultCSharpHelper is the extraction helper expected on PATH. It
// reads source on stdin and writes a ParseResult as JSON on stdout.
const defaultCSharpHelper = "codegraph-csharp"

// CSharpParser extracts C# entities by shelling out to a Roslyn-based
// helper. The helper is only invoked when it is actually present;
// availability is probed once and cached.
type CSharpParser struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	probed    bool
	available bool
	helper    string
}

// NewCSharpParser creates the out-of-process parser. Nothing is probed
// until the first Available or Parse call.
func NewCSharpParser(opts Options, logger *slog.Logger) *CSharpParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSharpParser{opts: opts.withDefaults(), logger: logger}
}

// Available reports whether the extraction helper can be invoked. The
// probe result is cached for the process lifetime.
func (p *CSharpParser) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probed {
		return p.available
	}
	p.probed = true

	helper := os.Getenv(csharpHelperEnv)
	if helper == "" {
		helper = defaultCSharpHelper
	}
	path, err := exec.LookPath(helper)
	if err != nil {
		p.logger.Debug("parser.csharp.unavailable", "helper", helper)
		return false
	}
	p.helper = path
	p.available = true
	p.logger.Debug("parser.csharp.available", "helper", path)
	return true
}

// ResetProbe clears the cached availability so the next call probes
// again. Used when the environment changes under a running process.
func (p *CSharpParser) ResetProbe() {
	p.mu.Lock()
	p.probed = false
	p.available = false
	p.helper = ""
	p.mu.Unlock()
}

// Parse runs the helper on the file content. Helper output is a
// ParseResult in JSON; its Language and Success fields are normalized
// here so a sloppy helper cannot corrupt the contract.
func (p *CSharpParser) Parse(ctx context.Context, content []byte, filename string) (*ParseResult, error) {
	if !p.Available() {
		return nil, cgerrors.New(cgerrors.CodeLanguageUnsupported,
			"csharp toolchain not detected")
	}
	p.mu.Lock()
	helper := p.helper
	p.mu.Unlock()

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, time.Duration(p.opts.TimeoutMs)*time.Millisecond)
	defer cancel()

	cmd := exec.CommandContext(cctx, helper, "--file", filename)
	cmd.Stdin = bytes.NewReader(content)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, cgerrors.Wrap(cgerrors.CodeParseTimeout, "csharp parse "+filename, err)
		}
		return nil, cgerrors.Wrap(cgerrors.CodeExtraction,
			"csharp helper failed: "+stderr.String(), err)
	}

	var result ParseResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, cgerrors.Wrap(cgerrors.CodeExtraction, "decode csharp helper output", err)
	}
	result.Language = LangCSharp
	result.ParseTimeMs = time.Since(start).Milliseconds()
	result.Success = true
	return &result, nil
}
