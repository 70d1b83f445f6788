// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package parser extracts entities, imports, exports, and call sites
// from source files using Tree-sitter.
//
// TypeScript, JavaScript, and their JSX variants parse in-process. C#
// parses out of process and only when its toolchain is present. The
// parser is error-tolerant: files with syntax errors still produce a
// result with whatever could be recovered, plus the error locations.
package parser

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// Options configures parsing limits and extraction behavior.
type Options struct {
	// MaxFileSizeBytes rejects files larger than this (default 1MiB).
	MaxFileSizeBytes int64

	// TimeoutMs bounds one parse (default 10s).
	TimeoutMs int64

	// IncludeAnonymous extracts anonymous functions under the synthetic
	// name "<anonymous>".
	IncludeAnonymous bool

	// ExtractDocumentation captures leading doc-comment blocks.
	ExtractDocumentation bool
}

func (o Options) withDefaults() Options {
	if o.MaxFileSizeBytes <= 0 {
		o.MaxFileSizeBytes = 1 << 20
	}
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 10_000
	}
	return o
}

// extensionLanguages maps file extensions to languages.
var extensionLanguages = map[string]string{
	".ts":  LangTypeScript,
	".mts": LangTypeScript,
	".cts": LangTypeScript,
	".tsx": LangTSX,
	".js":  LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
	".jsx": LangJSX,
	".cs":  LangCSharp,
}

// Parser turns source files into ParseResults. Safe for concurrent use;
// each parse gets its own Tree-sitter parser instance.
type Parser struct {
	opts   Options
	logger *slog.Logger
	csharp *CSharpParser
}

// New creates a parser with the given options.
func New(opts Options, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Parser{
		opts:   opts,
		logger: logger,
		csharp: NewCSharpParser(opts, logger),
	}
}

// DetectLanguage infers the language from the filename extension.
func DetectLanguage(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	lang, ok := extensionLanguages[ext]
	if !ok {
		return "", cgerrors.Newf(cgerrors.CodeLanguageUnsupported,
			"unsupported file extension %q", ext)
	}
	return lang, nil
}

// Supported reports whether the filename maps to a supported language.
// C# counts only when its toolchain is available.
func (p *Parser) Supported(filename string) bool {
	lang, err := DetectLanguage(filename)
	if err != nil {
		return false
	}
	if lang == LangCSharp {
		return p.csharp.Available()
	}
	return true
}

// Parse extracts everything from one file. Hard failures return a typed
// error; recoverable syntax errors land in the result's Errors list
// with Success still true.
func (p *Parser) Parse(ctx context.Context, content []byte, filename string) (*ParseResult, error) {
	lang, err := DetectLanguage(filename)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > p.opts.MaxFileSizeBytes {
		return nil, cgerrors.Newf(cgerrors.CodeFileTooLarge,
			"%s is %d bytes, limit is %d", filename, len(content), p.opts.MaxFileSizeBytes)
	}

	if lang == LangCSharp {
		return p.csharp.Parse(ctx, content, filename)
	}

	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, time.Duration(p.opts.TimeoutMs)*time.Millisecond)
	defer cancel()

	tree, err := p.parseTree(pctx, content, lang)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return nil, cgerrors.Wrap(cgerrors.CodeParseTimeout,
				"parse "+filename, err)
		}
		return nil, cgerrors.Wrap(cgerrors.CodeParserInit, "parse "+filename, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	ext := newExtractor(content, lang, p.opts)
	ext.walk(root)

	result := &ParseResult{
		Entities:    ext.entities,
		Imports:     ext.imports,
		Exports:     ext.exports,
		Calls:       ext.calls,
		Errors:      collectSyntaxErrors(root),
		Language:    lang,
		ParseTimeMs: time.Since(start).Milliseconds(),
		Success:     true,
	}

	if len(result.Errors) > 0 {
		p.logger.Warn("parser.syntax_errors",
			"path", filename, "error_count", len(result.Errors))
	}
	p.logger.Debug("parser.parse.complete",
		"path", filename, "language", lang,
		"entities", len(result.Entities), "calls", len(result.Calls),
		"duration_ms", result.ParseTimeMs)
	return result, nil
}

func (p *Parser) parseTree(ctx context.Context, content []byte, lang string) (*sitter.Tree, error) {
	sp := sitter.NewParser()
	defer sp.Close()

	switch lang {
	case LangTypeScript:
		sp.SetLanguage(typescript.GetLanguage())
	case LangTSX:
		sp.SetLanguage(tsx.GetLanguage())
	case LangJavaScript, LangJSX:
		// The JS grammar handles JSX natively.
		sp.SetLanguage(javascript.GetLanguage())
	default:
		return nil, cgerrors.Newf(cgerrors.CodeLanguageUnsupported, "no grammar for %q", lang)
	}

	return sp.ParseCtx(ctx, nil, content)
}

// collectSyntaxErrors walks the tree and reports every error and
// missing node. All such errors are recoverable; Tree-sitter produced a
// tree around them.
func collectSyntaxErrors(root *sitter.Node) []ParseError {
	if root == nil || !root.HasError() {
		return nil
	}
	var errs []ParseError
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.IsError() || n.IsMissing() {
			msg := "syntax error"
			if n.IsMissing() {
				msg = "missing " + n.Type()
			}
			errs = append(errs, ParseError{
				Line:        int(n.StartPoint().Row) + 1,
				Column:      int(n.StartPoint().Column) + 1,
				Message:     msg,
				Recoverable: true,
			})
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
	return errs
}
