// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package output handles machine-readable CLI output.
//
// Every codegraph command that accepts --json emits its result through
// this package so the format stays consistent: pretty JSON on stdout
// for results, a {error, code} object on stderr for failures.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// JSON writes data as indented JSON to stdout.
func JSON(data any) error {
	return JSONTo(os.Stdout, data)
}

// JSONTo writes data as indented JSON to w.
func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode JSON output: %w", err)
	}
	return nil
}

// JSONCompact writes data as single-line JSON to stdout, for streaming
// consumers.
func JSONCompact(data any) error {
	return JSONCompactTo(os.Stdout, data)
}

// JSONCompactTo writes data as single-line JSON to w.
func JSONCompactTo(w io.Writer, data any) error {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("encode JSON output: %w", err)
	}
	return nil
}

// ErrorJSON is the machine-readable error shape. Code carries the typed
// error kind when the error has one.
type ErrorJSON struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSONError writes an error as JSON to stderr.
func JSONError(err error) error {
	return JSONErrorTo(os.Stderr, err)
}

// JSONErrorTo writes an error as JSON to w.
func JSONErrorTo(w io.Writer, err error) error {
	obj := ErrorJSON{Error: err.Error(), Code: string(cgerrors.CodeOf(err))}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(obj); encErr != nil {
		return fmt.Errorf("encode JSON error: %w", encErr)
	}
	return nil
}
