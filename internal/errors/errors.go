// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for codegraph.
//
// Every error that crosses a component boundary carries a stable code
// string so that callers (CLI, MCP server, tests) can branch on the
// failure class without string matching. Errors wrap their underlying
// cause and are compatible with errors.Is / errors.As.
//
// Creating and inspecting errors:
//
//	err := errors.Wrap(errors.CodeConnection, "connect to graph store", cause)
//	if errors.CodeOf(err) == errors.CodeConnection { ... }
//
// # Exit Codes
//
// For CLI use, each code maps to a semantic exit code following Unix
// conventions:
//   - ExitSuccess (0): Successful execution
//   - ExitConfig (1): Configuration errors
//   - ExitStore (2): Graph or vector store errors
//   - ExitNetwork (3): Network/API errors (connection failed, timeout)
//   - ExitInput (4): Invalid user input (bad arguments, validation errors)
//   - ExitNotFound (6): Resource not found (repository, node, collection)
//   - ExitInternal (10): Internal errors (bugs, panics)
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Code identifies a stable error class surfaced at component boundaries.
type Code string

// The closed set of error codes. New codes are added here, never inline.
const (
	CodeConnection          Code = "CONNECTION_ERROR"
	CodeHealthCheck         Code = "HEALTH_CHECK_FAILED"
	CodeCollectionNotFound  Code = "COLLECTION_NOT_FOUND"
	CodeCollectionOperation Code = "COLLECTION_OPERATION_ERROR"
	CodeCollectionDelete    Code = "COLLECTION_DELETE_ERROR"
	CodeCollectionList      Code = "COLLECTION_LIST_ERROR"
	CodeCollectionStats     Code = "COLLECTION_STATS_ERROR"
	CodeInvalidParameters   Code = "INVALID_PARAMETERS"
	CodeDocumentOperation   Code = "DOCUMENT_OPERATION_ERROR"
	CodeSearchOperation     Code = "SEARCH_OPERATION_ERROR"
	CodeTimeout             Code = "TIMEOUT_ERROR"
	CodeGraph               Code = "GRAPH_ERROR"
	CodeNodeNotFound        Code = "NODE_NOT_FOUND"
	CodeRepositoryExists    Code = "REPOSITORY_EXISTS"
	CodeRepositoryMetadata  Code = "REPOSITORY_METADATA_ERROR"
	CodeFileOperation       Code = "FILE_OPERATION_ERROR"
	CodeInvalidMetadata     Code = "INVALID_METADATA_FORMAT"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeLanguageUnsupported Code = "LANGUAGE_NOT_SUPPORTED"
	CodeParserInit          Code = "PARSER_INITIALIZATION_ERROR"
	CodeParseTimeout        Code = "PARSE_TIMEOUT_ERROR"
	CodeFileTooLarge        Code = "FILE_TOO_LARGE_ERROR"
	CodeExtraction          Code = "EXTRACTION_ERROR"
)

// Exit codes for different error categories.
const (
	ExitSuccess  = 0
	ExitConfig   = 1
	ExitStore    = 2
	ExitNetwork  = 3
	ExitInput    = 4
	ExitNotFound = 6
	ExitInternal = 10
)

// Error is a typed error with a stable code and an optional cause.
type Error struct {
	// Code is the stable error class.
	Code Code

	// Message describes what went wrong.
	Message string

	// Err is the underlying error that caused this one (optional).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with the given code and a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with the given code wrapping an underlying cause.
// A nil cause behaves like New.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the stable code from an error chain.
// Returns "" for nil or untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// transientCodes are the codes retried by the retry harness.
// Validation, not-found, and parser failures are permanent.
var transientCodes = map[Code]bool{
	CodeConnection:  true,
	CodeTimeout:     true,
	CodeHealthCheck: true,
}

// IsTransient reports whether the error represents a transient failure
// worth retrying: typed transient codes, or untyped network-ish errors
// from drivers and net/http classified by message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if c := CodeOf(err); c != "" {
		return transientCodes[c]
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"deadline exceeded",
		"temporarily unavailable",
		"eof",
		"status 502",
		"status 503",
		"status 504",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// exitCodeFor maps an error code to a CLI exit code.
func exitCodeFor(code Code) int {
	switch code {
	case CodeConnection, CodeHealthCheck, CodeTimeout:
		return ExitNetwork
	case CodeInvalidParameters, CodeValidation, CodeLanguageUnsupported,
		CodeFileTooLarge, CodeRepositoryExists:
		return ExitInput
	case CodeNodeNotFound, CodeCollectionNotFound:
		return ExitNotFound
	case CodeGraph, CodeCollectionOperation, CodeCollectionDelete,
		CodeCollectionList, CodeCollectionStats, CodeDocumentOperation,
		CodeSearchOperation, CodeRepositoryMetadata, CodeFileOperation,
		CodeInvalidMetadata:
		return ExitStore
	default:
		return ExitInternal
	}
}

// ExitCode returns the CLI exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if c := CodeOf(err); c != "" {
		return exitCodeFor(c)
	}
	return ExitInternal
}

// Color definitions for error formatting.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCode  = color.New(color.FgYellow)
)

// Format returns a formatted error message for terminal display.
//
// Color output respects the NO_COLOR environment variable and can be
// explicitly disabled with the noColor parameter.
func Format(err error, noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	var e *Error
	if errors.As(err, &e) {
		out.WriteString(e.Message)
		if e.Err != nil {
			out.WriteString(": ")
			out.WriteString(e.Err.Error())
		}
		out.WriteString("\n")
		out.WriteString(colorCode.Sprint("Code:  "))
		out.WriteString(string(e.Code))
	} else {
		out.WriteString(err.Error())
	}
	out.WriteString("\n")
	return out.String()
}

// ErrorJSON represents error information in JSON format.
type ErrorJSON struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts an error to a JSON-serializable structure.
func ToJSON(err error) ErrorJSON {
	var e *Error
	if errors.As(err, &e) {
		return ErrorJSON{
			Error:    e.Message,
			Code:     string(e.Code),
			ExitCode: exitCodeFor(e.Code),
		}
	}
	return ErrorJSON{Error: err.Error(), ExitCode: ExitInternal}
}

// FatalError prints the error and exits with the appropriate code.
// This function never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		// Encode error is intentionally ignored since we're about to exit.
		_ = enc.Encode(ToJSON(err))
	} else {
		fmt.Fprint(os.Stderr, Format(err, false))
	}
	os.Exit(ExitCode(err))
}
