// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(CodeValidation, "bad label")
	assert.Equal(t, "VALIDATION_ERROR: bad label", err.Error())

	wrapped := Wrap(CodeConnection, "connect to graph store", fmt.Errorf("dial tcp: refused"))
	assert.Equal(t, "CONNECTION_ERROR: connect to graph store: dial tcp: refused", wrapped.Error())
}

func TestUnwrapChain(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := Wrap(CodeGraph, "run query", cause)

	require.ErrorIs(t, err, cause)

	var typed *Error
	require.ErrorAs(t, fmt.Errorf("outer: %w", err), &typed)
	assert.Equal(t, CodeGraph, typed.Code)
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"untyped", errors.New("plain"), ""},
		{"typed", New(CodeRepositoryExists, "demo exists"), CodeRepositoryExists},
		{"wrapped typed", fmt.Errorf("ctx: %w", New(CodeTimeout, "slow")), CodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed connection", New(CodeConnection, "down"), true},
		{"typed timeout", New(CodeTimeout, "slow"), true},
		{"typed validation", New(CodeValidation, "bad"), false},
		{"typed not found", New(CodeNodeNotFound, "missing"), false},
		{"untyped reset", errors.New("read: connection reset by peer"), true},
		{"untyped dns", errors.New("lookup graph.local: no such host"), true},
		{"untyped 503", errors.New("request failed (status 503): busy"), true},
		{"untyped parse", errors.New("unexpected token"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitNetwork, ExitCode(New(CodeConnection, "down")))
	assert.Equal(t, ExitInput, ExitCode(New(CodeRepositoryExists, "demo")))
	assert.Equal(t, ExitNotFound, ExitCode(New(CodeCollectionNotFound, "repo_demo")))
	assert.Equal(t, ExitStore, ExitCode(New(CodeGraph, "boom")))
	assert.Equal(t, ExitInternal, ExitCode(errors.New("plain")))
}

func TestToJSON(t *testing.T) {
	j := ToJSON(New(CodeValidation, "label rejected"))
	assert.Equal(t, "label rejected", j.Error)
	assert.Equal(t, "VALIDATION_ERROR", j.Code)
	assert.Equal(t, ExitInput, j.ExitCode)

	plain := ToJSON(errors.New("boom"))
	assert.Empty(t, plain.Code)
	assert.Equal(t, ExitInternal, plain.ExitCode)
}

func TestFormatNoColor(t *testing.T) {
	out := Format(Wrap(CodeGraph, "run query", errors.New("socket closed")), true)
	assert.Contains(t, out, "Error: run query: socket closed")
	assert.Contains(t, out, "Code:  GRAPH_ERROR")
}
