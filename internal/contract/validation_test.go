// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-only

package contract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"plain label", "Repository", true},
		{"with digits", "File2", true},
		{"with underscore", "HAS_CHUNK", true},
		{"lowercase", "imports", true},
		{"empty", "", false},
		{"leading digit", "2File", false},
		{"leading underscore", "_File", false},
		{"semicolon injection", "Foo; DROP", false},
		{"whitespace", "File Node", false},
		{"backtick", "File`", false},
		{"unicode", "Файл", false},
		{"too long", strings.Repeat("A", MaxIdentifierBytes+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIdentifier(tt.input))
		})
	}
}

func TestCheckLabelErrorCode(t *testing.T) {
	err := CheckLabel("Foo; DROP")
	assert.Equal(t, cgerrors.CodeValidation, cgerrors.CodeOf(err))
	assert.NoError(t, CheckLabel("Chunk"))
}

func TestCheckRelationshipTypes(t *testing.T) {
	assert.NoError(t, CheckRelationshipTypes([]string{"IMPORTS", "CALLS", "REFERENCES"}))
	err := CheckRelationshipTypes([]string{"IMPORTS", "MATCH (n) DETACH DELETE n"})
	assert.Equal(t, cgerrors.CodeValidation, cgerrors.CodeOf(err))
}
