// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-only

// Package contract holds cross-component validation rules shared by the
// stores and the ingestion pipeline.
package contract

import (
	"regexp"

	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// identifierPattern is the only shape ever allowed for labels and
// relationship type names composed into graph queries. Everything else
// is bound as a parameter, so this pattern is the injection boundary.
var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// MaxIdentifierBytes bounds label and relationship-type names.
const MaxIdentifierBytes = 128

// ValidIdentifier reports whether s may be used as a label or
// relationship type name.
func ValidIdentifier(s string) bool {
	return len(s) > 0 && len(s) <= MaxIdentifierBytes && identifierPattern.MatchString(s)
}

// CheckLabel returns a VALIDATION_ERROR when the label is not a safe
// graph identifier.
func CheckLabel(label string) error {
	if !ValidIdentifier(label) {
		return cgerrors.Newf(cgerrors.CodeValidation, "invalid node label %q", label)
	}
	return nil
}

// CheckRelationshipType returns a VALIDATION_ERROR when the
// relationship type is not a safe graph identifier.
func CheckRelationshipType(relType string) error {
	if !ValidIdentifier(relType) {
		return cgerrors.Newf(cgerrors.CodeValidation, "invalid relationship type %q", relType)
	}
	return nil
}

// CheckRelationshipTypes validates a list of relationship types.
func CheckRelationshipTypes(relTypes []string) error {
	for _, rt := range relTypes {
		if err := CheckRelationshipType(rt); err != nil {
			return err
		}
	}
	return nil
}
