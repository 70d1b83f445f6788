// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package graphstore

import (
	"context"

	"github.com/kraklabs/codegraph/internal/contract"
	cgerrors "github.com/kraklabs/codegraph/internal/errors"
)

// NodeRef identifies a node by kind and human-facing identifier rather
// than by internal id. The identifier is matched against the node's id,
// name, or path property, whichever the kind carries.
type NodeRef struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Repository string `json:"repository,omitempty"`
}

func (r NodeRef) validate() error {
	if err := contract.CheckLabel(r.Type); err != nil {
		return err
	}
	if r.Identifier == "" {
		return cgerrors.New(cgerrors.CodeInvalidParameters, "node reference identifier must not be empty")
	}
	return nil
}

// resolveRefs maps references to internal node ids in a single batched
// query. Labels cannot travel as bound parameters, so each ref's type is
// compared against labels(n) instead; the values themselves stay bound.
// References that match nothing are simply absent from the result.
func (c *Client) resolveRefs(ctx context.Context, refs []NodeRef) (map[NodeRef]string, error) {
	if len(refs) == 0 {
		return map[NodeRef]string{}, nil
	}

	rows := make([]map[string]any, 0, len(refs))
	for i, ref := range refs {
		if err := ref.validate(); err != nil {
			return nil, err
		}
		rows = append(rows, map[string]any{
			"idx":        int64(i),
			"label":      ref.Type,
			"identifier": ref.Identifier,
			"repository": ref.Repository,
		})
	}

	query := `
UNWIND $refs AS ref
MATCH (n)
WHERE ref.label IN labels(n)
  AND (n.id = ref.identifier OR n.name = ref.identifier OR n.path = ref.identifier)
  AND (ref.repository = '' OR n.repository = ref.repository OR n.name = ref.repository)
RETURN ref.idx AS idx, n.id AS id`

	records, err := c.Read(ctx, query, map[string]any{"refs": rows})
	if err != nil {
		return nil, err
	}

	resolved := make(map[NodeRef]string, len(refs))
	for _, rec := range records {
		idx, ok := rec.Values[0].(int64)
		if !ok || idx < 0 || int(idx) >= len(refs) {
			continue
		}
		id, ok := rec.Values[1].(string)
		if !ok {
			continue
		}
		ref := refs[idx]
		if _, seen := resolved[ref]; !seen {
			resolved[ref] = id
		}
	}
	return resolved, nil
}

// resolveRef resolves a single reference, failing with NODE_NOT_FOUND
// when nothing matches.
func (c *Client) resolveRef(ctx context.Context, ref NodeRef) (string, error) {
	resolved, err := c.resolveRefs(ctx, []NodeRef{ref})
	if err != nil {
		return "", err
	}
	id, ok := resolved[ref]
	if !ok {
		return "", cgerrors.Newf(cgerrors.CodeNodeNotFound,
			"no %s node matching %q", ref.Type, ref.Identifier)
	}
	return id, nil
}
