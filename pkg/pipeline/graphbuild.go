// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pipeline

import (
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/kraklabs/codegraph/pkg/graphstore"
	"github.com/kraklabs/codegraph/pkg/parser"
)

// indexCandidates are the extensions tried when resolving a relative
// import that omits one.
var indexCandidates = []string{".ts", ".tsx", ".js", ".jsx", ".mts", ".cts", ".mjs", ".cjs"}

// graphBuilder accumulates the node rows and edges for one repository.
// Duplicate node ids collapse to the last occurrence, mirroring MERGE.
type graphBuilder struct {
	repository string
	knownPaths map[string]bool

	fileNodes     []graphstore.NodeRow
	entityNodes   map[string][]graphstore.NodeRow
	modules       map[string]bool
	relationships map[string][]graphstore.Relationship
	seenNodes     map[string]bool
}

func newGraphBuilder(repository string, knownPaths map[string]bool) *graphBuilder {
	return &graphBuilder{
		repository:    repository,
		knownPaths:    knownPaths,
		entityNodes:   map[string][]graphstore.NodeRow{},
		modules:       map[string]bool{},
		relationships: map[string][]graphstore.Relationship{},
		seenNodes:     map[string]bool{},
	}
}

func normalizeIngestPath(p string) string {
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(path.Clean(p), "/")
}

// addFile folds one file's parse output into the pending graph. A nil
// parse result still produces the File node and CONTAINS edge, which is
// what non-code files get.
func (b *graphBuilder) addFile(input FileInput, result *parser.ParseResult) {
	filePath := normalizeIngestPath(input.Path)
	fileID := graphstore.FileID(b.repository, filePath)

	fileProps := map[string]any{
		"id":         fileID,
		"path":       filePath,
		"repository": b.repository,
		"extension":  strings.TrimPrefix(path.Ext(filePath), "."),
		"sizeBytes":  input.SizeBytes,
	}
	if !input.ModifiedAt.IsZero() {
		fileProps["modifiedAt"] = input.ModifiedAt.UTC().Format(time.RFC3339)
	}
	b.addNode(&b.fileNodes, graphstore.NodeRow{ID: fileID, Props: fileProps})

	b.addRel(graphstore.RelContains, graphstore.Relationship{
		FromID: graphstore.RepositoryID(b.repository),
		ToID:   fileID,
		Type:   graphstore.RelContains,
	})

	if result == nil {
		return
	}

	// Function name to node id, for in-file call resolution.
	funcIDs := map[string]string{}

	for _, ent := range result.Entities {
		label, id := b.entityNode(filePath, ent)
		if label == "" {
			continue
		}
		props := entityProps(b.repository, filePath, ent, id)
		rows := b.entityNodes[label]
		b.addNode(&rows, graphstore.NodeRow{ID: id, Props: props})
		b.entityNodes[label] = rows

		b.addRel(graphstore.RelDefines, graphstore.Relationship{
			FromID: fileID, ToID: id, Type: graphstore.RelDefines,
		})
		if label == graphstore.LabelFunction {
			funcIDs[ent.Name] = id
		}
	}

	for _, imp := range result.Imports {
		if imp.IsRelative {
			if target := b.resolveRelative(filePath, imp.Source); target != "" {
				b.addRel(graphstore.RelReferences, graphstore.Relationship{
					FromID: fileID,
					ToID:   graphstore.FileID(b.repository, target),
					Type:   graphstore.RelReferences,
				})
			}
			continue
		}

		b.modules[imp.Source] = true
		props := map[string]any{
			"isRelative": imp.IsRelative,
			"isTypeOnly": imp.IsTypeOnly,
		}
		if imp.DefaultImport != "" {
			props["defaultImport"] = imp.DefaultImport
		}
		if len(imp.ImportedNames) > 0 {
			props["importedNames"] = imp.ImportedNames
		}
		if len(imp.Aliases) > 0 {
			if encoded, err := json.Marshal(imp.Aliases); err == nil {
				props["aliases"] = string(encoded)
			}
		}
		b.addRel(graphstore.RelImports, graphstore.Relationship{
			FromID: fileID,
			ToID:   graphstore.ModuleID(imp.Source),
			Type:   graphstore.RelImports,
			Props:  props,
		})
	}

	for _, call := range result.Calls {
		fromID, ok := funcIDs[call.CallerName]
		if !ok {
			continue
		}
		toID, ok := funcIDs[call.CalledName]
		if !ok {
			continue
		}
		b.addRel(graphstore.RelCalls, graphstore.Relationship{
			FromID: fromID,
			ToID:   toID,
			Type:   graphstore.RelCalls,
			Props: map[string]any{
				"isAsync":    call.IsAsync,
				"callerName": call.CallerName,
			},
		})
	}
}

func (b *graphBuilder) addNode(rows *[]graphstore.NodeRow, row graphstore.NodeRow) {
	if b.seenNodes[row.ID] {
		return
	}
	b.seenNodes[row.ID] = true
	*rows = append(*rows, row)
}

func (b *graphBuilder) addRel(relType string, rel graphstore.Relationship) {
	b.relationships[relType] = append(b.relationships[relType], rel)
}

func (b *graphBuilder) entityNode(filePath string, ent parser.Entity) (label, id string) {
	switch ent.Kind {
	case parser.KindFunction, parser.KindMethod:
		if ent.Name == parser.AnonymousName {
			return "", ""
		}
		return graphstore.LabelFunction,
			graphstore.FunctionID(b.repository, filePath, ent.Name, ent.LineStart)
	case parser.KindClass:
		return graphstore.LabelClass, graphstore.TypeID(graphstore.LabelClass, b.repository, filePath, ent.Name)
	case parser.KindInterface:
		return graphstore.LabelInterface, graphstore.TypeID(graphstore.LabelInterface, b.repository, filePath, ent.Name)
	case parser.KindEnum:
		return graphstore.LabelEnum, graphstore.TypeID(graphstore.LabelEnum, b.repository, filePath, ent.Name)
	case parser.KindTypeAlias:
		return graphstore.LabelTypeAlias, graphstore.TypeID(graphstore.LabelTypeAlias, b.repository, filePath, ent.Name)
	default:
		return "", ""
	}
}

func entityProps(repository, filePath string, ent parser.Entity, id string) map[string]any {
	props := map[string]any{
		"id":         id,
		"name":       ent.Name,
		"repository": repository,
		"filePath":   filePath,
		"lineStart":  ent.LineStart,
		"lineEnd":    ent.LineEnd,
		"isExported": ent.IsExported,
	}

	switch ent.Kind {
	case parser.KindFunction, parser.KindMethod:
		props["isAsync"] = ent.IsAsync
		props["isGenerator"] = ent.IsGenerator
		props["isStatic"] = ent.IsStatic
		if ent.ReturnType != "" {
			props["returnType"] = ent.ReturnType
		}
		if len(ent.Parameters) > 0 {
			if encoded, err := json.Marshal(ent.Parameters); err == nil {
				props["parameters"] = string(encoded)
			}
		}
	case parser.KindClass, parser.KindInterface:
		props["isAbstract"] = ent.IsAbstract
		if ent.Extends != "" {
			props["extends"] = ent.Extends
		}
		if len(ent.Implements) > 0 {
			props["implements"] = ent.Implements
		}
		if len(ent.TypeParameters) > 0 {
			props["typeParameters"] = ent.TypeParameters
		}
	}

	if ent.Documentation != "" {
		props["documentation"] = ent.Documentation
	}
	return props
}

// moduleNodes materializes one node row per distinct external package.
func (b *graphBuilder) moduleNodes() []graphstore.NodeRow {
	rows := make([]graphstore.NodeRow, 0, len(b.modules))
	for name := range b.modules {
		id := graphstore.ModuleID(name)
		rows = append(rows, graphstore.NodeRow{
			ID:    id,
			Props: map[string]any{"id": id, "name": name},
		})
	}
	return rows
}

// resolveRelative maps a relative import source to a known file path,
// trying the bare path, extension candidates, and index files.
func (b *graphBuilder) resolveRelative(fromPath, source string) string {
	base := normalizeIngestPath(path.Join(path.Dir(fromPath), source))

	if b.knownPaths[base] {
		return base
	}
	for _, ext := range indexCandidates {
		if b.knownPaths[base+ext] {
			return base + ext
		}
	}
	for _, ext := range indexCandidates {
		if candidate := base + "/index" + ext; b.knownPaths[candidate] {
			return candidate
		}
	}
	return ""
}
