// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// moduleCaller attributes top-level call sites.
const moduleCaller = "<module>"

// extractor walks one parsed tree and accumulates results. The walk
// carries the enclosing function name so call sites attribute to their
// nearest named caller.
type extractor struct {
	content []byte
	lang    string
	opts    Options

	entities []Entity
	imports  []Import
	exports  []Export
	calls    []Call
}

func newExtractor(content []byte, lang string, opts Options) *extractor {
	return &extractor{content: content, lang: lang, opts: opts}
}

func (e *extractor) walk(root *sitter.Node) {
	e.visit(root, moduleCaller)
}

func (e *extractor) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(e.content[n.StartByte():n.EndByte()])
}

func (e *extractor) visit(n *sitter.Node, caller string) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "function_signature":
		if ent := e.function(n, KindFunction, e.nameOf(n)); ent != nil {
			e.entities = append(e.entities, *ent)
			caller = ent.Name
		}

	case "method_definition", "abstract_method_signature", "method_signature":
		if ent := e.function(n, KindMethod, e.nameOf(n)); ent != nil {
			ent.IsStatic = hasChildToken(n, "static")
			ent.IsAbstract = n.Type() == "abstract_method_signature"
			e.entities = append(e.entities, *ent)
			caller = ent.Name
		}

	case "variable_declarator":
		if ent := e.declaratorFunction(n); ent != nil {
			e.entities = append(e.entities, *ent)
			caller = ent.Name
		}

	case "arrow_function", "function_expression", "function":
		if parent := n.Parent(); parent != nil && parent.Type() == "variable_declarator" {
			break // named through the declarator
		}
		if e.opts.IncludeAnonymous {
			if ent := e.function(n, KindFunction, AnonymousName); ent != nil {
				e.entities = append(e.entities, *ent)
				caller = AnonymousName
			}
		}

	case "class_declaration", "abstract_class_declaration":
		if ent := e.class(n); ent != nil {
			e.entities = append(e.entities, *ent)
		}

	case "interface_declaration":
		if ent := e.typeDecl(n, KindInterface); ent != nil {
			ent.Extends, ent.Implements = e.heritage(n)
			e.entities = append(e.entities, *ent)
		}

	case "enum_declaration":
		if ent := e.typeDecl(n, KindEnum); ent != nil {
			e.entities = append(e.entities, *ent)
		}

	case "type_alias_declaration":
		if ent := e.typeDecl(n, KindTypeAlias); ent != nil {
			e.entities = append(e.entities, *ent)
		}

	case "import_statement":
		e.importStmt(n)
		return

	case "export_statement":
		e.exportStmt(n)

	case "call_expression":
		if call := e.call(n, caller); call != nil {
			e.calls = append(e.calls, *call)
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		e.visit(n.NamedChild(i), caller)
	}
}

func (e *extractor) nameOf(n *sitter.Node) string {
	return e.text(n.ChildByFieldName("name"))
}

// function builds a function or method entity from any function-shaped
// node.
func (e *extractor) function(n *sitter.Node, kind, name string) *Entity {
	if name == "" {
		return nil
	}
	ent := &Entity{
		Name:        name,
		Kind:        kind,
		LineStart:   int(n.StartPoint().Row) + 1,
		LineEnd:     int(n.EndPoint().Row) + 1,
		IsExported:  e.isExported(n),
		IsAsync:     hasChildToken(n, "async"),
		IsGenerator: n.Type() == "generator_function_declaration" || hasChildToken(n, "*"),
		Parameters:  e.parameters(n),
		ReturnType:  trimTypeAnnotation(e.text(n.ChildByFieldName("return_type"))),
	}
	if e.opts.ExtractDocumentation {
		ent.Documentation = e.docComment(n)
	}
	return ent
}

// declaratorFunction names an arrow function or function expression
// after the variable that binds it.
func (e *extractor) declaratorFunction(n *sitter.Node) *Entity {
	nameNode := n.ChildByFieldName("name")
	value := n.ChildByFieldName("value")
	if nameNode == nil || value == nil {
		return nil
	}
	switch value.Type() {
	case "arrow_function", "function_expression", "function":
	default:
		return nil
	}

	ent := e.function(value, KindFunction, e.text(nameNode))
	if ent == nil {
		return nil
	}
	// The declarator line is where the reader looks for the function.
	ent.LineStart = int(n.StartPoint().Row) + 1
	ent.IsExported = e.isExported(n)
	if e.opts.ExtractDocumentation {
		ent.Documentation = e.docComment(n)
	}
	return ent
}

func (e *extractor) class(n *sitter.Node) *Entity {
	ent := e.typeDecl(n, KindClass)
	if ent == nil {
		return nil
	}
	ent.IsAbstract = n.Type() == "abstract_class_declaration"
	ent.Extends, ent.Implements = e.heritage(n)
	return ent
}

func (e *extractor) typeDecl(n *sitter.Node, kind string) *Entity {
	name := e.nameOf(n)
	if name == "" {
		return nil
	}
	ent := &Entity{
		Name:           name,
		Kind:           kind,
		LineStart:      int(n.StartPoint().Row) + 1,
		LineEnd:        int(n.EndPoint().Row) + 1,
		IsExported:     e.isExported(n),
		TypeParameters: e.typeParameters(n),
	}
	if e.opts.ExtractDocumentation {
		ent.Documentation = e.docComment(n)
	}
	return ent
}

// heritage pulls extends and implements out of a class or interface
// declaration. Classes keep a single extends name; interfaces may list
// several, of which the first becomes Extends and the rest Implements.
func (e *extractor) heritage(n *sitter.Node) (extends string, implements []string) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "class_heritage":
			for j := 0; j < int(child.ChildCount()); j++ {
				clause := child.Child(j)
				switch clause.Type() {
				case "extends_clause":
					if first := clause.NamedChild(0); first != nil {
						extends = e.text(first)
					}
				case "implements_clause":
					for k := 0; k < int(clause.NamedChildCount()); k++ {
						implements = append(implements, e.text(clause.NamedChild(k)))
					}
				}
			}
		case "extends_clause", "extends_type_clause":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				name := e.text(child.NamedChild(j))
				if extends == "" {
					extends = name
				} else {
					implements = append(implements, name)
				}
			}
		}
	}
	return extends, implements
}

func (e *extractor) typeParameters(n *sitter.Node) []string {
	tp := n.ChildByFieldName("type_parameters")
	if tp == nil {
		return nil
	}
	var params []string
	for i := 0; i < int(tp.NamedChildCount()); i++ {
		param := tp.NamedChild(i)
		if name := param.ChildByFieldName("name"); name != nil {
			params = append(params, e.text(name))
		} else {
			params = append(params, e.text(param))
		}
	}
	return params
}

// parameters handles both the TS grammar (required_parameter with
// pattern/type/value fields) and the JS grammar (bare identifiers,
// assignment patterns, rest parameters).
func (e *extractor) parameters(n *sitter.Node) []Parameter {
	list := n.ChildByFieldName("parameters")
	if list == nil {
		// Single-parameter arrow functions carry a bare identifier.
		if single := n.ChildByFieldName("parameter"); single != nil {
			return []Parameter{{Name: e.text(single)}}
		}
		return nil
	}

	var params []Parameter
	for i := 0; i < int(list.NamedChildCount()); i++ {
		pn := list.NamedChild(i)
		switch pn.Type() {
		case "required_parameter", "optional_parameter":
			param := Parameter{
				Type:       trimTypeAnnotation(e.text(pn.ChildByFieldName("type"))),
				HasDefault: pn.ChildByFieldName("value") != nil,
			}
			pattern := pn.ChildByFieldName("pattern")
			if pattern != nil && pattern.Type() == "rest_pattern" {
				param.IsRest = true
				param.Name = strings.TrimPrefix(e.text(pattern), "...")
			} else {
				param.Name = e.text(pattern)
			}
			params = append(params, param)
		case "identifier":
			params = append(params, Parameter{Name: e.text(pn)})
		case "assignment_pattern":
			params = append(params, Parameter{
				Name:       e.text(pn.ChildByFieldName("left")),
				HasDefault: true,
			})
		case "rest_parameter", "rest_pattern":
			params = append(params, Parameter{
				Name:   strings.TrimPrefix(e.text(pn), "..."),
				IsRest: true,
			})
		case "object_pattern", "array_pattern":
			params = append(params, Parameter{Name: e.text(pn)})
		}
	}
	return params
}

func (e *extractor) importStmt(n *sitter.Node) {
	source := strings.Trim(e.text(n.ChildByFieldName("source")), `'"`)
	if source == "" {
		return
	}

	imp := Import{
		Source:     source,
		IsRelative: strings.HasPrefix(source, "."),
		IsTypeOnly: hasChildToken(n, "type"),
	}

	var clause *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "import_clause" {
			clause = child
			break
		}
	}

	if clause == nil {
		imp.IsSideEffect = true
		e.imports = append(e.imports, imp)
		return
	}

	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "identifier":
			imp.DefaultImport = e.text(child)
		case "namespace_import":
			if name := child.NamedChild(0); name != nil {
				imp.NamespaceImport = e.text(name)
			}
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				original := e.text(spec.ChildByFieldName("name"))
				imp.ImportedNames = append(imp.ImportedNames, original)
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					if imp.Aliases == nil {
						imp.Aliases = make(map[string]string)
					}
					imp.Aliases[original] = e.text(alias)
				}
			}
		}
	}
	e.imports = append(e.imports, imp)
}

func (e *extractor) exportStmt(n *sitter.Node) {
	isDefault := hasChildToken(n, "default")

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		name := e.nameOf(decl)
		if name == "" {
			// export default <expression>
			if isDefault {
				e.exports = append(e.exports, Export{Name: "default", IsDefault: true})
			}
			return
		}
		e.exports = append(e.exports, Export{
			Name:      name,
			Kind:      exportKind(decl.Type()),
			IsDefault: isDefault,
		})
		return
	}

	// export { a, b as c }
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "export_clause" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			spec := child.NamedChild(j)
			if spec.Type() != "export_specifier" {
				continue
			}
			name := e.text(spec.ChildByFieldName("name"))
			if alias := spec.ChildByFieldName("alias"); alias != nil {
				name = e.text(alias)
			}
			e.exports = append(e.exports, Export{Name: name})
		}
	}
}

func exportKind(nodeType string) string {
	switch nodeType {
	case "function_declaration", "generator_function_declaration", "function_signature":
		return KindFunction
	case "class_declaration", "abstract_class_declaration":
		return KindClass
	case "interface_declaration":
		return KindInterface
	case "enum_declaration":
		return KindEnum
	case "type_alias_declaration":
		return KindTypeAlias
	default:
		return ""
	}
}

func (e *extractor) call(n *sitter.Node, caller string) *Call {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return nil
	}

	call := &Call{
		CallerName:       caller,
		CalledExpression: e.text(fn),
		LineStart:        int(n.StartPoint().Row) + 1,
		IsAsync:          isAwaited(n),
	}
	switch fn.Type() {
	case "identifier":
		call.CalledName = e.text(fn)
	case "member_expression":
		call.CalledName = e.text(fn.ChildByFieldName("property"))
	default:
		return nil
	}
	if call.CalledName == "" {
		return nil
	}
	return call
}

// isAwaited reports whether the call site sits directly under an await
// expression, possibly through parentheses.
func isAwaited(n *sitter.Node) bool {
	parent := n.Parent()
	for parent != nil && parent.Type() == "parenthesized_expression" {
		parent = parent.Parent()
	}
	return parent != nil && parent.Type() == "await_expression"
}

// isExported climbs to the top-level statement and checks for an
// enclosing export.
func (e *extractor) isExported(n *sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "export_statement":
			return true
		case "program":
			return false
		}
	}
	return false
}

// docComment returns the leading /** */ block, looking above the export
// statement when the declaration is wrapped in one.
func (e *extractor) docComment(n *sitter.Node) string {
	target := n
	if parent := n.Parent(); parent != nil {
		switch parent.Type() {
		case "export_statement", "lexical_declaration", "variable_declaration":
			target = parent
			if gp := target.Parent(); gp != nil && gp.Type() == "export_statement" {
				target = gp
			}
		}
	}

	prev := target.PrevNamedSibling()
	if prev == nil || prev.Type() != "comment" {
		return ""
	}
	text := e.text(prev)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	return text
}

// hasChildToken reports whether any direct child is the given anonymous
// token, e.g. "async" or "static".
func hasChildToken(n *sitter.Node, token string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child.Type() == token {
			return true
		}
	}
	return false
}

func trimTypeAnnotation(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), ":"))
}
