// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package parser

// Supported languages.
const (
	LangTypeScript = "typescript"
	LangTSX        = "tsx"
	LangJavaScript = "javascript"
	LangJSX        = "jsx"
	LangCSharp     = "csharp"
)

// Entity kinds.
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindClass     = "class"
	KindInterface = "interface"
	KindEnum      = "enum"
	KindTypeAlias = "type_alias"
)

// AnonymousName is the synthetic name assigned to anonymous functions
// when extraction of them is enabled.
const AnonymousName = "<anonymous>"

// Parameter is one function parameter.
type Parameter struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	HasDefault bool   `json:"hasDefault"`
	IsRest     bool   `json:"isRest"`
}

// Entity is one extracted declaration. Kind-specific fields are zero
// for kinds they do not apply to.
type Entity struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	LineStart  int    `json:"lineStart"`
	LineEnd    int    `json:"lineEnd"`
	IsExported bool   `json:"isExported"`

	// Function/method fields.
	IsAsync     bool        `json:"isAsync,omitempty"`
	IsGenerator bool        `json:"isGenerator,omitempty"`
	IsStatic    bool        `json:"isStatic,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	ReturnType  string      `json:"returnType,omitempty"`

	// Class/interface fields.
	Extends        string   `json:"extends,omitempty"`
	Implements     []string `json:"implements,omitempty"`
	TypeParameters []string `json:"typeParameters,omitempty"`
	IsAbstract     bool     `json:"isAbstract,omitempty"`

	// Documentation is the leading doc-comment block, verbatim.
	Documentation string `json:"documentation,omitempty"`
}

// Import is one import statement.
type Import struct {
	Source          string            `json:"source"`
	DefaultImport   string            `json:"defaultImport,omitempty"`
	NamespaceImport string            `json:"namespaceImport,omitempty"`
	ImportedNames   []string          `json:"importedNames,omitempty"`
	Aliases         map[string]string `json:"aliases,omitempty"`
	IsRelative      bool              `json:"isRelative"`
	IsTypeOnly      bool              `json:"isTypeOnly"`
	IsSideEffect    bool              `json:"isSideEffect"`
}

// Export is one exported name.
type Export struct {
	Name      string `json:"name"`
	Kind      string `json:"kind,omitempty"`
	IsDefault bool   `json:"isDefault"`
}

// Call is one call site attributed to its enclosing function.
type Call struct {
	CallerName       string `json:"callerName"`
	CalledName       string `json:"calledName"`
	CalledExpression string `json:"calledExpression"`
	LineStart        int    `json:"lineStart"`

	// IsAsync is true when the call site is syntactically awaited.
	IsAsync bool `json:"isAsync"`
}

// ParseError is one recovered syntax error.
type ParseError struct {
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// ParseResult is the full extraction output for one file. Success stays
// true for files with recoverable syntax errors; only hard failures
// (unsupported language, oversized file, parser init, timeout) surface
// as Go errors instead.
type ParseResult struct {
	Entities    []Entity     `json:"entities"`
	Imports     []Import     `json:"imports"`
	Exports     []Export     `json:"exports"`
	Calls       []Call       `json:"calls"`
	Errors      []ParseError `json:"errors"`
	Language    string       `json:"language"`
	ParseTimeMs int64        `json:"parseTimeMs"`
	Success     bool         `json:"success"`
}
