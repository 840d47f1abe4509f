// Package astparser is the AST Parser Service: the external collaborator
// that turns file content into a language-agnostic {symbols, imports,
// exports, errors} summary for the Analyzer and the Editor's optional
// syntax validation.
//
// It is grounded on the teacher's internal/world CodeParser family
// (parser_interface.go, ast_treesitter.go): the tree-sitter grammars and
// walk-the-tree shape are kept, but the output is this engine's own
// Symbol/Import/Export triple instead of Mangle facts.
package astparser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"fileops/internal/model"
)

// SymbolKind names the kind of a parsed symbol.
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolMethod    SymbolKind = "method"
	SymbolClass     SymbolKind = "class"
	SymbolStruct    SymbolKind = "struct"
	SymbolInterface SymbolKind = "interface"
	SymbolType      SymbolKind = "type"
	SymbolVariable  SymbolKind = "variable"
)

// Symbol is one parsed declaration.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Exported  bool
	StartLine int
	EndLine   int
	Signature string
	Receiver  string // set for Go methods
}

// Import is one parsed import/require/use statement.
type Import struct {
	Source string
	Line   int
}

// Export is one parsed export (JS/TS `export`, or Go exported symbols).
type Export struct {
	Name string
	Line int
}

// SyntaxError is a non-fatal parse diagnostic; astparser never blocks a
// caller on one, it only reports them.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

// Result is the full parse of one file.
type Result struct {
	Language string
	Symbols  []Symbol
	Imports  []Import
	Exports  []Export
	Errors   []SyntaxError
}

// Language identifies one supported grammar.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
)

var extToLang = map[string]Language{
	".go":  LangGo,
	".py":  LangPython,
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
}

// LanguageForExt maps a file extension (with leading dot) to a supported
// language, returning ok=false for an unsupported or unknown extension.
func LanguageForExt(ext string) (Language, bool) {
	lang, ok := extToLang[strings.ToLower(ext)]
	return lang, ok
}

// Parser parses source content into a Result using the tree-sitter
// grammars bundled by the teacher's go.mod. One Parser instance is safe
// for sequential reuse across files; it is not safe for concurrent calls
// on the same language since tree-sitter parsers are stateful.
type Parser struct {
	goParser     *sitter.Parser
	pythonParser *sitter.Parser
	jsParser     *sitter.Parser
	tsParser     *sitter.Parser
}

// New creates a Parser with one tree-sitter sub-parser per supported
// language.
func New() *Parser {
	return &Parser{
		goParser:     sitter.NewParser(),
		pythonParser: sitter.NewParser(),
		jsParser:     sitter.NewParser(),
		tsParser:     sitter.NewParser(),
	}
}

// Close releases the underlying tree-sitter parsers.
func (p *Parser) Close() {
	p.goParser.Close()
	p.pythonParser.Close()
	p.jsParser.Close()
	p.tsParser.Close()
}

// Parse parses content as lang, returning symbols/imports/exports plus any
// non-fatal syntax diagnostics. A hard parse failure (tree-sitter itself
// erroring) is reported as a *model.Error with KindParseError; malformed
// source that tree-sitter can still produce an error-containing tree for
// is instead reported via Result.Errors so callers can validateSyntax
// without blocking on it.
func (p *Parser) Parse(lang Language, path string, content []byte) (Result, error) {
	switch lang {
	case LangGo:
		return p.parseWith(p.goParser, golang.GetLanguage(), lang, content, extractGo)
	case LangPython:
		return p.parseWith(p.pythonParser, python.GetLanguage(), lang, content, extractPython)
	case LangJavaScript:
		return p.parseWith(p.jsParser, javascript.GetLanguage(), lang, content, extractJSOrTS)
	case LangTypeScript:
		return p.parseWith(p.tsParser, typescript.GetLanguage(), lang, content, extractJSOrTS)
	default:
		return Result{}, model.NewError(model.KindUnsupported, "unsupported language %q", lang).WithPath(path)
	}
}

type extractFunc func(root *sitter.Node, content []byte) ([]Symbol, []Import, []Export)

func (p *Parser) parseWith(sp *sitter.Parser, lang *sitter.Language, name Language, content []byte, extract extractFunc) (Result, error) {
	sp.SetLanguage(lang)
	tree, err := sp.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return Result{}, model.WrapError(model.KindParseError, err, "parsing %s source", name)
	}
	defer tree.Close()

	root := tree.RootNode()
	symbols, imports, exports := extract(root, content)

	res := Result{Language: string(name), Symbols: symbols, Imports: imports, Exports: exports}
	collectSyntaxErrors(root, content, &res.Errors)
	return res, nil
}

// collectSyntaxErrors walks the tree looking for tree-sitter ERROR nodes,
// which mark source the grammar could not make sense of. These are
// reported, never returned as a Go error: validateSyntax is advisory.
func collectSyntaxErrors(n *sitter.Node, content []byte, out *[]SyntaxError) {
	if n.IsError() || n.IsMissing() {
		point := n.StartPoint()
		msg := "unexpected syntax"
		if n.IsMissing() {
			msg = fmt.Sprintf("missing %s", n.Type())
		}
		*out = append(*out, SyntaxError{
			Line:    int(point.Row) + 1,
			Column:  int(point.Column) + 1,
			Message: msg,
		})
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collectSyntaxErrors(n.Child(i), content, out)
	}
}

func isExportedGoName(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

func nodeText(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(content)
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func endLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}
