// Package analyzer is the read-only Analyzer: it expands path globs,
// retrieves cached content, parses supported languages via astparser, and
// derives symbol/import/export inventories, an optional cross-file
// dependency graph with cycle detection, and complexity metrics.
//
// Grounded on the teacher's internal/world graph_interface.go (the
// GraphQuery abstraction cited directly for the arena+indices dependency
// graph shape) and internal/shards/reviewer/metrics.go (the per-function
// cyclomatic complexity walk, ported from its line-regex heuristic to
// operate over astparser's tree-sitter-derived symbol boundaries instead
// of brace-depth guessing).
package analyzer

import (
	"regexp"
	"strings"

	"fileops/internal/astparser"
	"fileops/internal/cache"
	"fileops/internal/fsservice"
	"fileops/internal/model"
)

// FileAnalysis is one file's extraction result.
type FileAnalysis struct {
	File     string
	Language astparser.Language
	Symbols  []astparser.Symbol
	Imports  []astparser.Import
	Exports  []astparser.Export
	Errors   []astparser.SyntaxError
	Metrics  *ComplexityMetrics
}

// Result is the Analyzer's full output for one Analyze operation.
type Result struct {
	Files  []FileAnalysis
	Graph  *Graph  // nil unless requested
	Cycles *Cycles // nil unless requested
}

// Analyzer composes the File System Service, the Cache, and the AST Parser
// Service into the read-only extraction pipeline spec.md's Analyzer names.
type Analyzer struct {
	fs     *fsservice.Service
	cache  *cache.Cache
	parser *astparser.Parser
}

// New creates an Analyzer. cache may be nil, in which case every read goes
// straight through fs.
func New(fs *fsservice.Service, c *cache.Cache, parser *astparser.Parser) *Analyzer {
	return &Analyzer{fs: fs, cache: c, parser: parser}
}

// extract kinds, matching model.validExtractKinds.
const (
	extractSymbols   = "symbols"
	extractImports   = "imports"
	extractExports   = "exports"
	extractFunctions = "functions"
	extractClasses   = "classes"
	extractVariables = "variables"
)

// Analyze expands paths (globs), parses every resolvable file, and
// assembles a Result. An empty extract list means "everything" (symbols,
// imports, exports). namePatterns, if non-empty, are regexes narrowing the
// returned symbols to those whose name matches at least one pattern — the
// operation's "patterns" field. buildGraph additionally derives a
// best-effort cross-file dependency graph with cycle detection over the
// analyzed file set; files whose parse fails outright (not just
// syntax-error diagnostics) are skipped rather than aborting the whole
// batch.
func (a *Analyzer) Analyze(paths []string, extract []string, namePatterns []string, buildGraph bool) (Result, error) {
	files, err := a.fs.ExpandGlobs(paths)
	if err != nil {
		return Result{}, err
	}

	nameRes, err := compilePatterns(namePatterns)
	if err != nil {
		return Result{}, err
	}

	want := wantedKinds(extract)

	var out Result
	parsed := make(map[string]astparser.Result, len(files))

	for _, f := range files {
		lang, ok := astparser.LanguageForExt(extOf(f))
		if !ok {
			continue
		}
		content, err := a.read(f)
		if err != nil {
			continue
		}
		res, err := a.parser.Parse(lang, f, []byte(content))
		if err != nil {
			continue
		}
		parsed[f] = res

		fa := FileAnalysis{File: f, Language: lang, Errors: res.Errors}
		if want[extractSymbols] || want[extractFunctions] || want[extractClasses] || want[extractVariables] {
			fa.Symbols = filterSymbols(res.Symbols, want)
			if len(nameRes) > 0 {
				fa.Symbols = filterByName(fa.Symbols, nameRes)
			}
		}
		if want[extractImports] {
			fa.Imports = res.Imports
		}
		if want[extractExports] {
			fa.Exports = res.Exports
		}
		fa.Metrics = ComputeComplexity(content, lang, res.Symbols)
		out.Files = append(out.Files, fa)
	}

	if buildGraph {
		g := BuildGraph(parsed)
		cycles := DetectCycles(g)
		out.Graph = g
		out.Cycles = &cycles
	}

	return out, nil
}

func (a *Analyzer) read(path string) (string, error) {
	if a.cache != nil {
		entry, err := a.cache.Get(path)
		if err != nil {
			return "", err
		}
		return entry.Content, nil
	}
	results := a.fs.ReadMany([]string{path})
	res := results[path]
	if res.Error != nil {
		return "", res.Error
	}
	return res.Text, nil
}

func wantedKinds(extract []string) map[string]bool {
	if len(extract) == 0 {
		return map[string]bool{extractSymbols: true, extractImports: true, extractExports: true}
	}
	want := make(map[string]bool, len(extract))
	for _, e := range extract {
		want[e] = true
	}
	return want
}

func filterSymbols(symbols []astparser.Symbol, want map[string]bool) []astparser.Symbol {
	if want[extractSymbols] {
		return symbols
	}
	var out []astparser.Symbol
	for _, s := range symbols {
		switch s.Kind {
		case astparser.SymbolFunction, astparser.SymbolMethod:
			if want[extractFunctions] {
				out = append(out, s)
			}
		case astparser.SymbolClass, astparser.SymbolStruct, astparser.SymbolInterface:
			if want[extractClasses] {
				out = append(out, s)
			}
		case astparser.SymbolVariable:
			if want[extractVariables] {
				out = append(out, s)
			}
		}
	}
	return out
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, model.WrapError(model.KindRegexInvalid, err, "compiling analyze pattern %q", p)
		}
		out = append(out, re)
	}
	return out, nil
}

func filterByName(symbols []astparser.Symbol, patterns []*regexp.Regexp) []astparser.Symbol {
	var out []astparser.Symbol
	for _, s := range symbols {
		for _, re := range patterns {
			if re.MatchString(s.Name) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func extOf(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i < 0 {
		return ""
	}
	return p[i:]
}

