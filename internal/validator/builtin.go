package validator

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"fileops/internal/astparser"
)

var consoleCallRe = regexp.MustCompile(`\bconsole\.(log|warn|error|info|debug|trace)\s*\(`)

func noConsoleRule() *Rule {
	return &Rule{
		Name: "no-console",
		Check: func(ctx RuleContext) []Issue {
			if ctx.Language != astparser.LangJavaScript && ctx.Language != astparser.LangTypeScript {
				return nil
			}
			var issues []Issue
			for i, line := range strings.Split(ctx.Content, "\n") {
				if loc := consoleCallRe.FindStringIndex(line); loc != nil {
					issues = append(issues, Issue{
						File:     ctx.FilePath,
						Line:     i + 1,
						Column:   loc[0] + 1,
						Severity: SeverityWarning,
						Message:  "unexpected console statement",
						Rule:     "no-console",
					})
				}
			}
			return issues
		},
	}
}

var debuggerStmtRe = regexp.MustCompile(`\bdebugger\s*;`)

func noDebuggerRule() *Rule {
	return &Rule{
		Name: "no-debugger",
		Check: func(ctx RuleContext) []Issue {
			if ctx.Language != astparser.LangJavaScript && ctx.Language != astparser.LangTypeScript {
				return nil
			}
			var issues []Issue
			for i, line := range strings.Split(ctx.Content, "\n") {
				if loc := debuggerStmtRe.FindStringIndex(line); loc != nil {
					issues = append(issues, Issue{
						File:     ctx.FilePath,
						Line:     i + 1,
						Column:   loc[0] + 1,
						Severity: SeverityError,
						Message:  "unexpected debugger statement",
						Rule:     "no-debugger",
					})
				}
			}
			return issues
		},
		Fix: func(ctx RuleContext, issue Issue) []FixEdit {
			lines := strings.Split(ctx.Content, "\n")
			if issue.Line < 1 || issue.Line > len(lines) {
				return nil
			}
			offset := 0
			for i := 0; i < issue.Line-1; i++ {
				offset += len(lines[i]) + 1
			}
			loc := debuggerStmtRe.FindStringIndex(lines[issue.Line-1])
			if loc == nil {
				return nil
			}
			return []FixEdit{{Start: offset + loc[0], End: offset + loc[1], Replacement: ""}}
		},
	}
}

// consistentNamingRule enforces camelCase functions and PascalCase
// classes. It only applies to languages where the source itself uses
// that convention (JS/TS/Python); Go's exported-identifier convention is
// a different axis entirely and is left alone.
func consistentNamingRule() *Rule {
	return &Rule{
		Name: "consistent-naming",
		Check: func(ctx RuleContext) []Issue {
			if ctx.Language == astparser.LangGo {
				return nil
			}
			var issues []Issue
			for _, sym := range ctx.Parsed.Symbols {
				switch sym.Kind {
				case astparser.SymbolFunction, astparser.SymbolMethod:
					if !isCamelCase(sym.Name) {
						issues = append(issues, Issue{
							File:     ctx.FilePath,
							Line:     sym.StartLine,
							Severity: SeverityWarning,
							Message:  "function name " + sym.Name + " should be camelCase",
							Rule:     "consistent-naming",
						})
					}
				case astparser.SymbolClass:
					if !isPascalCase(sym.Name) {
						issues = append(issues, Issue{
							File:     ctx.FilePath,
							Line:     sym.StartLine,
							Severity: SeverityWarning,
							Message:  "class name " + sym.Name + " should be PascalCase",
							Rule:     "consistent-naming",
						})
					}
				}
			}
			return issues
		},
	}
}

func isCamelCase(name string) bool {
	if name == "" || !unicode.IsLower(rune(name[0])) {
		return false
	}
	return !strings.Contains(name, "_")
}

func isPascalCase(name string) bool {
	if name == "" || !unicode.IsUpper(rune(name[0])) {
		return false
	}
	return !strings.Contains(name, "_")
}

// importResolutionRule flags relative imports that do not resolve to any
// file in the current validation batch.
func importResolutionRule() *Rule {
	return &Rule{
		Name: "import-resolution",
		Check: func(ctx RuleContext) []Issue {
			var issues []Issue
			for _, imp := range ctx.Parsed.Imports {
				if !strings.HasPrefix(imp.Source, ".") {
					continue
				}
				if !resolvesWithin(ctx.FilePath, imp.Source, ctx.KnownFiles) {
					issues = append(issues, Issue{
						File:     ctx.FilePath,
						Line:     imp.Line,
						Severity: SeverityError,
						Message:  "import " + imp.Source + " does not resolve to a known file",
						Rule:     "import-resolution",
					})
				}
			}
			return issues
		},
	}
}

func resolvesWithin(fromFile, source string, known map[string]bool) bool {
	dir := path.Dir(fromFile)
	candidate := path.Clean(path.Join(dir, source))
	if known[candidate] {
		return true
	}
	for _, ext := range []string{".go", ".py", ".js", ".jsx", ".mjs", ".ts", ".tsx"} {
		if known[candidate+ext] {
			return true
		}
		if known[path.Join(candidate, "index"+ext)] {
			return true
		}
	}
	return false
}
