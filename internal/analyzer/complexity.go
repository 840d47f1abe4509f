package analyzer

import (
	"regexp"
	"strings"

	"fileops/internal/astparser"
)

// FunctionComplexity is one function/method's computed metrics.
type FunctionComplexity struct {
	Name       string
	StartLine  int
	EndLine    int
	Lines      int
	Cyclomatic int
	Cognitive  int
}

// ComplexityMetrics is one file's aggregate + per-function metrics.
type ComplexityMetrics struct {
	TotalLines    int
	CodeLines     int
	CommentLines  int
	BlankLines    int
	Functions     []FunctionComplexity
	CyclomaticMax int
	CyclomaticAvg float64
}

// ComputeComplexity derives LOC counts from content and, for every
// function/method symbol astparser extracted, a cyclomatic complexity
// (McCabe: 1 + decision points) and a cognitive complexity heuristic
// (decision points weighted by nesting depth). Line classification and
// the decision-point keyword tables are ported from the teacher's
// internal/shards/reviewer/metrics.go, trimmed to the four languages
// astparser supports; unlike the teacher, function boundaries come from
// the tree-sitter parse instead of brace-depth guessing.
func ComputeComplexity(content string, lang astparser.Language, symbols []astparser.Symbol) *ComplexityMetrics {
	// A trailing newline terminates the last line; it does not start a new one.
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	m := &ComplexityMetrics{TotalLines: len(lines)}

	inBlockComment := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			m.BlankLines++
		case inBlockComment:
			m.CommentLines++
			if strings.Contains(line, "*/") {
				inBlockComment = false
			}
		case strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#"):
			m.CommentLines++
		case strings.HasPrefix(trimmed, "/*"):
			m.CommentLines++
			if !strings.Contains(line, "*/") {
				inBlockComment = true
			}
		default:
			m.CodeLines++
		}
	}

	var total int
	for _, sym := range symbols {
		if sym.Kind != astparser.SymbolFunction && sym.Kind != astparser.SymbolMethod {
			continue
		}
		fc := computeFunctionComplexity(lines, sym, lang)
		m.Functions = append(m.Functions, fc)
		total += fc.Cyclomatic
		if fc.Cyclomatic > m.CyclomaticMax {
			m.CyclomaticMax = fc.Cyclomatic
		}
	}
	if len(m.Functions) > 0 {
		m.CyclomaticAvg = float64(total) / float64(len(m.Functions))
	}
	return m
}

func computeFunctionComplexity(lines []string, sym astparser.Symbol, lang astparser.Language) FunctionComplexity {
	start, end := sym.StartLine, sym.EndLine
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}

	cyclomatic := 1
	cognitive := 0
	nesting := 0

	for i := start - 1; i < end && i < len(lines); i++ {
		line := lines[i]
		cleaned := stripCommentsAndStrings(line)

		nesting += strings.Count(line, "{") - strings.Count(line, "}")
		if nesting < 0 {
			nesting = 0
		}

		decisions := countDecisionPoints(cleaned, lang)
		cyclomatic += decisions
		if decisions > 0 {
			cognitive += decisions * (1 + nesting)
		}
	}

	return FunctionComplexity{
		Name:       sym.Name,
		StartLine:  sym.StartLine,
		EndLine:    sym.EndLine,
		Lines:      end - start + 1,
		Cyclomatic: cyclomatic,
		Cognitive:  cognitive,
	}
}

var (
	lineCommentRe  = regexp.MustCompile(`//.*$`)
	hashCommentRe  = regexp.MustCompile(`#.*$`)
	doubleQuoteRe  = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)
	singleQuoteRe  = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)
	backtickRe     = regexp.MustCompile("`[^`]*`")
	elseIfRe       = regexp.MustCompile(`\belse\s+if\b`)
	elifRe         = regexp.MustCompile(`\belif\b`)
	ifRe           = regexp.MustCompile(`\bif\b`)
	forRe          = regexp.MustCompile(`\bfor\b`)
	whileRe        = regexp.MustCompile(`\bwhile\b`)
	caseRe         = regexp.MustCompile(`\bcase\b`)
	catchRe        = regexp.MustCompile(`\bcatch\b`)
	exceptRe       = regexp.MustCompile(`\bexcept\b`)
	selectRe       = regexp.MustCompile(`\bselect\b`)
	andOpRe        = regexp.MustCompile(`&&`)
	orOpRe         = regexp.MustCompile(`\|\|`)
	pythonAndOrRe  = regexp.MustCompile(`\b(and|or)\b`)
	ternaryOpRe    = regexp.MustCompile(`\?(?:[^.?]|$)`)
)

// stripCommentsAndStrings removes comments and string literals from line
// so keyword matching does not trigger on text inside them.
func stripCommentsAndStrings(line string) string {
	result := hashCommentRe.ReplaceAllString(line, "")
	result = lineCommentRe.ReplaceAllString(result, "")
	result = doubleQuoteRe.ReplaceAllString(result, `""`)
	result = singleQuoteRe.ReplaceAllString(result, `''`)
	result = backtickRe.ReplaceAllString(result, "``")
	return result
}

// countDecisionPoints counts McCabe decision points in one cleaned line.
// Each predicate node (conditional, loop, exception clause, short-circuit
// operator, ternary) adds one to cyclomatic complexity.
func countDecisionPoints(cleaned string, lang astparser.Language) int {
	count := 0

	count += len(elseIfRe.FindAllString(cleaned, -1))
	cleaned = elseIfRe.ReplaceAllString(cleaned, " ")
	count += len(elifRe.FindAllString(cleaned, -1))
	cleaned = elifRe.ReplaceAllString(cleaned, " ")

	count += len(ifRe.FindAllString(cleaned, -1))
	count += len(forRe.FindAllString(cleaned, -1))
	count += len(whileRe.FindAllString(cleaned, -1))

	switch lang {
	case astparser.LangGo:
		count += len(selectRe.FindAllString(cleaned, -1))
		count += len(caseRe.FindAllString(cleaned, -1))
	case astparser.LangPython:
		count += len(exceptRe.FindAllString(cleaned, -1))
		count += len(pythonAndOrRe.FindAllString(cleaned, -1))
	case astparser.LangJavaScript, astparser.LangTypeScript:
		count += len(caseRe.FindAllString(cleaned, -1))
		count += len(catchRe.FindAllString(cleaned, -1))
	}

	count += len(andOpRe.FindAllString(cleaned, -1))
	count += len(orOpRe.FindAllString(cleaned, -1))

	if lang != astparser.LangGo {
		t := strings.ReplaceAll(cleaned, "?.", " ")
		t = strings.ReplaceAll(t, "??", " ")
		count += len(ternaryOpRe.FindAllString(t, -1))
	}

	return count
}
