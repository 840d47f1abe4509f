// Package editor applies FindReplace/Line/Position changes to cached file
// content and writes the result back through the File System Service,
// invalidating the cache entry on success.
//
// Grounded on the teacher's internal/tools/core/file_ops.go (EditFileTool):
// the literal-replace and replace-all-vs-first-only semantics are kept and
// generalized to regex mode, line-indexed, and byte-position changes per
// this engine's own Change tagged union.
package editor

import (
	"regexp"
	"strings"

	"fileops/internal/astparser"
	"fileops/internal/cache"
	"fileops/internal/diff"
	"fileops/internal/fsservice"
	"fileops/internal/model"
)

// ChangeResult reports one change's outcome.
type ChangeResult struct {
	Type    model.ChangeType
	Applied int // number of replacements/lines/bytes affected, semantics vary by Type
}

// Result is the outcome of applying one FileEdit.
type Result struct {
	File         string
	Changes      []ChangeResult
	SyntaxErrors []astparser.SyntaxError
	DryRun       bool
	Preview      *diff.FileDiff
	Written      bool
}

// Editor applies FileEdit change lists.
type Editor struct {
	fs     *fsservice.Service
	cache  *cache.Cache
	parser *astparser.Parser
}

// New creates an Editor backed by fs for writes, cache for reads and
// invalidation, and parser for optional validateSyntax passes.
func New(fs *fsservice.Service, c *cache.Cache, parser *astparser.Parser) *Editor {
	return &Editor{fs: fs, cache: c, parser: parser}
}

// Apply applies edit's change list in declared order against the file's
// cached content (or an empty buffer if missing and createIfMissing is
// set), optionally revalidating syntax and writing the result.
func (e *Editor) Apply(edit model.FileEdit, validateSyntax, preserveFormatting, dryRun bool) (Result, error) {
	original, _, err := e.readOriginal(edit.File, edit.CreateIfMissing)
	if err != nil {
		return Result{}, err
	}

	crlf := preserveFormatting && strings.Contains(original, "\r\n")
	working := original
	if crlf {
		working = strings.ReplaceAll(working, "\r\n", "\n")
	}

	results := make([]ChangeResult, 0, len(edit.Changes))
	for _, change := range edit.Changes {
		var applied int
		working, applied, err = applyChange(working, change)
		if err != nil {
			return Result{}, err
		}
		results = append(results, ChangeResult{Type: change.Type, Applied: applied})
	}

	final := working
	if crlf {
		final = strings.ReplaceAll(final, "\n", "\r\n")
	}

	res := Result{File: edit.File, Changes: results}

	if validateSyntax {
		if lang, ok := astparser.LanguageForExt(extOf(edit.File)); ok && e.parser != nil {
			parsed, perr := e.parser.Parse(lang, edit.File, []byte(final))
			if perr == nil {
				res.SyntaxErrors = parsed.Errors
			}
		}
	}

	if dryRun {
		res.DryRun = true
		res.Preview = diff.ComputeDiff(edit.File, edit.File, original, final)
		return res, nil
	}

	if err := e.fs.WriteMany(map[string][]byte{edit.File: []byte(final)}); err != nil {
		return Result{}, err
	}
	if e.cache != nil {
		e.cache.Invalidate(edit.File)
	}
	res.Written = true
	return res, nil
}

func (e *Editor) readOriginal(path string, createIfMissing bool) (content string, existed bool, err error) {
	if e.cache != nil {
		entry, cerr := e.cache.Get(path)
		if cerr == nil {
			return entry.Content, true, nil
		}
		if !model.Is(cerr, model.KindNotFound) {
			return "", false, cerr
		}
		if createIfMissing {
			return "", false, nil
		}
		return "", false, cerr
	}

	results := e.fs.ReadMany([]string{path})
	res := results[path]
	if res.Error != nil {
		if model.Is(res.Error, model.KindNotFound) && createIfMissing {
			return "", false, nil
		}
		return "", false, res.Error
	}
	return res.Text, true, nil
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}

// applyChange applies one change to content, returning the new content and
// the count of replacements/lines/bytes touched per spec semantics: zero
// matches, out-of-range lines, and malformed position ranges all yield 0
// changes rather than an error.
func applyChange(content string, change model.Change) (string, int, error) {
	switch change.Type {
	case model.ChangeFindReplace:
		return applyFindReplace(content, change)
	case model.ChangeLine:
		return applyLine(content, change)
	case model.ChangePosition:
		return applyPosition(content, change)
	case model.ChangeAst:
		return content, 0, model.NewError(model.KindUnsupported, "ast changes are not implemented")
	default:
		return content, 0, model.NewError(model.KindSchemaInvalid, "unknown change type %q", change.Type)
	}
}

func applyFindReplace(content string, change model.Change) (string, int, error) {
	if change.Regex {
		re, err := regexp.Compile(change.Find)
		if err != nil {
			return content, 0, model.WrapError(model.KindRegexInvalid, err, "compiling find-replace pattern %q", change.Find)
		}
		matches := re.FindAllStringIndex(content, -1)
		if len(matches) == 0 {
			return content, 0, nil
		}
		if change.ReplaceAll {
			count := len(matches)
			return re.ReplaceAllLiteralString(content, change.Replace), count, nil
		}
		loc := matches[0]
		return content[:loc[0]] + change.Replace + content[loc[1]:], 1, nil
	}

	if !strings.Contains(content, change.Find) {
		return content, 0, nil
	}
	if change.ReplaceAll {
		count := strings.Count(content, change.Find)
		return strings.ReplaceAll(content, change.Find, change.Replace), count, nil
	}
	return strings.Replace(content, change.Find, change.Replace, 1), 1, nil
}

func applyLine(content string, change model.Change) (string, int, error) {
	lines := strings.Split(content, "\n")
	if content == "" {
		// An empty buffer has no lines, so inserting at line 1 yields just
		// the inserted content.
		lines = nil
	}
	idx := change.Line - 1 // 1-indexed

	switch change.LineOp {
	case model.LineInsert:
		if idx < 0 || idx > len(lines) {
			return content, 0, nil
		}
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:idx]...)
		out = append(out, change.Content)
		out = append(out, lines[idx:]...)
		return strings.Join(out, "\n"), 1, nil

	case model.LineReplace:
		if idx < 0 || idx >= len(lines) {
			return content, 0, nil
		}
		lines[idx] = change.Content
		return strings.Join(lines, "\n"), 1, nil

	case model.LineDelete:
		if idx < 0 || idx >= len(lines) {
			return content, 0, nil
		}
		out := append(lines[:idx], lines[idx+1:]...)
		return strings.Join(out, "\n"), 1, nil

	default:
		return content, 0, model.NewError(model.KindSchemaInvalid, "unknown line operation %q", change.LineOp)
	}
}

func applyPosition(content string, change model.Change) (string, int, error) {
	start, end := change.Start, change.End
	if start < 0 || end < start || end > len(content) {
		return content, 0, nil
	}
	return content[:start] + change.Content + content[end:], end - start, nil
}
