package validator

import (
	"context"
	"sort"

	"fileops/internal/astparser"
	"fileops/internal/cache"
	"fileops/internal/fsservice"
	"fileops/internal/logging"
)

// Result is the Validator's full output for one Validate operation.
type Result struct {
	Issues   []Issue
	Commands []CommandResult
	Fixed    []string // files that had at least one autofix applied
}

// Validator runs a rule registry against analyzed files and, separately,
// a list of external validate commands.
type Validator struct {
	fs       *fsservice.Service
	cache    *cache.Cache
	parser   *astparser.Parser
	registry *Registry
	rootDir  string
}

// New creates a Validator. registry may be nil, in which case
// DefaultRegistry() is used. rootDir is the working directory validate
// commands run in.
func New(fs *fsservice.Service, c *cache.Cache, parser *astparser.Parser, registry *Registry, rootDir string) *Validator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Validator{fs: fs, cache: c, parser: parser, registry: registry, rootDir: rootDir}
}

// Validate expands files, runs the selected rule checks (all registered
// rules if checks is empty) over each, executes every command, and — if
// autofix is set — applies each rule's proposed fixes atomically per
// file, in reverse byte-offset order so earlier edits' offsets stay
// valid.
func (v *Validator) Validate(ctx context.Context, files []string, commands []string, checks []string, autofix bool) (Result, error) {
	var out Result

	paths, err := v.fs.ExpandGlobs(files)
	if err != nil {
		return Result{}, err
	}

	known := make(map[string]bool, len(paths))
	for _, p := range paths {
		known[p] = true
	}

	rules := v.registry.Selected(checks)

	for _, f := range paths {
		content, err := v.read(f)
		if err != nil {
			continue
		}
		lang, supported := astparser.LanguageForExt(extOf(f))
		var parsed astparser.Result
		if supported && v.parser != nil {
			if p, perr := v.parser.Parse(lang, f, []byte(content)); perr == nil {
				parsed = p
			}
		}

		rctx := RuleContext{FilePath: f, Content: content, Language: lang, Parsed: parsed, KnownFiles: known}

		var fileIssues []Issue
		for _, rule := range rules {
			fileIssues = append(fileIssues, rule.Check(rctx)...)
		}
		out.Issues = append(out.Issues, fileIssues...)

		if autofix {
			if _, changed := v.applyFixes(rctx, rules, fileIssues); changed {
				out.Fixed = append(out.Fixed, f)
			}
		}
	}

	for _, c := range commands {
		out.Commands = append(out.Commands, runCommand(ctx, c, v.rootDir))
	}

	logging.AuditWithRequest("").Log(logging.AuditEvent{
		EventType: logging.AuditValidatorRun,
		Success:   true,
		Fields:    map[string]interface{}{"files": len(paths), "issues": len(out.Issues), "fixed": len(out.Fixed)},
	})

	return out, nil
}

func (v *Validator) read(path string) (string, error) {
	if v.cache != nil {
		entry, err := v.cache.Get(path)
		if err != nil {
			return "", err
		}
		return entry.Content, nil
	}
	results := v.fs.ReadMany([]string{path})
	res := results[path]
	if res.Error != nil {
		return "", res.Error
	}
	return res.Text, nil
}

// applyFixes collects every fixable issue's edits, sorts them by
// descending start offset, and rewrites content in one pass so no edit's
// byte range is invalidated by an earlier replacement. It writes the
// result back through fs and invalidates the cache entry only if at
// least one edit applied.
func (v *Validator) applyFixes(rctx RuleContext, rules []*Rule, issues []Issue) (string, bool) {
	byName := make(map[string]*Rule, len(rules))
	for _, r := range rules {
		byName[r.Name] = r
	}

	var edits []FixEdit
	for _, issue := range issues {
		rule, ok := byName[issue.Rule]
		if !ok || rule.Fix == nil {
			continue
		}
		edits = append(edits, rule.Fix(rctx, issue)...)
	}
	if len(edits) == 0 {
		return rctx.Content, false
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].Start > edits[j].Start })

	content := rctx.Content
	for _, e := range edits {
		if e.Start < 0 || e.End > len(content) || e.End < e.Start {
			continue
		}
		content = content[:e.Start] + e.Replacement + content[e.End:]
	}

	if err := v.fs.WriteMany(map[string][]byte{rctx.FilePath: []byte(content)}); err != nil {
		return rctx.Content, false
	}
	if v.cache != nil {
		v.cache.Invalidate(rctx.FilePath)
	}
	return content, true
}

func extOf(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '.' {
			return p[i:]
		}
		if p[i] == '/' {
			break
		}
	}
	return ""
}
