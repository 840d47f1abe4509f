package engine

import (
	"context"
	"os"
	"strconv"

	"fileops/internal/logging"
	"fileops/internal/model"
)

// executeOne runs a single operation against the engine's collaborators,
// returning the data that populates the result's Data field.
func (e *Engine) executeOne(ctx context.Context, op model.Operation) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	switch op.Type {
	case model.OpAnalyze:
		return e.runAnalyze(op)
	case model.OpEdit:
		return e.runEdit(op)
	case model.OpCreate:
		return e.runCreate(op)
	case model.OpDelete:
		return e.runDelete(op)
	case model.OpValidate:
		return e.runValidate(ctx, op)
	default:
		return nil, model.NewError(model.KindSchemaInvalid, "unknown operation type %q", op.Type)
	}
}

// wantsGraph reports whether an empty or import-inclusive extract list
// implies a dependency graph is worth building; an operation never pays
// for graph construction when it narrowed extraction away from imports.
func wantsGraph(extract []string) bool {
	if len(extract) == 0 {
		return true
	}
	for _, e := range extract {
		if e == "imports" {
			return true
		}
	}
	return false
}

func (e *Engine) runAnalyze(op model.Operation) (any, error) {
	return e.analyzer.Analyze(op.Paths, op.Extract, op.Patterns, wantsGraph(op.Extract))
}

func (e *Engine) runEdit(op model.Operation) (any, error) {
	results := make([]any, 0, len(op.Edits))
	for _, fe := range op.Edits {
		res, err := e.editor.Apply(fe, op.ValidateSyntax, op.PreserveFormatting, op.DryRun)
		if err != nil {
			return nil, model.WrapError(model.KindOf(err), err, "editing %q", fe.File)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) runCreate(op model.Operation) (any, error) {
	files := make(map[string][]byte, len(op.Files))
	for _, f := range op.Files {
		if exists, err := e.fs.Exists(f.Path); err != nil {
			return nil, err
		} else if exists {
			return nil, model.NewError(model.KindAlreadyExists, "create target %q already exists", f.Path)
		}
		content := f.Content
		if content == "" && f.Template != "" {
			content = f.Template
		}
		files[f.Path] = []byte(content)
	}

	if err := e.fs.WriteMany(files); err != nil {
		return nil, err
	}
	logging.AuditWithRequest("").Log(logging.AuditEvent{
		EventType: logging.AuditFileCreate,
		Success:   true,
		Fields:    map[string]interface{}{"count": len(files)},
	})

	for _, f := range op.Files {
		if e.cache != nil {
			e.cache.Invalidate(f.Path)
		}
		if f.Mode != "" {
			if err := e.chmod(f.Path, f.Mode); err != nil {
				return nil, err
			}
		}
	}

	created := make([]string, 0, len(op.Files))
	for _, f := range op.Files {
		created = append(created, f.Path)
	}
	return created, nil
}

func (e *Engine) chmod(path, mode string) error {
	resolved, err := e.fs.Resolve(path)
	if err != nil {
		return err
	}
	m, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return model.WrapError(model.KindSchemaInvalid, err, "parsing mode %q for %q", mode, path)
	}
	if err := os.Chmod(resolved, os.FileMode(m)); err != nil {
		return model.WrapError(model.KindInternal, err, "chmod %q to %s", path, mode)
	}
	return nil
}

func (e *Engine) runDelete(op model.Operation) (any, error) {
	matches, err := e.fs.ExpandGlobs(op.Paths)
	if err != nil {
		return nil, err
	}
	if err := e.fs.DeleteMany(matches); err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.InvalidateMany(matches)
	}
	return matches, nil
}

func (e *Engine) runValidate(ctx context.Context, op model.Operation) (any, error) {
	return e.validator.Validate(ctx, op.ValidateFiles, op.ValidateCommands, op.ValidateChecks, op.Autofix)
}
