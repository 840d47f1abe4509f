// Package pathguard resolves user-supplied paths against a fixed root and
// rejects anything that escapes it. Every other component that touches the
// filesystem first resolves through a Guard; none reads or writes disk on
// a raw, unguarded path.
package pathguard

import (
	"os"
	"path/filepath"

	"fileops/internal/logging"
	"fileops/internal/model"
)

// Guard canonicalizes paths against a fixed root directory.
type Guard struct {
	root string
}

// New creates a Guard rooted at root. root is itself resolved through
// EvalSymlinks so a symlinked workspace root doesn't defeat containment
// checks against itself.
func New(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, model.WrapError(model.KindInternal, err, "pathguard: resolve root %q", root)
	}
	resolved, err := resolveExisting(abs)
	if err != nil {
		return nil, model.WrapError(model.KindInternal, err, "pathguard: resolve root %q", root)
	}
	return &Guard{root: resolved}, nil
}

// Root returns the guard's canonical root.
func (g *Guard) Root() string { return g.root }

// Resolve canonicalizes path (absolute or relative to root) and verifies it
// lies within the root, resolving symlinks along the way. It returns
// model.KindPathEscape when the canonical path escapes the root.
//
// Resolve tolerates a path (or trailing components of one) that does not
// yet exist on disk — the Editor and Create operation both need to guard
// paths before creating them — by walking up to the nearest existing
// ancestor for symlink resolution and rejoining the missing suffix.
func (g *Guard) Resolve(path string) (string, error) {
	if path == "" {
		return "", model.NewError(model.KindSchemaInvalid, "pathguard: empty path")
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(g.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", model.WrapError(model.KindInternal, err, "pathguard: resolve %q", path)
	}

	rel, err := filepath.Rel(g.root, resolved)
	if err != nil {
		return "", model.WrapError(model.KindPathEscape, err, "pathguard: compute relative path for %q", path).WithPath(path)
	}
	if rel == ".." || hasParentPrefix(rel) {
		logging.Get(logging.CategoryPathGuard).Warn("path escape rejected: %s -> %s", path, resolved)
		return "", model.NewError(model.KindPathEscape, "path %q escapes root %q", path, g.root).WithPath(path)
	}

	return resolved, nil
}

func hasParentPrefix(rel string) bool {
	prefix := ".." + string(filepath.Separator)
	return len(rel) >= len(prefix) && rel[:len(prefix)] == prefix
}

// resolveExisting resolves symlinks for the longest existing prefix of
// path, then rejoins any missing trailing components verbatim.
func resolveExisting(path string) (string, error) {
	path = filepath.Clean(path)

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}
