// Package fsservice provides primitive batch filesystem I/O for the
// file-operations engine: multi-read, multi-write (atomic via temp+rename),
// stat/exists, glob expansion, directory management, copy/move, and a
// debounced file watcher. Every mutating call is guarded through an
// internal/pathguard.Guard so nothing ever touches a path outside the
// configured root.
package fsservice

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"fileops/internal/logging"
	"fileops/internal/model"
	"fileops/internal/pathguard"
)

// MaxReadBytes caps a single file read; larger files fail with SizeExceeded.
const MaxReadBytes = 32 * 1024 * 1024

// ReadResult is the outcome of reading one file.
type ReadResult struct {
	Text   string
	Binary bool
	Error  *model.Error
}

// Service is the File System Service: every method resolves its paths
// through a Guard before touching disk.
type Service struct {
	guard   *pathguard.Guard
	ignore  []string
	watcher *Watcher
}

// New creates a Service rooted at guard's root, with default-ignore glob
// patterns applied during glob expansion and directory walks.
func New(guard *pathguard.Guard, ignore []string) *Service {
	return &Service{guard: guard, ignore: ignore}
}

// ReadMany reads a batch of paths, collecting a ReadResult per path. A
// read error for one path never aborts the others.
func (s *Service) ReadMany(paths []string) map[string]ReadResult {
	out := make(map[string]ReadResult, len(paths))
	for _, p := range paths {
		out[p] = s.readOne(p)
	}
	logging.AuditWithRequest("").Log(logging.AuditEvent{
		EventType: logging.AuditFileRead,
		Success:   true,
		Fields:    map[string]interface{}{"count": len(paths)},
	})
	return out
}

func (s *Service) readOne(path string) ReadResult {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return ReadResult{Error: asModelError(err)}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return ReadResult{Error: toFSError(err, path)}
	}
	if info.IsDir() {
		return ReadResult{Error: model.NewError(model.KindIsDirectory, "%q is a directory", path).WithPath(path)}
	}
	if info.Size() > MaxReadBytes {
		return ReadResult{Error: model.NewError(model.KindSizeExceeded, "%q exceeds max read size (%d bytes)", path, MaxReadBytes).WithPath(path)}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return ReadResult{Error: toFSError(err, path)}
	}

	if !utf8.Valid(data) {
		return ReadResult{Binary: true, Text: "<binary content, not displayed>"}
	}
	return ReadResult{Text: string(data)}
}

// WriteMany performs all-or-nothing atomic writes across the batch: each
// path is written to a sibling temp file and only renamed into place once
// every temp write in the batch has succeeded. If any temp write fails,
// every temp file created so far is unlinked and no rename happens.
// Already-renamed targets from a previous, separate WriteMany call are not
// undone — cross-call atomicity is the Transaction Manager's job.
func (s *Service) WriteMany(files map[string][]byte) error {
	type pending struct {
		tmpPath   string
		finalPath string
		origPath  string
	}
	pendings := make([]pending, 0, len(files))

	cleanup := func() {
		for _, p := range pendings {
			os.Remove(p.tmpPath)
		}
	}

	for path, data := range files {
		resolved, err := s.guard.Resolve(path)
		if err != nil {
			cleanup()
			return err
		}

		if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
			cleanup()
			return model.WrapError(model.KindInternal, err, "fsservice: create parent dir for %q", path).WithPath(path)
		}

		tmpPath, err := writeTemp(resolved, data)
		if err != nil {
			cleanup()
			return model.WrapError(model.KindInternal, err, "fsservice: write temp file for %q", path).WithPath(path)
		}
		pendings = append(pendings, pending{tmpPath: tmpPath, finalPath: resolved, origPath: path})
	}

	for _, p := range pendings {
		if err := os.Rename(p.tmpPath, p.finalPath); err != nil {
			return model.WrapError(model.KindInternal, err, "fsservice: rename temp file for %q", p.origPath).WithPath(p.origPath)
		}
	}

	logging.Get(logging.CategoryFSService).Debug("wrote %d files atomically", len(pendings))
	logging.AuditWithRequest("").Log(logging.AuditEvent{
		EventType: logging.AuditFileWrite,
		Success:   true,
		Fields:    map[string]interface{}{"count": len(pendings)},
	})
	return nil
}

// writeTemp writes data to a sibling ".basename.<16hex>.tmp" file next to
// target and returns its path.
func writeTemp(target string, data []byte) (string, error) {
	dir := filepath.Dir(target)
	base := filepath.Base(target)

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	tmpName := "." + base + "." + hex.EncodeToString(suffix) + ".tmp"
	tmpPath := filepath.Join(dir, tmpName)

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", err
	}
	return tmpPath, nil
}

// Exists reports whether path exists.
func (s *Service) Exists(path string) (bool, error) {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(resolved)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, toFSError(err, path)
}

// Stat returns os.FileInfo for path.
func (s *Service) Stat(path string) (os.FileInfo, error) {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, toFSError(err, path)
	}
	return info, nil
}

// CheckFilesExist returns the subset of paths that do not exist.
func (s *Service) CheckFilesExist(paths []string) (missing []string, err error) {
	for _, p := range paths {
		ok, e := s.Exists(p)
		if e != nil {
			return nil, e
		}
		if !ok {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// Resolve exposes the guard's path resolution for callers, such as the
// Transaction Manager, that need the absolute on-disk path for an
// operation this service does not itself wrap (e.g. os.Chmod/os.Chtimes
// during rollback).
func (s *Service) Resolve(path string) (string, error) {
	return s.guard.Resolve(path)
}

// DeleteMany removes a batch of paths. Missing paths are not an error.
func (s *Service) DeleteMany(paths []string) error {
	for _, p := range paths {
		resolved, err := s.guard.Resolve(p)
		if err != nil {
			return err
		}
		if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
			return model.WrapError(model.KindInternal, err, "fsservice: delete %q", p).WithPath(p)
		}
	}
	logging.AuditWithRequest("").Log(logging.AuditEvent{
		EventType: logging.AuditFileDelete,
		Success:   true,
		Fields:    map[string]interface{}{"count": len(paths)},
	})
	return nil
}

// Mkdirp creates a directory and any missing parents.
func (s *Service) Mkdirp(path string) error {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(resolved, 0755); err != nil {
		return model.WrapError(model.KindInternal, err, "fsservice: mkdirp %q", path).WithPath(path)
	}
	return nil
}

// RmdirEmpty removes a directory if and only if it is empty.
func (s *Service) RmdirEmpty(path string) error {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(resolved); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return model.WrapError(model.KindInternal, err, "fsservice: rmdir %q", path).WithPath(path)
	}
	return nil
}

// Copy copies a file from src to dst, both resolved through the guard.
func (s *Service) Copy(src, dst string) error {
	srcResolved, err := s.guard.Resolve(src)
	if err != nil {
		return err
	}
	dstResolved, err := s.guard.Resolve(dst)
	if err != nil {
		return err
	}

	in, err := os.Open(srcResolved)
	if err != nil {
		return toFSError(err, src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstResolved), 0755); err != nil {
		return model.WrapError(model.KindInternal, err, "fsservice: create parent dir for %q", dst).WithPath(dst)
	}

	tmpPath := dstResolved + ".copytmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return model.WrapError(model.KindInternal, err, "fsservice: create temp for copy %q", dst).WithPath(dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return model.WrapError(model.KindInternal, err, "fsservice: copy %q -> %q", src, dst).WithPath(dst)
	}
	out.Close()

	if err := os.Rename(tmpPath, dstResolved); err != nil {
		os.Remove(tmpPath)
		return model.WrapError(model.KindInternal, err, "fsservice: finalize copy %q -> %q", src, dst).WithPath(dst)
	}
	return nil
}

// Move renames src to dst.
func (s *Service) Move(src, dst string) error {
	srcResolved, err := s.guard.Resolve(src)
	if err != nil {
		return err
	}
	dstResolved, err := s.guard.Resolve(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstResolved), 0755); err != nil {
		return model.WrapError(model.KindInternal, err, "fsservice: create parent dir for %q", dst).WithPath(dst)
	}
	if err := os.Rename(srcResolved, dstResolved); err != nil {
		return model.WrapError(model.KindInternal, err, "fsservice: move %q -> %q", src, dst).WithPath(dst)
	}
	return nil
}

// GlobOptions controls Glob expansion.
type GlobOptions struct {
	// IgnoreDefault disables the service's configured default ignore list.
	IgnoreDefault bool
}

// Glob expands a glob pattern (doublestar syntax: "**", "{a,b}") against
// the guarded root, applying default ignores and manual "!"-prefixed
// negation filtering (doublestar has no native negation operator).
func (s *Service) Glob(pattern string, opts GlobOptions) ([]string, error) {
	negate := strings.HasPrefix(pattern, "!")
	positive := strings.TrimPrefix(pattern, "!")

	root := s.guard.Root()
	fsys := os.DirFS(root)

	matches, err := doublestar.Glob(fsys, positive)
	if err != nil {
		return nil, model.WrapError(model.KindSchemaInvalid, err, "fsservice: invalid glob pattern %q", pattern)
	}

	ignores := s.ignore
	if opts.IgnoreDefault {
		ignores = nil
	}

	results := make([]string, 0, len(matches))
	for _, m := range matches {
		if matchesAny(m, ignores) {
			continue
		}
		results = append(results, m)
	}

	if negate {
		// A bare negated pattern with nothing to subtract from is an
		// empty result; callers combine positive and negated patterns
		// themselves and subtract the negated set from the positive set.
		return []string{}, nil
	}
	return results, nil
}

func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// ExpandGlobs expands a list of glob patterns, treating "!"-prefixed
// patterns as exclusions applied after every positive pattern is unioned.
func (s *Service) ExpandGlobs(patterns []string) ([]string, error) {
	var positive, negative []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			negative = append(negative, strings.TrimPrefix(p, "!"))
		} else {
			positive = append(positive, p)
		}
	}

	seen := make(map[string]bool)
	var ordered []string
	for _, p := range positive {
		matches, err := s.Glob(p, GlobOptions{})
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				ordered = append(ordered, m)
			}
		}
	}

	if len(negative) == 0 {
		return ordered, nil
	}

	filtered := ordered[:0]
	for _, m := range ordered {
		excluded := false
		for _, n := range negative {
			if ok, _ := doublestar.Match(n, m); ok {
				excluded = true
				break
			}
		}
		if !excluded {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

func toFSError(err error, path string) *model.Error {
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewError(model.KindNotFound, "%q not found", path).WithPath(path)
	}
	if errors.Is(err, fs.ErrPermission) {
		return model.NewError(model.KindPermissionDenied, "permission denied for %q", path).WithPath(path)
	}
	return model.WrapError(model.KindInternal, err, "unexpected error for %q", path).WithPath(path)
}

func asModelError(err error) *model.Error {
	var me *model.Error
	if errors.As(err, &me) {
		return me
	}
	return model.WrapError(model.KindInternal, err, "unexpected error")
}
