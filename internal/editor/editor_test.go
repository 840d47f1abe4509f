package editor

import (
	"os"
	"path/filepath"
	"testing"

	"fileops/internal/astparser"
	"fileops/internal/cache"
	"fileops/internal/fsservice"
	"fileops/internal/model"
	"fileops/internal/pathguard"
)

func newTestEditor(t *testing.T) (*Editor, string) {
	t.Helper()
	root := t.TempDir()
	g, err := pathguard.New(root)
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}
	fs := fsservice.New(g, nil)
	c := cache.New(cache.Config{MaxSizeBytes: 1 << 20, MaxEntries: 100}, fs)
	p := astparser.New()
	t.Cleanup(p.Close)
	return New(fs, c, p), root
}

func TestApply_FindReplaceLiteralFirstOnly(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("foo foo foo"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "foo", Replace: "bar"}},
	}, false, false, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Changes[0].Applied != 1 {
		t.Errorf("applied = %d, want 1", res.Changes[0].Applied)
	}

	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(data) != "bar foo foo" {
		t.Errorf("content = %q", data)
	}
}

func TestApply_FindReplaceAll(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("foo foo foo"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "foo", Replace: "bar", ReplaceAll: true}},
	}, false, false, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Changes[0].Applied != 3 {
		t.Errorf("applied = %d, want 3", res.Changes[0].Applied)
	}

	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(data) != "bar bar bar" {
		t.Errorf("content = %q", data)
	}
}

func TestApply_FindReplaceNoMatch(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "missing", Replace: "x"}},
	}, false, false, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Changes[0].Applied != 0 {
		t.Errorf("applied = %d, want 0", res.Changes[0].Applied)
	}
}

func TestApply_FindReplaceRegex(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1.2.3"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangeFindReplace, Find: `\d+`, Replace: "N", Regex: true, ReplaceAll: true}},
	}, false, false, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Changes[0].Applied != 3 {
		t.Errorf("applied = %d, want 3", res.Changes[0].Applied)
	}
	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(data) != "vN.N.N" {
		t.Errorf("content = %q", data)
	}
}

func TestApply_LineInsertReplaceDelete(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\ntwo\nthree"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File: "a.txt",
		Changes: []model.Change{
			{Type: model.ChangeLine, Line: 2, LineOp: model.LineReplace, Content: "TWO"},
			{Type: model.ChangeLine, Line: 1, LineOp: model.LineInsert, Content: "zero"},
			{Type: model.ChangeLine, Line: 4, LineOp: model.LineDelete},
		},
	}, false, false, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i, ch := range res.Changes {
		if ch.Applied != 1 {
			t.Errorf("change %d applied = %d, want 1", i, ch.Applied)
		}
	}
	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(data) != "zero\none\nTWO" {
		t.Errorf("content = %q", data)
	}
}

func TestApply_LineOutOfRangeYieldsZeroChanges(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\ntwo"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangeLine, Line: 99, LineOp: model.LineReplace, Content: "x"}},
	}, false, false, false)
	if err != nil {
		t.Fatalf("Apply should not error on out-of-range line: %v", err)
	}
	if res.Changes[0].Applied != 0 {
		t.Errorf("applied = %d, want 0", res.Changes[0].Applied)
	}
}

func TestApply_PositionInvalidRangeYieldsZeroChanges(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangePosition, Start: 4, End: 1, Content: "x"}},
	}, false, false, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Changes[0].Applied != 0 {
		t.Errorf("applied = %d, want 0", res.Changes[0].Applied)
	}
}

func TestApply_PositionValidRange(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangePosition, Start: 0, End: 5, Content: "howdy"}},
	}, false, false, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Changes[0].Applied != 5 {
		t.Errorf("applied = %d, want 5", res.Changes[0].Applied)
	}
	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(data) != "howdy world" {
		t.Errorf("content = %q", data)
	}
}

func TestApply_CreateIfMissing(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)

	res, err := ed.Apply(model.FileEdit{
		File:            "new.txt",
		CreateIfMissing: true,
		Changes:         []model.Change{{Type: model.ChangeLine, Line: 1, LineOp: model.LineInsert, Content: "hello"}},
	}, false, false, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Written {
		t.Error("expected file to be written")
	}
	data, err := os.ReadFile(filepath.Join(root, "new.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("content = %q, %v", data, err)
	}
}

func TestApply_MissingFileWithoutCreateIfMissingErrors(t *testing.T) {
	t.Parallel()
	ed, _ := newTestEditor(t)

	_, err := ed.Apply(model.FileEdit{
		File:    "missing.txt",
		Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "x", Replace: "y"}},
	}, false, false, false)
	if !model.Is(err, model.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestApply_DryRunSuppressesWrite(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "hello", Replace: "goodbye"}},
	}, false, false, true)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Written {
		t.Error("dryRun should not write")
	}
	if res.Preview == nil {
		t.Error("dryRun should populate a preview")
	}

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("file should be unchanged, got %q, %v", data, err)
	}
}

func TestApply_PreserveFormattingKeepsCRLF(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\r\ntwo\r\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "two", Replace: "TWO"}},
	}, false, true, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one\r\nTWO\r\n" {
		t.Errorf("content = %q, want CRLF preserved", data)
	}
}

func TestApply_ValidateSyntaxCollectsErrorsWithoutBlocking(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("package main\nfunc broken( {\n"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ed.Apply(model.FileEdit{
		File:    "a.go",
		Changes: []model.Change{{Type: model.ChangeLine, Line: 1, LineOp: model.LineReplace, Content: "package main"}},
	}, true, false, false)
	if err != nil {
		t.Fatalf("Apply should not block on syntax errors: %v", err)
	}
	if !res.Written {
		t.Error("validateSyntax should not prevent write")
	}
	if len(res.SyntaxErrors) == 0 {
		t.Error("expected syntax errors to be collected")
	}
}

func TestApply_InvalidatesCacheAfterWrite(t *testing.T) {
	t.Parallel()
	ed, root := newTestEditor(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ed.Apply(model.FileEdit{
		File:    "a.txt",
		Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "v1", Replace: "v2"}},
	}, false, false, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	entry, err := ed.cache.Get("a.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Content != "v2" {
		t.Errorf("cache should see fresh content after invalidation, got %q", entry.Content)
	}
}
