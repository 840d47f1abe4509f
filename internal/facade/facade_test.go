package facade

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fileops/internal/config"
	"fileops/internal/model"
)

func newTestFacade(t *testing.T) (*Facade, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Root = root
	cfg.Transaction.SweepIntervalMs = 0 // no background sweep during tests

	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(f.Close)
	return f, root
}

// S1 — single-file create-then-edit with dependency.
func TestExecute_S1_CreateThenEditWithDependency(t *testing.T) {
	t.Parallel()
	f, root := newTestFacade(t)

	req := model.Request{
		Operations: []model.Operation{
			{ID: "a", Type: model.OpCreate, Files: []model.CreateFile{{Path: "multi.txt", Content: "Initial content"}}},
			{ID: "b", Type: model.OpEdit, DependsOn: []string{"a"}, Edits: []model.FileEdit{
				{File: "multi.txt", Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "Initial", Replace: "Updated"}}},
			}},
		},
		Options: model.ExecutionOptions{Parallel: false},
	}

	agg := f.Execute(context.Background(), req, nil)
	if !agg.Success {
		t.Fatalf("expected success, got %+v", agg)
	}
	if agg.Summary.Total != 2 || agg.Summary.Successful != 2 {
		t.Fatalf("expected summary {2,2}, got %+v", agg.Summary)
	}

	data, err := os.ReadFile(filepath.Join(root, "multi.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Updated content" {
		t.Errorf("multi.txt = %q, want %q", data, "Updated content")
	}
}

// S2 — transaction rollback on failure.
func TestExecute_S2_TransactionRollbackOnFailure(t *testing.T) {
	t.Parallel()
	f, root := newTestFacade(t)

	req := model.Request{
		Operations: []model.Operation{
			{ID: "c1", Type: model.OpCreate, Files: []model.CreateFile{{Path: "trans1.txt", Content: "File 1"}}},
			{ID: "e1", Type: model.OpEdit, Edits: []model.FileEdit{
				{File: "non-existent.txt", Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "x", Replace: "y"}}},
			}},
			{ID: "c3", Type: model.OpCreate, Files: []model.CreateFile{{Path: "trans3.txt", Content: "File 3"}}},
		},
		Options: model.ExecutionOptions{Transaction: true, Parallel: false},
	}

	agg := f.Execute(context.Background(), req, nil)
	if agg.Success {
		t.Fatalf("expected overall failure, got %+v", agg)
	}

	if _, err := os.Stat(filepath.Join(root, "trans1.txt")); err == nil {
		t.Errorf("expected trans1.txt to not exist after rollback")
	}
	if _, err := os.Stat(filepath.Join(root, "trans3.txt")); err == nil {
		t.Errorf("expected trans3.txt to not exist after rollback")
	}

	var edit model.OperationResult
	for _, r := range agg.Results {
		if r.ID == "e1" {
			edit = r
		}
	}
	if edit.Status != model.StatusFailed || edit.Error == nil || edit.Error.Kind != model.KindNotFound {
		t.Fatalf("expected e1 to fail with KindNotFound, got %+v", edit)
	}
}

// S3 — parallel independent creates.
func TestExecute_S3_ParallelIndependentCreates(t *testing.T) {
	t.Parallel()
	f, root := newTestFacade(t)

	req := model.Request{
		Operations: []model.Operation{
			{ID: "c1", Type: model.OpCreate, Files: []model.CreateFile{{Path: "p1.txt", Content: "1"}}},
			{ID: "c2", Type: model.OpCreate, Files: []model.CreateFile{{Path: "p2.txt", Content: "2"}}},
			{ID: "c3", Type: model.OpCreate, Files: []model.CreateFile{{Path: "p3.txt", Content: "3"}}},
		},
		Options: model.ExecutionOptions{Parallel: true, MaxConcurrency: 3},
	}

	agg := f.Execute(context.Background(), req, nil)
	if !agg.Success || agg.Summary.Successful != 3 {
		t.Fatalf("expected 3 successful creates, got %+v", agg)
	}
	for _, name := range []string{"p1.txt", "p2.txt", "p3.txt"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

// S4 — path-traversal rejection.
func TestExecute_S4_PathTraversalRejection(t *testing.T) {
	t.Parallel()
	f, root := newTestFacade(t)

	req := model.Request{
		Operations: []model.Operation{
			{ID: "evil", Type: model.OpCreate, Files: []model.CreateFile{{Path: "../../etc/passwd", Content: "evil"}}},
		},
	}

	agg := f.Execute(context.Background(), req, nil)
	if agg.Success {
		t.Fatalf("expected rejection, got %+v", agg)
	}
	if agg.Error == nil || agg.Error.Kind != model.KindPathEscape {
		t.Fatalf("expected KindPathEscape, got %+v", agg.Error)
	}

	entries, err := os.ReadDir(filepath.Dir(root))
	if err != nil {
		t.Fatal(err)
	}
	_ = entries // no transaction directory should exist under root either
	if _, err := os.Stat(filepath.Join(root, ".fileops")); err == nil {
		t.Errorf("expected no transaction directory created for a rejected request")
	}
}

// S6 — regex replace-all.
func TestExecute_S6_RegexReplaceAll(t *testing.T) {
	t.Parallel()
	f, root := newTestFacade(t)

	if err := os.WriteFile(filepath.Join(root, "consts.js"), []byte(`const foo123 = "x"; const foo456 = "y";`), 0644); err != nil {
		t.Fatal(err)
	}

	req := model.Request{
		Operations: []model.Operation{
			{ID: "e", Type: model.OpEdit, Edits: []model.FileEdit{
				{File: "consts.js", Changes: []model.Change{
					{Type: model.ChangeFindReplace, Find: `foo\d+`, Replace: "bar", Regex: true, ReplaceAll: true},
				}},
			}},
		},
	}

	agg := f.Execute(context.Background(), req, nil)
	if !agg.Success {
		t.Fatalf("expected success, got %+v", agg)
	}

	data, err := os.ReadFile(filepath.Join(root, "consts.js"))
	if err != nil {
		t.Fatal(err)
	}
	want := `const bar = "x"; const bar = "y";`
	if string(data) != want {
		t.Errorf("consts.js = %q, want %q", data, want)
	}
}

func TestExecute_EmptyRequestFailsSchemaValidation(t *testing.T) {
	t.Parallel()
	f, _ := newTestFacade(t)

	agg := f.Execute(context.Background(), model.Request{}, nil)
	if agg.Success {
		t.Fatalf("expected failure for an empty request, got %+v", agg)
	}
	if agg.Error == nil || agg.Error.Kind != model.KindSchemaInvalid {
		t.Fatalf("expected KindSchemaInvalid, got %+v", agg.Error)
	}
}
