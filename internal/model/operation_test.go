package model

import "testing"

func TestOperationValidate_Analyze(t *testing.T) {
	t.Parallel()

	op := Operation{Type: OpAnalyze}
	if err := op.Validate(); err == nil {
		t.Fatal("expected error for analyze with no paths")
	}

	op = Operation{Type: OpAnalyze, Paths: []string{"**/*.go"}, Extract: []string{"symbols"}}
	if err := op.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	op = Operation{Type: OpAnalyze, Paths: []string{"**/*.go"}, Extract: []string{"bogus"}}
	if err := op.Validate(); err == nil {
		t.Fatal("expected error for unknown extract kind")
	}
}

func TestOperationValidate_Edit(t *testing.T) {
	t.Parallel()

	op := Operation{Type: OpEdit}
	if err := op.Validate(); !Is(err, KindSchemaInvalid) {
		t.Fatalf("expected KindSchemaInvalid, got %v", err)
	}

	op = Operation{
		Type: OpEdit,
		Edits: []FileEdit{{
			File:    "a.txt",
			Changes: []Change{{Type: ChangeFindReplace, Find: "x", Replace: "y"}},
		}},
	}
	if err := op.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChangeValidate_Line(t *testing.T) {
	t.Parallel()

	c := Change{Type: ChangeLine, Line: 0, LineOp: LineInsert}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for line < 1")
	}

	c = Change{Type: ChangeLine, Line: 3, LineOp: "bogus"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown line operation")
	}

	c = Change{Type: ChangeLine, Line: 3, LineOp: LineDelete}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChangeValidate_Position(t *testing.T) {
	t.Parallel()

	c := Change{Type: ChangePosition, Start: 10, End: 5}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for end < start")
	}

	c = Change{Type: ChangePosition, Start: -1, End: 5}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for negative start")
	}

	c = Change{Type: ChangePosition, Start: 0, End: 0}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestValidate_DuplicateIDs(t *testing.T) {
	t.Parallel()

	req := Request{Operations: []Operation{
		{ID: "a", Type: OpCreate, Files: []CreateFile{{Path: "x.txt", Content: "x"}}},
		{ID: "a", Type: OpCreate, Files: []CreateFile{{Path: "y.txt", Content: "y"}}},
	}}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for duplicate operation ids")
	}
}

func TestIsReadOnly(t *testing.T) {
	t.Parallel()

	if !(Operation{Type: OpAnalyze}).IsReadOnly() {
		t.Error("analyze should be read-only")
	}
	if !(Operation{Type: OpValidate}).IsReadOnly() {
		t.Error("validate should be read-only")
	}
	if (Operation{Type: OpEdit}).IsReadOnly() {
		t.Error("edit should not be read-only")
	}
}
