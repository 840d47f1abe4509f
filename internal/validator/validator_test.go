package validator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fileops/internal/astparser"
	"fileops/internal/fsservice"
	"fileops/internal/pathguard"
)

func newTestValidator(t *testing.T) (*Validator, string) {
	t.Helper()
	root := t.TempDir()
	g, err := pathguard.New(root)
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}
	fs := fsservice.New(g, nil)
	p := astparser.New()
	t.Cleanup(p.Close)
	return New(fs, nil, p, DefaultRegistry(), root), root
}

func TestValidate_NoConsoleFlagsCallSites(t *testing.T) {
	t.Parallel()
	v, root := newTestValidator(t)

	src := "function f() {\n  console.log('hi');\n}\n"
	if err := os.WriteFile(filepath.Join(root, "a.js"), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := v.Validate(context.Background(), []string{"*.js"}, nil, []string{"no-console"}, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(res.Issues) != 1 || res.Issues[0].Rule != "no-console" {
		t.Fatalf("expected one no-console issue, got %+v", res.Issues)
	}
	if res.Issues[0].Line != 2 {
		t.Errorf("line = %d, want 2", res.Issues[0].Line)
	}
}

func TestValidate_NoDebuggerAutofixRemovesStatement(t *testing.T) {
	t.Parallel()
	v, root := newTestValidator(t)

	src := "function f() {\n  debugger;\n  return 1;\n}\n"
	if err := os.WriteFile(filepath.Join(root, "a.js"), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := v.Validate(context.Background(), []string{"*.js"}, nil, []string{"no-debugger"}, true)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(res.Fixed) != 1 {
		t.Fatalf("expected one fixed file, got %+v", res.Fixed)
	}

	data, err := os.ReadFile(filepath.Join(root, "a.js"))
	if err != nil {
		t.Fatal(err)
	}
	if containsDebugger(string(data)) {
		t.Errorf("expected debugger statement removed, got %q", data)
	}
}

func containsDebugger(s string) bool {
	return debuggerStmtRe.MatchString(s)
}

func TestValidate_ConsistentNamingFlagsSnakeCaseFunction(t *testing.T) {
	t.Parallel()
	v, root := newTestValidator(t)

	src := "function do_thing() {}\n"
	if err := os.WriteFile(filepath.Join(root, "a.js"), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := v.Validate(context.Background(), []string{"*.js"}, nil, []string{"consistent-naming"}, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(res.Issues) != 1 {
		t.Fatalf("expected one naming issue, got %+v", res.Issues)
	}
}

func TestValidate_ImportResolutionFlagsMissingTarget(t *testing.T) {
	t.Parallel()
	v, root := newTestValidator(t)

	src := `import { x } from "./missing";`
	if err := os.WriteFile(filepath.Join(root, "a.js"), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := v.Validate(context.Background(), []string{"*.js"}, nil, []string{"import-resolution"}, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(res.Issues) != 1 || res.Issues[0].Rule != "import-resolution" {
		t.Fatalf("expected one import-resolution issue, got %+v", res.Issues)
	}
}

func TestValidate_ImportResolutionAcceptsKnownTarget(t *testing.T) {
	t.Parallel()
	v, root := newTestValidator(t)

	if err := os.WriteFile(filepath.Join(root, "a.js"), []byte(`import { b } from "./b";`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.js"), []byte(`export const b = 1;`), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := v.Validate(context.Background(), []string{"*.js"}, nil, []string{"import-resolution"}, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(res.Issues) != 0 {
		t.Fatalf("expected no issues, got %+v", res.Issues)
	}
}

func TestValidate_RunsCommandsAndCapturesExitCode(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidator(t)

	res, err := v.Validate(context.Background(), nil, []string{"true"}, nil, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(res.Commands) != 1 {
		t.Fatalf("expected one command result, got %+v", res.Commands)
	}
	if res.Commands[0].ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.Commands[0].ExitCode)
	}
}

func TestValidate_CommandNonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidator(t)

	res, err := v.Validate(context.Background(), nil, []string{"false"}, nil, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(res.Commands) != 1 || res.Commands[0].ExitCode == 0 {
		t.Fatalf("expected a non-zero exit captured as data, got %+v", res.Commands)
	}
}

func TestRegistry_SelectedDefaultsToAll(t *testing.T) {
	t.Parallel()
	r := DefaultRegistry()
	all := r.Selected(nil)
	if len(all) != 4 {
		t.Fatalf("expected 4 default rules, got %d", len(all))
	}
}
