package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fileops/internal/facade"
)

func withTempWorkspace(t *testing.T) string {
	t.Helper()
	ws := t.TempDir()
	logger = zap.NewNop()
	workspace = ws
	configPath = ""
	t.Cleanup(func() { workspace = ""; configPath = "" })
	return ws
}

func writeRequest(t *testing.T, dir string, body map[string]any) string {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "request.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunRun_CreateThenEditSucceeds(t *testing.T) {
	ws := withTempWorkspace(t)

	reqPath := writeRequest(t, ws, map[string]any{
		"operations": []map[string]any{
			{
				"id":   "a",
				"type": "create",
				"files": []map[string]any{
					{"path": "out.txt", "content": "hello"},
				},
			},
			{
				"id":        "b",
				"type":      "edit",
				"dependsOn": []string{"a"},
				"edits": []map[string]any{
					{"file": "out.txt", "changes": []map[string]any{
						{"type": "find-replace", "find": "hello", "replace": "world"},
					}},
				},
			},
		},
	})

	requestPath = reqPath
	defer func() { requestPath = "" }()

	cmd := &cobra.Command{}
	if err := runRun(cmd, nil); err != nil {
		t.Fatalf("runRun failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(ws, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "world" {
		t.Errorf("out.txt = %q, want %q", data, "world")
	}
}

func TestReadRequest_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"operations":[],"bogusField":true}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := readRequest(path); err == nil {
		t.Fatal("expected an error for an unknown top-level field")
	}
}

func TestReadRequest_FromStdin(t *testing.T) {
	body := []byte(`{"operations":[{"id":"a","type":"create","files":[{"path":"x.txt","content":"y"}]}]}`)

	origStdin := os.Stdin
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdin = r
	defer func() { os.Stdin = origStdin }()

	go func() {
		w.Write(body)
		w.Close()
	}()

	req, err := readRequest("")
	if err != nil {
		t.Fatalf("readRequest from stdin: %v", err)
	}
	if len(req.Operations) != 1 || req.Operations[0].ID != "a" {
		t.Errorf("unexpected request decoded from stdin: %+v", req)
	}
}

func TestRunValidateRequest_ListChecks(t *testing.T) {
	withTempWorkspace(t)
	listChecks = true
	defer func() { listChecks = false }()

	cmd := &cobra.Command{}
	if err := runValidateRequest(cmd, nil); err != nil {
		t.Fatalf("runValidateRequest --list-checks failed: %v", err)
	}
}

// runValidateRequest calls os.Exit(1) on a rejected request, so this test
// exercises the same resolveConfig -> readRequest -> facade.Plan path the
// command takes instead of calling runValidateRequest itself.
func TestValidateRequestPath_RejectsPathEscape(t *testing.T) {
	ws := withTempWorkspace(t)

	reqPath := writeRequest(t, ws, map[string]any{
		"operations": []map[string]any{
			{
				"id":   "evil",
				"type": "create",
				"files": []map[string]any{
					{"path": "../../etc/passwd", "content": "evil"},
				},
			},
		},
	})

	cfg, err := resolveConfig()
	if err != nil {
		t.Fatal(err)
	}
	req, err := readRequest(reqPath)
	if err != nil {
		t.Fatal(err)
	}

	f, err := facade.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.Plan(req); err == nil {
		t.Fatal("expected a path-escape rejection from Plan")
	}
}
