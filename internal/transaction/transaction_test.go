package transaction

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fileops/internal/fsservice"
	"fileops/internal/model"
	"fileops/internal/pathguard"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	g, err := pathguard.New(root)
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}
	fs := fsservice.New(g, nil)
	snapDir := filepath.Join(t.TempDir(), "transactions")
	mgr := NewManager(fs, Config{MaxSnapshots: 1000, SweepIntervalMs: 0, MaxAgeMs: 0, Dir: snapDir})
	return mgr, root
}

func TestBeginCreatesSnapshotDir(t *testing.T) {
	t.Parallel()
	mgr, _ := newTestManager(t)

	txn, err := mgr.Begin(nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if txn.Status != StatusActive {
		t.Errorf("status = %s, want active", txn.Status)
	}
	if info, err := os.Stat(txn.Dir); err != nil || !info.IsDir() {
		t.Errorf("expected snapshot dir created, got %v, %v", info, err)
	}
}

func TestCreateSnapshotsForEditAndCreate(t *testing.T) {
	t.Parallel()
	mgr, root := newTestManager(t)

	existing := filepath.Join(root, "a.txt")
	if err := os.WriteFile(existing, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	ops := []model.Operation{
		{Type: model.OpEdit, Edits: []model.FileEdit{{File: "a.txt", Changes: []model.Change{{Type: model.ChangeLine, Line: 1, LineOp: model.LineReplace, Content: "x"}}}}},
		{Type: model.OpCreate, Files: []model.CreateFile{{Path: "new.txt", Content: "fresh"}}},
	}

	txn, err := mgr.Begin(ops)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := mgr.CreateSnapshots(txn.ID, ops); err != nil {
		t.Fatalf("CreateSnapshots: %v", err)
	}

	if len(txn.snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(txn.snapshots))
	}

	var sawExisting, sawNew bool
	for _, s := range txn.snapshots {
		if s.Path == "a.txt" {
			sawExisting = true
			if !s.ExistedBefore {
				t.Error("a.txt snapshot should record ExistedBefore=true")
			}
			if string(s.Bytes) != "original" {
				t.Errorf("snapshot bytes = %q", s.Bytes)
			}
		}
		if s.Path == "new.txt" {
			sawNew = true
			if s.ExistedBefore {
				t.Error("new.txt snapshot should record ExistedBefore=false")
			}
		}
	}
	if !sawExisting || !sawNew {
		t.Errorf("missing expected snapshots: existing=%v new=%v", sawExisting, sawNew)
	}
}

func TestCommitRemovesSnapshotDir(t *testing.T) {
	t.Parallel()
	mgr, root := newTestManager(t)

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	ops := []model.Operation{{Type: model.OpEdit, Edits: []model.FileEdit{{File: "a.txt", Changes: []model.Change{{Type: model.ChangeLine, Line: 1, LineOp: model.LineReplace, Content: "v2"}}}}}}
	txn, _ := mgr.Begin(ops)
	if err := mgr.CreateSnapshots(txn.ID, ops); err != nil {
		t.Fatalf("CreateSnapshots: %v", err)
	}

	if err := mgr.Commit(txn.ID); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if txn.Status != StatusCommitted {
		t.Errorf("status = %s, want committed", txn.Status)
	}
	if _, err := os.Stat(txn.Dir); !os.IsNotExist(err) {
		t.Error("expected snapshot dir removed after commit")
	}
}

func TestRollbackRestoresModifiedFile(t *testing.T) {
	t.Parallel()
	mgr, root := newTestManager(t)

	target := filepath.Join(root, "a.txt")
	if err := os.WriteFile(target, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	ops := []model.Operation{{Type: model.OpEdit, Edits: []model.FileEdit{{File: "a.txt", Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "original", Replace: "mutated"}}}}}}
	txn, _ := mgr.Begin(ops)
	if err := mgr.CreateSnapshots(txn.ID, ops); err != nil {
		t.Fatalf("CreateSnapshots: %v", err)
	}

	// Simulate the engine's mutation happening after the snapshot.
	if err := os.WriteFile(target, []byte("mutated"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := mgr.Rollback(txn.ID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if !result.Success {
		t.Fatalf("rollback should succeed, got %+v", result)
	}

	data, err := os.ReadFile(target)
	if err != nil || string(data) != "original" {
		t.Errorf("expected original content restored, got %q, %v", data, err)
	}
	if txn.Status != StatusRolledBack {
		t.Errorf("status = %s, want rolledBack", txn.Status)
	}
}

func TestRollbackDeletesCreatedFile(t *testing.T) {
	t.Parallel()
	mgr, root := newTestManager(t)

	ops := []model.Operation{{Type: model.OpCreate, Files: []model.CreateFile{{Path: "new.txt", Content: "fresh"}}}}
	txn, _ := mgr.Begin(ops)
	if err := mgr.CreateSnapshots(txn.ID, ops); err != nil {
		t.Fatalf("CreateSnapshots: %v", err)
	}

	target := filepath.Join(root, "new.txt")
	if err := os.WriteFile(target, []byte("fresh"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := mgr.Rollback(txn.ID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if !result.Success {
		t.Fatalf("rollback should succeed, got %+v", result)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("expected created file removed by rollback")
	}
}

func TestSnapshotBudgetExceeded(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	g, err := pathguard.New(root)
	if err != nil {
		t.Fatal(err)
	}
	fs := fsservice.New(g, nil)
	mgr := NewManager(fs, Config{MaxSnapshots: 1, Dir: filepath.Join(t.TempDir(), "transactions")})

	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	ops := []model.Operation{{Type: model.OpEdit, Edits: []model.FileEdit{
		{File: "a.txt", Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "x", Replace: "y"}}},
		{File: "b.txt", Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "x", Replace: "y"}}},
	}}}

	txn, _ := mgr.Begin(ops)
	err = mgr.CreateSnapshots(txn.ID, ops)
	if !model.Is(err, model.KindSnapshotBudgetExceeded) {
		t.Fatalf("expected KindSnapshotBudgetExceeded, got %v", err)
	}
}

func TestSweepRollsBackOrphanedTransaction(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	g, err := pathguard.New(root)
	if err != nil {
		t.Fatal(err)
	}
	fs := fsservice.New(g, nil)
	mgr := NewManager(fs, Config{MaxSnapshots: 10, SweepIntervalMs: 20, MaxAgeMs: 30, Dir: filepath.Join(t.TempDir(), "transactions")})

	target := filepath.Join(root, "a.txt")
	if err := os.WriteFile(target, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	ops := []model.Operation{{Type: model.OpEdit, Edits: []model.FileEdit{{File: "a.txt", Changes: []model.Change{{Type: model.ChangeFindReplace, Find: "original", Replace: "mutated"}}}}}}
	txn, _ := mgr.Begin(ops)
	if err := mgr.CreateSnapshots(txn.ID, ops); err != nil {
		t.Fatalf("CreateSnapshots: %v", err)
	}
	if err := os.WriteFile(target, []byte("mutated"), 0644); err != nil {
		t.Fatal(err)
	}

	mgr.StartSweep()
	defer mgr.StopSweep()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("sweep did not roll back orphaned transaction in time")
		default:
		}
		data, _ := os.ReadFile(target)
		if string(data) == "original" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSweepDiskOrphansReclaimsUntrackedTransactionDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	g, err := pathguard.New(root)
	if err != nil {
		t.Fatal(err)
	}
	fs := fsservice.New(g, nil)
	snapDir := filepath.Join(t.TempDir(), "transactions")
	mgr := NewManager(fs, Config{MaxSnapshots: 10, Dir: snapDir})

	target := filepath.Join(root, "a.txt")
	if err := os.WriteFile(target, []byte("mutated"), 0644); err != nil {
		t.Fatal(err)
	}

	// Simulate a transaction directory left behind by a prior process that
	// exited before commit or rollback: no in-memory Transaction, just a
	// persisted .snapshot file on disk.
	orphanID := "txn_orphan"
	orphanDir := filepath.Join(snapDir, orphanID)
	if err := os.MkdirAll(orphanDir, 0755); err != nil {
		t.Fatal(err)
	}
	ps := persistedSnapshot{
		OriginalPath:  "a.txt",
		ExistedBefore: true,
		Content:       base64.StdEncoding.EncodeToString([]byte("original")),
		Stats:         &persistedStats{Mode: 0644, ModTime: time.Now().UnixNano()},
	}
	data, err := json.Marshal(ps)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(orphanDir, "snap_1.snapshot"), data, 0600); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(orphanDir, old, old); err != nil {
		t.Fatal(err)
	}

	mgr.sweepDiskOrphans(map[string]bool{}, time.Minute)

	restored, err := os.ReadFile(target)
	if err != nil || string(restored) != "original" {
		t.Errorf("expected orphaned transaction to restore original content, got %q, %v", restored, err)
	}
	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Error("expected orphaned transaction directory removed after reclaim")
	}
}
