package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
	}
	return n
}

func TestSnapshotAppends(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.Snapshot(KindStationState, map[string]string{"state": "IDLE"}); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := s.Snapshot(KindStationState, map[string]string{"state": "RUNNING"}); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	path := filepath.Join(s.dir, "snapshots", KindStationState+".jsonl")
	if got := countLines(t, path); got != 2 {
		t.Errorf("snapshot lines = %d, want 2", got)
	}
}

func TestTaskRecordFolder(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	if err := s.TaskCreate(42, map[string]string{"name": "run-1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.TaskPayload(42, map[string]int{"experiment_num": 12}); err != nil {
		t.Fatal(err)
	}
	if err := s.TaskStatus(42, "RUNNING", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.TaskStatus(42, "COMPLETED", time.Now()); err != nil {
		t.Fatal(err)
	}

	dir := s.taskDir(42)
	for _, name := range []string{"info.json", "payload.json", "status.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	var payload map[string]int
	raw, err := os.ReadFile(filepath.Join(dir, "payload.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["experiment_num"] != 12 {
		t.Errorf("payload = %v", payload)
	}
}

func TestRetentionSweep(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	old := time.Now().UTC().AddDate(0, 0, -40)
	if err := s.TaskStatus(1, "COMPLETED", old); err != nil {
		t.Fatal(err)
	}
	if err := s.TaskStatus(2, "COMPLETED", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.TaskStatus(3, "RUNNING", old); err != nil {
		t.Fatal(err)
	}

	if err := s.RetentionSweep(30); err != nil {
		t.Fatalf("RetentionSweep: %v", err)
	}

	if _, err := os.Stat(s.taskDir(1)); !os.IsNotExist(err) {
		t.Error("old completed task should be swept")
	}
	if _, err := os.Stat(s.taskDir(2)); err != nil {
		t.Error("recent completed task should stay")
	}
	if _, err := os.Stat(s.taskDir(3)); err != nil {
		t.Error("running task should never be swept")
	}
}

func TestLockRejectsSecondRun(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dir); err == nil {
		t.Error("second Open on a locked sink should fail")
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen after Close: %v", err)
	}
	_ = s2.Close()
}
