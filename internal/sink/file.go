package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileSink is the filesystem Sink: JSONL streams for snapshots and
// transfer logs, one folder per task. A file lock on the sink directory
// keeps two concurrent runs from interleaving records.
type FileSink struct {
	dir  string
	lock *flock.Flock
}

// statusRecord is one line of a task's status.jsonl.
type statusRecord struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// Open creates (if needed) and locks the sink directory.
func Open(dir string) (*FileSink, error) {
	for _, sub := range []string{"snapshots", "tasks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0750); err != nil {
			return nil, fmt.Errorf("create sink directory: %w", err)
		}
	}
	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock sink directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("sink directory %s is in use by another run", dir)
	}
	return &FileSink{dir: dir, lock: lock}, nil
}

// Close releases the directory lock.
func (s *FileSink) Close() error {
	return s.lock.Unlock()
}

// appendJSONL appends one timestamped record to a JSONL file.
func (s *FileSink) appendJSONL(path string, record any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("sink: marshal record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("sink: append %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON writes a single JSON document, replacing any previous one.
func (s *FileSink) writeJSON(path string, data any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0640); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

func (s *FileSink) taskDir(id int64) string {
	return filepath.Join(s.dir, "tasks", fmt.Sprintf("%d", id))
}

// Snapshot appends to snapshots/<kind>.jsonl.
func (s *FileSink) Snapshot(kind string, data any) error {
	return s.appendJSONL(filepath.Join(s.dir, "snapshots", kind+".jsonl"), map[string]any{
		"at":   time.Now().UTC(),
		"kind": kind,
		"data": data,
	})
}

func (s *FileSink) TaskCreate(id int64, info any) error {
	return s.writeJSON(filepath.Join(s.taskDir(id), "info.json"), info)
}

func (s *FileSink) TaskStatus(id int64, status string, at time.Time) error {
	return s.appendJSONL(filepath.Join(s.taskDir(id), "status.jsonl"), statusRecord{Status: status, At: at})
}

func (s *FileSink) TaskPayload(id int64, payload any) error {
	return s.writeJSON(filepath.Join(s.taskDir(id), "payload.json"), payload)
}

func (s *FileSink) ResourceCheck(id int64, report any) error {
	return s.writeJSON(filepath.Join(s.taskDir(id), "resource_check.json"), report)
}

func (s *FileSink) TaskDischarge(id int64, entry any) error {
	if id == 0 {
		return s.appendJSONL(filepath.Join(s.dir, "discharge.jsonl"), entry)
	}
	return s.appendJSONL(filepath.Join(s.taskDir(id), "discharge.jsonl"), entry)
}

func (s *FileSink) BatchInLog(entry any) error {
	return s.appendJSONL(filepath.Join(s.dir, "batch_in.jsonl"), entry)
}

func (s *FileSink) BatchOutLog(entry any) error {
	return s.appendJSONL(filepath.Join(s.dir, "batch_out.jsonl"), entry)
}

// terminalStatuses mirrors the station's terminal task lifecycle
// states.
var terminalStatuses = map[string]bool{
	"COMPLETED": true,
	"FAILED":    true,
	"STOPPED":   true,
}

// RetentionSweep deletes task folders whose last recorded status is
// terminal and older than the cutoff. Tasks still in flight are never
// swept.
func (s *FileSink) RetentionSweep(days int) error {
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	entries, err := os.ReadDir(filepath.Join(s.dir, "tasks"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sink: sweep: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.dir, "tasks", e.Name())
		last, ok := lastStatus(filepath.Join(dir, "status.jsonl"))
		if !ok || !terminalStatuses[last.Status] || last.At.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("sink: sweep %s: %w", e.Name(), err)
		}
	}
	return nil
}

// lastStatus reads the final line of a status.jsonl.
func lastStatus(path string) (statusRecord, bool) {
	f, err := os.Open(path)
	if err != nil {
		return statusRecord{}, false
	}
	defer func() { _ = f.Close() }()

	var last statusRecord
	found := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec statusRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		last = rec
		found = true
	}
	return last, found
}

var _ Sink = (*FileSink)(nil)
