// Package sink records run history: append-only JSON snapshots and a
// per-task record folder. The coordinator and the readiness analyzer
// write through the Sink interface; they never read back.
package sink

import "time"

// Snapshot kinds.
const (
	KindDeviceStatus = "device-status"
	KindStationState = "station-state"
	KindGloveboxEnv  = "glovebox-env"
	KindResourceInfo = "resource-info"
)

// Sink is the append-only record surface. Implementations must be safe
// for sequential use from a single run; calls are side-effect-only.
type Sink interface {
	// Snapshot appends a station observation of the given kind.
	Snapshot(kind string, data any) error

	// TaskCreate records a newly submitted task.
	TaskCreate(id int64, info any) error
	// TaskStatus appends a task status transition.
	TaskStatus(id int64, status string, at time.Time) error
	// TaskPayload stores the payload as submitted.
	TaskPayload(id int64, payload any) error
	// ResourceCheck stores a readiness report for the task.
	ResourceCheck(id int64, report any) error
	// TaskDischarge appends a discharge log. id 0 means the discharge
	// was not tied to a task (empties-only).
	TaskDischarge(id int64, entry any) error

	// BatchInLog and BatchOutLog append material transfer records.
	BatchInLog(entry any) error
	BatchOutLog(entry any) error

	// RetentionSweep removes completed task records older than the
	// cutoff.
	RetentionSweep(days int) error
}

// Discard is a Sink that drops everything. Useful in tests and dry
// runs.
type Discard struct{}

func (Discard) Snapshot(string, any) error                 { return nil }
func (Discard) TaskCreate(int64, any) error                { return nil }
func (Discard) TaskStatus(int64, string, time.Time) error  { return nil }
func (Discard) TaskPayload(int64, any) error               { return nil }
func (Discard) ResourceCheck(int64, any) error             { return nil }
func (Discard) TaskDischarge(int64, any) error             { return nil }
func (Discard) BatchInLog(any) error                       { return nil }
func (Discard) BatchOutLog(any) error                      { return nil }
func (Discard) RetentionSweep(int) error                   { return nil }
