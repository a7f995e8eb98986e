package station

import "encoding/json"

// State is the station's overall status code.
type State int

const (
	StateUnknown      State = 0
	StateIdle         State = 1
	StateRunning      State = 2
	StateError        State = 3
	StateInitializing State = 4
	StatePaused       State = 5
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateError:
		return "ERROR"
	case StateInitializing:
		return "INITIALIZING"
	case StatePaused:
		return "PAUSED"
	}
	return "UNKNOWN"
}

// Task lifecycle statuses as the station reports them.
const (
	TaskUnstarted = "UNSTARTED"
	TaskRunning   = "RUNNING"
	TaskCompleted = "COMPLETED"
	TaskPaused    = "PAUSED"
	TaskFailed    = "FAILED"
	TaskStopped   = "STOPPED"
	TaskPausing   = "PAUSING"
	TaskStopping  = "STOPPING"
	TaskWaiting   = "WAITING"
	TaskHolding   = "HOLDING"
)

// TaskTerminal reports whether a status ends the task lifecycle.
func TaskTerminal(status string) bool {
	switch status {
	case TaskCompleted, TaskFailed, TaskStopped:
		return true
	}
	return false
}

// SubstanceDetail is one well's contents inside an inventory row.
// Amount fields are pointers: the station omits the ones that do not
// apply, and consumers pick the first available.
type SubstanceDetail struct {
	Slot            int      `json:"slot"`
	Well            string   `json:"well"`
	Substance       string   `json:"substance"`
	AvailableWeight *float64 `json:"available_weight,omitempty"` // mg
	CurWeight       *float64 `json:"cur_weight,omitempty"`
	InitialWeight   *float64 `json:"initial_weight,omitempty"`
	AvailableVolume *float64 `json:"available_volume,omitempty"` // mL
	CurVolume       *float64 `json:"cur_volume,omitempty"`
	InitialVolume   *float64 `json:"initial_volume,omitempty"`
	Value           *float64 `json:"value,omitempty"`
	Unit            string   `json:"unit,omitempty"`
}

// InventoryRow is one logical tray position reported by the station.
type InventoryRow struct {
	LayoutCode string            `json:"layout_code"` // e.g. "W-1-3"
	TrayCode   int               `json:"resource_code"`
	Name       string            `json:"name"`
	Count      int               `json:"count"`
	Details    []SubstanceDetail `json:"substance_details,omitempty"`
}

// GloveboxEnv is the glovebox atmosphere snapshot.
type GloveboxEnv struct {
	Pressure float64 `json:"pressure"` // Pa, relative
	O2PPM    float64 `json:"o2_ppm"`
	H2OPPM   float64 `json:"h2o_ppm"`
}

// TaskInfo is a task's station-side record.
type TaskInfo struct {
	ID            int64    `json:"task_id"`
	Name          string   `json:"task_name"`
	Status        string   `json:"status"`
	ReactionTrays []string `json:"reaction_trays,omitempty"` // layout codes
	SamplingTrays []string `json:"sampling_trays,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

// StepUnit is one entry of a task's operation trace.
type StepUnit struct {
	UnitID string `json:"unit_id"`
	Action string `json:"action"`
	Target string `json:"target"`
}

// TaskOpInfo is the per-task step trace used for progress rendering.
type TaskOpInfo struct {
	TaskID       int64      `json:"task_id"`
	DoneUnits    []StepUnit `json:"done_units"`
	RunningUnits []StepUnit `json:"running_units"`
}

// ResourceCheck is the result of the station-side readiness check.
// Code 1200 is a soft shortage, not an error.
type ResourceCheck struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	PromptMsg string `json:"prompt_msg,omitempty"`
}

// Shortage reports whether the check found the station short on
// resources.
func (r *ResourceCheck) Shortage() bool { return r.Code == CodeResourceShortage }

// TrayLoad is one load-in request for batch_in_tray.
type TrayLoad struct {
	LayoutCode string          `json:"layout_code"`
	TrayCode   int             `json:"resource_code"`
	Details    json.RawMessage `json:"substance_details,omitempty"`
}

// TrayDischarge is one entry of a batch_out_tray plan.
type TrayDischarge struct {
	Source string `json:"src_layout_code"`
	Dest   string `json:"dst_layout_code"`
}

// TaskListOptions pages and filters get_task_list.
type TaskListOptions struct {
	Sort   string // "id" or "-id"
	Offset int
	Limit  int
	Status string // optional filter
}
