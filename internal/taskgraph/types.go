// Package taskgraph builds the station task payload from a tabular
// experiment recipe: column-kind inference, virtual-column splitting of
// mixed reagent columns, ordering heuristics, amount resolution, and
// the auxiliary reaction/sampling stages.
package taskgraph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Operation-unit wire types.
const (
	UnitAddPowder    = "exp_add_powder"
	UnitPipetting    = "exp_pipetting"
	UnitAddMagnet    = "exp_add_magnet"
	UnitStirrer      = "exp_magnetic_stirrer"
	UnitFilterSample = "exp_filtering_sample"
)

// ResourceType is the vendor resource type stamped on every unit.
const ResourceType = "551000502"

// MagnetCell is the literal a recipe cell uses to request a stir bar.
const MagnetCell = "magnet"

// ValidExperimentCounts are the tray sizes the station accepts.
var ValidExperimentCounts = []int{12, 24, 36, 48}

// Params are the recipe's global parameters.
type Params struct {
	ScaleMmol            float64  `yaml:"scale_mmol"`
	ReactorType          string   `yaml:"reactor_type"`
	TimeHours            float64  `yaml:"time_hours"`
	Temperature          *float64 `yaml:"temperature,omitempty"` // °C, nil = default 25
	RPM                  int      `yaml:"rpm"`
	TargetTemperature    *float64 `yaml:"target_temperature,omitempty"` // °C, nil = no heating
	WaitTargetTemp       bool     `yaml:"wait_target_temp"`
	WeighingTolerancePct float64  `yaml:"weighing_tolerance_pct"`
	MaxWeighingErrorMg   float64  `yaml:"max_weighing_error_mg"`
	FixedOrder           bool     `yaml:"fixed_order"`
	AutoMagnet           bool     `yaml:"auto_magnet"`
	InternalStandard     string   `yaml:"internal_standard"`
	// mg for a solid standard, μL for a liquid one.
	InternalStandardAmount float64 `yaml:"internal_standard_amount"`
	PostISStirMinutes      float64 `yaml:"post_is_stir_minutes"`
	Diluent                string  `yaml:"diluent"`
	DilutionVolumeUL       float64 `yaml:"dilution_volume_ul"`
	SampleVolumeUL         float64 `yaml:"sample_volume_ul"`
}

// Recipe is the parsed experiment table handed to the builder. Each row
// is one experiment; cells pair up with headers.
type Recipe struct {
	Name    string     `yaml:"name"`
	Params  Params     `yaml:"params"`
	Headers []string   `yaml:"headers"`
	Rows    [][]string `yaml:"rows"`
}

// Validate enforces the recipe-level invariants before the builder
// runs.
func (r *Recipe) Validate() error {
	n := len(r.Rows)
	ok := false
	for _, v := range ValidExperimentCounts {
		if n == v {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("experiment count %d not one of %v", n, ValidExperimentCounts)
	}
	for i, row := range r.Rows {
		if len(row) > len(r.Headers) {
			return fmt.Errorf("row %d has %d cells but only %d headers", i+1, len(row), len(r.Headers))
		}
	}
	return nil
}

// cell returns the trimmed cell at (row, col), tolerating ragged rows.
func (r *Recipe) cell(row, col int) string {
	if col < 0 || col >= len(r.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(r.Rows[row][col])
}

// Custom is the vendor UI hint block inside process_json.
type Custom struct {
	Unit        string   `json:"unit"`
	UnitOptions []string `json:"unitOptions,omitempty"`
}

// Process is the kind-specific payload of an operation unit. Fields not
// applicable to the unit's kind stay nil and are omitted on the wire.
type Process struct {
	Substance         string   `json:"substance,omitempty"`
	ChemicalID        int64    `json:"chemical_id,omitempty"`
	AddWeight         *float64 `json:"add_weight,omitempty"` // mg
	Offset            *float64 `json:"offset,omitempty"`     // mg
	AddVolume         *float64 `json:"add_volume,omitempty"` // mL
	SamplingVolume    *float64 `json:"sampling_volume,omitempty"`
	SinglePressNum    int      `json:"single_press_num,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TargetTemperature *float64 `json:"target_temperature,omitempty"`
	IsHeating         *bool    `json:"is_heating,omitempty"`
	IsWait            *bool    `json:"is_wait,omitempty"`
	RotationSpeed     *int     `json:"rotation_speed,omitempty"`
	ReactionDuration  *int     `json:"reaction_duration,omitempty"` // seconds
	Custom            *Custom  `json:"custom,omitempty"`
}

// Unit is one atomic station instruction placed on the task grid:
// column = experiment index, row = step index within the experiment.
type Unit struct {
	UnitID        string  `json:"unit_id"`
	UnitType      string  `json:"unit_type"`
	Column        int     `json:"unit_column"`
	Row           int     `json:"unit_row"`
	LayoutCode    string  `json:"layout_code"`
	SrcLayoutCode string  `json:"src_layout_code"`
	ResourceType  string  `json:"resource_type"`
	Status        int     `json:"status"`
	TrayQRCode    string  `json:"tray_QR_code"`
	QRCode        string  `json:"QR_code"`
	Process       Process `json:"process_json"`
}

// TaskSetup is the payload envelope's setup block.
type TaskSetup struct {
	Subtype       any    `json:"subtype"` // always null
	ExperimentNum int    `json:"experiment_num"`
	Vessel        string `json:"vessel"`
	AddedSlots    string `json:"added_slots"`
}

// Payload is the full task body posted to add_task.
type Payload struct {
	TaskID     int64     `json:"task_id"`
	TaskName   string    `json:"task_name"`
	IsAuditLog int       `json:"is_audit_log"`
	IsCopy     bool      `json:"is_copy"`
	TaskSetup  TaskSetup `json:"task_setup"`
	LayoutList []*Unit   `json:"layout_list"`
}

// ValidationError points the operator at the offending experiment row
// and recipe column.
type ValidationError struct {
	Row    int    // 1-based experiment row, 0 when not row-specific
	Column string // header name, "" when not column-specific
	Msg    string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("row %d, column %q: %s", e.Row, e.Column, e.Msg)
	case e.Row > 0:
		return fmt.Sprintf("row %d: %s", e.Row, e.Msg)
	case e.Column != "":
		return fmt.Sprintf("column %q: %s", e.Column, e.Msg)
	}
	return e.Msg
}

// newUnitID mints a wire unit id of the form "unit-<8-hex>".
func newUnitID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "unit-" + hex[:8]
}
