package taskgraph

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/orchidlab/synthctl/internal/amount"
	"github.com/orchidlab/synthctl/internal/chem"
)

func testDirectory(t *testing.T) *chem.Directory {
	t.Helper()
	d, err := chem.NewDirectory([]*chem.Chemical{
		{Name: "A", MolecularWeight: 100, State: amount.StateSolid, Form: amount.FormNeat},
		{Name: "B", State: amount.StateLiquid, Form: amount.FormSolution, ActiveContent: 1.0},
		{Name: "DMSO", MolecularWeight: 78.13, Density: 1.1, State: amount.StateLiquid, Form: amount.FormNeat},
		{Name: "EtOH", MolecularWeight: 46.07, Density: 0.789, State: amount.StateLiquid, Form: amount.FormNeat},
		{Name: "biphenyl", MolecularWeight: 154.21, State: amount.StateSolid, Form: amount.FormNeat},
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func repeatRows(n int, row []string) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = append([]string(nil), row...)
	}
	return rows
}

// unitsByColumn groups payload units per experiment, preserving order.
func unitsByColumn(p *Payload) map[int][]*Unit {
	out := make(map[int][]*Unit)
	for _, u := range p.LayoutList {
		out[u.Column] = append(out[u.Column], u)
	}
	return out
}

// Two-reagent coupling, 12 experiments, auto-magnet on, reaction stir
// and filter sampling. Expected grid: 12 columns × 5 rows, with the
// solid first, then the magnet, the liquid, the stir, and the sample.
func TestBuildTwoReagentCoupling(t *testing.T) {
	recipe := &Recipe{
		Name: "coupling-screen",
		Params: Params{
			ScaleMmol:            0.1,
			ReactorType:          "autotype heat",
			TimeHours:            2,
			RPM:                  600,
			WeighingTolerancePct: 1,
			MaxWeighingErrorMg:   10,
			AutoMagnet:           true,
			Diluent:              "DMSO",
			DilutionVolumeUL:     50,
			SampleVolumeUL:       20,
		},
		Headers: []string{"reagent_1", "amount_1", "reagent_2", "amount_2"},
		Rows:    repeatRows(12, []string{"A", "1.0 eq", "B", "1.5 eq"}),
	}

	p, err := NewBuilder(testDirectory(t)).Build(recipe)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	byCol := unitsByColumn(p)
	if len(byCol) != 12 {
		t.Fatalf("columns = %d, want 12", len(byCol))
	}
	if p.TaskSetup.ExperimentNum != 12 {
		t.Errorf("experiment_num = %d", p.TaskSetup.ExperimentNum)
	}

	wantKinds := []string{UnitAddPowder, UnitAddMagnet, UnitPipetting, UnitStirrer, UnitFilterSample}
	for col, units := range byCol {
		if len(units) != 5 {
			t.Fatalf("column %d has %d rows, want 5", col, len(units))
		}
		for i, u := range units {
			if u.UnitType != wantKinds[i] {
				t.Errorf("column %d row %d = %s, want %s", col, i, u.UnitType, wantKinds[i])
			}
			if u.Row != i {
				t.Errorf("column %d row index %d, want %d", col, u.Row, i)
			}
		}

		powder, pipette, stir, sample := units[0], units[2], units[3], units[4]
		if got := *powder.Process.AddWeight; got != 10.0 {
			t.Errorf("powder target = %v mg, want 10.0", got)
		}
		if got := *powder.Process.Offset; got != 0.1 {
			t.Errorf("powder offset = %v, want 0.1", got)
		}
		if got := *pipette.Process.AddVolume; got != 0.15 {
			t.Errorf("pipette volume = %v mL, want 0.15", got)
		}
		if got := *stir.Process.ReactionDuration; got != 7200 {
			t.Errorf("stir duration = %v s, want 7200", got)
		}
		if got := *stir.Process.Temperature; got != 25 {
			t.Errorf("stir temperature = %v, want default 25", got)
		}
		if got := *sample.Process.AddVolume; got != 0.05 {
			t.Errorf("filter add_volume = %v mL, want 0.050", got)
		}
		if got := *sample.Process.SamplingVolume; got != 0.02 {
			t.Errorf("sampling_volume = %v mL, want 0.020", got)
		}
		if sample.Process.SinglePressNum != 6 {
			t.Errorf("single_press_num = %d", sample.Process.SinglePressNum)
		}
	}
}

// A single reagent column carrying solid A in rows 1–6 and liquid B in
// rows 7–12 splits into solid and liquid virtual columns with no
// cross-contamination.
func TestBuildMixedColumnSplits(t *testing.T) {
	rows := make([][]string, 12)
	for i := range rows {
		if i < 6 {
			rows[i] = []string{"A", "5 mg"}
		} else {
			rows[i] = []string{"B", "100 μL"}
		}
	}
	recipe := &Recipe{
		Name:    "mixed",
		Params:  Params{WeighingTolerancePct: 1, MaxWeighingErrorMg: 10},
		Headers: []string{"reagent_1", "amount_1"},
		Rows:    rows,
	}

	p, err := NewBuilder(testDirectory(t)).Build(recipe)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	byCol := unitsByColumn(p)
	if len(byCol) != 12 {
		t.Fatalf("columns = %d, want 12", len(byCol))
	}
	for col, units := range byCol {
		if len(units) != 1 {
			t.Fatalf("column %d has %d units, want 1", col, len(units))
		}
		u := units[0]
		if u.Row != 0 {
			t.Errorf("column %d row = %d, want contiguous from 0", col, u.Row)
		}
		if col < 6 {
			if u.UnitType != UnitAddPowder || u.Process.Substance != "A" {
				t.Errorf("column %d: %s %q, want powder A", col, u.UnitType, u.Process.Substance)
			}
		} else {
			if u.UnitType != UnitPipetting || u.Process.Substance != "B" {
				t.Errorf("column %d: %s %q, want pipette B", col, u.UnitType, u.Process.Substance)
			}
			if got := *u.Process.AddVolume; got != 0.1 {
				t.Errorf("column %d volume = %v, want 0.1", col, got)
			}
		}
	}
}

// In auto mode liquids order by descending max volume after solids.
func TestAutoOrdering(t *testing.T) {
	recipe := &Recipe{
		Name:    "ordering",
		Params:  Params{WeighingTolerancePct: 1, MaxWeighingErrorMg: 10},
		Headers: []string{"reagent_1", "amount_1", "reagent_2", "amount_2", "reagent_3", "amount_3"},
		// Small liquid, solid, big liquid: expect solid, EtOH (0.5 mL), DMSO (0.2 mL).
		Rows: repeatRows(12, []string{"DMSO", "200 μL", "A", "5 mg", "EtOH", "0.5 mL"}),
	}
	p, err := NewBuilder(testDirectory(t)).Build(recipe)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	units := unitsByColumn(p)[0]
	var got []string
	for _, u := range units {
		got = append(got, u.Process.Substance)
	}
	want := []string{"A", "EtOH", "DMSO"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

// Fixed order keeps source order and inserts the synthetic magnet right
// before the first liquid column.
func TestFixedOrderMagnetPlacement(t *testing.T) {
	recipe := &Recipe{
		Name: "fixed",
		Params: Params{
			WeighingTolerancePct: 1, MaxWeighingErrorMg: 10,
			FixedOrder: true, AutoMagnet: true,
		},
		Headers: []string{"reagent_1", "amount_1", "reagent_2", "amount_2"},
		Rows:    repeatRows(12, []string{"DMSO", "100 μL", "A", "5 mg"}),
	}
	p, err := NewBuilder(testDirectory(t)).Build(recipe)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	units := unitsByColumn(p)[0]
	kinds := []string{units[0].UnitType, units[1].UnitType, units[2].UnitType}
	want := []string{UnitAddMagnet, UnitPipetting, UnitAddPowder}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
}

// An explicit magnet cell suppresses the synthetic magnet unit for that
// experiment only.
func TestExplicitMagnetSuppressesSynthetic(t *testing.T) {
	rows := repeatRows(12, []string{"A", "5 mg", ""})
	rows[3][2] = "magnet"
	recipe := &Recipe{
		Name: "suppress",
		Params: Params{
			WeighingTolerancePct: 1, MaxWeighingErrorMg: 10, AutoMagnet: true,
		},
		Headers: []string{"reagent_1", "amount_1", "magnet"},
		Rows:    rows,
	}
	p, err := NewBuilder(testDirectory(t)).Build(recipe)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for col, units := range unitsByColumn(p) {
		magnets := 0
		for _, u := range units {
			if u.UnitType == UnitAddMagnet {
				magnets++
			}
		}
		if magnets != 1 {
			t.Errorf("column %d has %d magnet units, want exactly 1", col, magnets)
		}
	}
}

func TestBuildFailures(t *testing.T) {
	dir := testDirectory(t)
	base := Params{WeighingTolerancePct: 1, MaxWeighingErrorMg: 10}

	t.Run("unknown chemical names row and column", func(t *testing.T) {
		recipe := &Recipe{
			Params:  base,
			Headers: []string{"reagent_1", "amount_1"},
			Rows:    repeatRows(12, []string{"mystery", "1 mg"}),
		}
		_, err := NewBuilder(dir).Build(recipe)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("want ValidationError, got %v", err)
		}
		if verr.Row != 1 || verr.Column != "reagent_1" {
			t.Errorf("fault location = row %d column %q", verr.Row, verr.Column)
		}
		if !strings.Contains(verr.Msg, "mystery") {
			t.Errorf("fault should name the chemical: %q", verr.Msg)
		}
	})

	t.Run("eq without reaction scale", func(t *testing.T) {
		recipe := &Recipe{
			Params:  base, // ScaleMmol zero
			Headers: []string{"reagent_1", "amount_1"},
			Rows:    repeatRows(12, []string{"A", "1.0 eq"}),
		}
		if _, err := NewBuilder(dir).Build(recipe); err == nil {
			t.Fatal("expected fault for eq amount without scale")
		}
	})

	t.Run("bad experiment count", func(t *testing.T) {
		recipe := &Recipe{
			Params:  base,
			Headers: []string{"reagent_1", "amount_1"},
			Rows:    repeatRows(10, []string{"A", "1 mg"}),
		}
		if _, err := NewBuilder(dir).Build(recipe); err == nil {
			t.Fatal("expected fault for 10 experiments")
		}
	})
}

func TestWeighingOffset(t *testing.T) {
	p := &Params{WeighingTolerancePct: 1, MaxWeighingErrorMg: 10}
	tests := []struct{ target, want float64 }{
		{10, 0.1},    // 1% of 10 mg = 0.1
		{5, 0.1},     // below floor → 0.1
		{500, 5},     // 1% of 500 = 5
		{2000, 10},   // capped at max error
		{123.4, 1.2}, // rounded to 0.1 mg
	}
	for _, tt := range tests {
		if got := weighingOffset(tt.target, p); got != tt.want {
			t.Errorf("weighingOffset(%v) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestPayloadWireShape(t *testing.T) {
	recipe := &Recipe{
		Name:    "wire",
		Params:  Params{WeighingTolerancePct: 1, MaxWeighingErrorMg: 10},
		Headers: []string{"reagent_1", "amount_1"},
		Rows:    repeatRows(12, []string{"A", "5 mg"}),
	}
	p, err := NewBuilder(testDirectory(t)).Build(recipe)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{
		`"task_name":"wire"`,
		`"is_audit_log":1`,
		`"subtype":null`,
		`"experiment_num":12`,
		`"unit_type":"exp_add_powder"`,
		`"resource_type":"551000502"`,
		`"unitOptions":["mg","g"]`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("payload JSON missing %s", want)
		}
	}
	var u Unit
	if err := json.Unmarshal([]byte(`{"unit_id":"unit-00c0ffee"}`), &u); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p.LayoutList[0].UnitID, "unit-") || len(p.LayoutList[0].UnitID) != len("unit-")+8 {
		t.Errorf("unit id %q not of form unit-<8-hex>", p.LayoutList[0].UnitID)
	}
}
