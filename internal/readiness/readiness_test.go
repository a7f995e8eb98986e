package readiness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orchidlab/synthctl/internal/amount"
	"github.com/orchidlab/synthctl/internal/chem"
	"github.com/orchidlab/synthctl/internal/station"
	"github.com/orchidlab/synthctl/internal/taskgraph"
)

func f(v float64) *float64 { return &v }

func testDir(t *testing.T) *chem.Directory {
	t.Helper()
	d, err := chem.NewDirectory([]*chem.Chemical{
		{Name: "A", MolecularWeight: 100, State: amount.StateSolid, Form: amount.FormNeat},
		{Name: "DMSO", MolecularWeight: 78.13, Density: 1.1, State: amount.StateLiquid, Form: amount.FormNeat},
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func powder(col, row int, sub string, mg float64) *taskgraph.Unit {
	return &taskgraph.Unit{
		UnitType: taskgraph.UnitAddPowder, Column: col, Row: row,
		Process: taskgraph.Process{Substance: sub, AddWeight: f(mg)},
	}
}

func pipette(col, row int, sub string, ml float64) *taskgraph.Unit {
	return &taskgraph.Unit{
		UnitType: taskgraph.UnitPipetting, Column: col, Row: row,
		Process: taskgraph.Process{Substance: sub, AddVolume: f(ml)},
	}
}

// Demand 150 mg of A over 12 experiments against 100 mg in an 8 mL
// bottle: the 20 mg weighing margin makes the need 170 mg, diff -70 mg.
func TestReagentShortage(t *testing.T) {
	payload := &taskgraph.Payload{TaskSetup: taskgraph.TaskSetup{ExperimentNum: 12}}
	for i := 0; i < 12; i++ {
		payload.LayoutList = append(payload.LayoutList, powder(i, 0, "A", 12.5))
	}

	inventory := []station.InventoryRow{
		{
			LayoutCode: "W-2-1", TrayCode: 630008, Name: "8 mL bottle tray",
			Details: []station.SubstanceDetail{
				{Slot: 0, Well: "A1", Substance: "A", AvailableWeight: f(100)},
			},
		},
		{LayoutCode: "W-2-2", TrayCode: 630002, Name: "2 mL vial tray", Count: 1},
	}

	report := NewAnalyzer(testDir(t), nil, nil).Analyze(payload, inventory)

	require.False(t, report.Ready)
	require.Len(t, report.Reagents, 1)
	row := report.Reagents[0]
	require.Equal(t, "A", row.Substance)
	require.InDelta(t, 170, row.NeedMg, 1e-9)
	require.InDelta(t, 100, row.AvailMg, 1e-9)
	require.Equal(t, StatusShort, row.Status)
	require.Equal(t, "-70.0mg", row.Diff)
	require.NotEmpty(t, report.Shortages)
}

// Liquid demand can be covered from the weight phase through density.
func TestCrossPhaseConversion(t *testing.T) {
	payload := &taskgraph.Payload{TaskSetup: taskgraph.TaskSetup{ExperimentNum: 12}}
	for i := 0; i < 12; i++ {
		payload.LayoutList = append(payload.LayoutList, pipette(i, 0, "DMSO", 0.5))
	}
	// 6 mL demand (no padding: DMSO not racked in a bottle tray here);
	// 7700 mg of DMSO at ρ=1.1 is 7 mL.
	inventory := []station.InventoryRow{
		{
			LayoutCode: "W-2-1", TrayCode: 630201, Name: "powder bottle tray",
			Details: []station.SubstanceDetail{
				{Slot: 0, Well: "A1", Substance: "DMSO", AvailableWeight: f(7700)},
			},
		},
		{LayoutCode: "T-1-1", TrayCode: 620001, Count: 48}, // reaction tubes
		{LayoutCode: "T-1-2", TrayCode: 620011, Count: 96}, // 1 mL tips
	}
	report := NewAnalyzer(testDir(t), nil, nil).Analyze(payload, inventory)
	require.True(t, report.Ready, "shortages: %v", report.Shortages)
	row := report.Reagents[0]
	require.Equal(t, StatusSatisfied, row.Status)
	require.Equal(t, "1.0mL", row.Diff)
}

// Liquid dead volume pads by the largest container class observed for
// the substance.
func TestDeadVolumePadding(t *testing.T) {
	payload := &taskgraph.Payload{TaskSetup: taskgraph.TaskSetup{ExperimentNum: 12}}
	payload.LayoutList = append(payload.LayoutList, pipette(0, 0, "DMSO", 1))

	inventory := []station.InventoryRow{
		{
			LayoutCode: "W-1-3", TrayCode: 630125,
			Details: []station.SubstanceDetail{{Substance: "DMSO", AvailableVolume: f(100)}},
		},
		{
			LayoutCode: "W-2-1", TrayCode: 630008,
			Details: []station.SubstanceDetail{{Substance: "DMSO", AvailableVolume: f(5)}},
		},
	}
	report := NewAnalyzer(testDir(t), nil, nil).Analyze(payload, inventory)
	row := report.Reagents[0]
	// 1 mL + 14 mL dead volume for the 125 mL class.
	require.InDelta(t, 15, row.NeedML, 1e-9)
	require.InDelta(t, 105, row.AvailML, 1e-9)
}

// Stock in airlock zones is in transit and must not count.
func TestAirlockExcluded(t *testing.T) {
	payload := &taskgraph.Payload{TaskSetup: taskgraph.TaskSetup{ExperimentNum: 12}}
	payload.LayoutList = append(payload.LayoutList, powder(0, 0, "A", 50))

	inventory := []station.InventoryRow{
		{
			LayoutCode: "MSB-1", TrayCode: 630201,
			Details: []station.SubstanceDetail{{Substance: "A", AvailableWeight: f(5000)}},
		},
	}
	report := NewAnalyzer(testDir(t), nil, nil).Analyze(payload, inventory)
	require.False(t, report.Ready)
	require.InDelta(t, 0, report.Reagents[0].AvailMg, 1e-9)
}

func TestConsumableDemand(t *testing.T) {
	n := 24
	payload := &taskgraph.Payload{TaskSetup: taskgraph.TaskSetup{ExperimentNum: n}}
	for i := 0; i < n; i++ {
		payload.LayoutList = append(payload.LayoutList,
			&taskgraph.Unit{UnitType: taskgraph.UnitAddMagnet, Column: i, Row: 0},
			pipette(i, 1, "DMSO", 0.02), // 50 μL band
			pipette(i, 2, "EtOH", 0.5),  // 1 mL band
			pipette(i, 3, "THF", 8),     // 5 mL band: ceil(8/3.5) = 3
			&taskgraph.Unit{UnitType: taskgraph.UnitStirrer, Column: i, Row: 4},
			&taskgraph.Unit{
				UnitType: taskgraph.UnitFilterSample, Column: i, Row: 5,
				Process: taskgraph.Process{Substance: "MeCN", AddVolume: f(0.05), SamplingVolume: f(0.02)},
			},
		)
	}

	a := NewAnalyzer(testDir(t), nil, nil)
	need := a.consumableDemand(payload)

	require.Equal(t, n, need[station.ConsumableReactionTube])
	require.Equal(t, 1, need[station.ConsumableReactionCap]) // ceil(24/24)
	require.Equal(t, n, need[station.ConsumableMagnet])
	// 24 sampling tips (1 filter row × 24 experiments) + 1 shared tip
	// for the small DMSO additions.
	require.Equal(t, n+1, need[station.ConsumableTip50uL])
	require.Equal(t, 1, need[station.ConsumableTip1mL])
	// 3 for the THF group + 1 for the filter diluent.
	require.Equal(t, 4, need[station.ConsumableTip5mL])
	require.Equal(t, n, need[station.ConsumableFilterBottle])
}

func TestNoCapsWithoutStirring(t *testing.T) {
	payload := &taskgraph.Payload{TaskSetup: taskgraph.TaskSetup{ExperimentNum: 12}}
	payload.LayoutList = append(payload.LayoutList, powder(0, 0, "A", 10))
	need := NewAnalyzer(testDir(t), nil, nil).consumableDemand(payload)
	require.Zero(t, need[station.ConsumableReactionCap])
}

// fakeChecker stubs the station-side check.
type fakeChecker struct {
	station.API
	check *station.ResourceCheck
}

func (f *fakeChecker) CheckTaskResource(context.Context, int64) (*station.ResourceCheck, error) {
	return f.check, nil
}

func TestConfirmWithStation(t *testing.T) {
	a := NewAnalyzer(testDir(t), nil, nil)

	report := &Report{Ready: true}
	api := &fakeChecker{check: &station.ResourceCheck{Code: 1200, Msg: "short on tips", PromptMsg: "load tray"}}
	require.NoError(t, a.ConfirmWithStation(context.Background(), api, 42, report))
	require.False(t, report.Ready)
	require.Equal(t, "short on tips: load tray", report.StationMsg)

	// Other non-success codes log but do not override.
	report = &Report{Ready: true}
	api = &fakeChecker{check: &station.ResourceCheck{Code: 5001, Msg: "hiccup"}}
	require.NoError(t, a.ConfirmWithStation(context.Background(), api, 42, report))
	require.True(t, report.Ready)
}
