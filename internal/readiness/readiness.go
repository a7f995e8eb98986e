// Package readiness computes whether the station can run a built task:
// consumable demand by tip band, reagent demand with dead-volume
// padding, and a diff against the live inventory with cross-phase
// conversion through density.
package readiness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/orchidlab/synthctl/internal/amount"
	"github.com/orchidlab/synthctl/internal/chem"
	"github.com/orchidlab/synthctl/internal/layout"
	"github.com/orchidlab/synthctl/internal/station"
	"github.com/orchidlab/synthctl/internal/taskgraph"
)

// Tip capacities in mL, derated to 70% usable volume.
const (
	usableFactor = 0.7
	usable50uL   = 0.05 * usableFactor // 0.035 mL
	usable1mL    = 1.0 * usableFactor  // 0.7 mL
	usable5mL    = 5.0 * usableFactor  // 3.5 mL
)

// solidDeadWeightMg is the weighing dead mass padded onto every reagent
// with solid demand.
const solidDeadWeightMg = 20.0

// deadVolumeML maps a liquid container class (bottle mL) to the dead
// volume kept behind after aspiration.
var deadVolumeML = map[float64]float64{
	2:   0.1,
	8:   1.0,
	40:  4.0,
	125: 14.0,
}

// Statuses of a report row.
const (
	StatusSatisfied = "satisfied"
	StatusShort     = "short"
)

// ReagentRow is one substance's demand/supply comparison.
type ReagentRow struct {
	Substance string  `json:"substance"`
	NeedMg    float64 `json:"need_mg"`
	NeedML    float64 `json:"need_mL"`
	AvailMg   float64 `json:"available_mg"`
	AvailML   float64 `json:"available_mL"`
	Status    string  `json:"status"`
	Diff      string  `json:"diff"`

	diff float64
}

// ConsumableRow is one consumable's demand/supply comparison.
type ConsumableRow struct {
	Code      int    `json:"code"`
	Name      string `json:"name"`
	Need      int    `json:"need"`
	Available int    `json:"available"`
	Diff      int    `json:"diff"`
	Status    string `json:"status"`
}

// Report is the structured shortage/surplus summary.
type Report struct {
	Reagents    []ReagentRow    `json:"reagents"`
	Consumables []ConsumableRow `json:"consumables"`
	Shortages   []string        `json:"shortages"`
	Surpluses   []string        `json:"surpluses"`
	Ready       bool            `json:"ready"`
	StationMsg  string          `json:"station_msg,omitempty"`
}

// Analyzer diffs task demand against station inventory.
type Analyzer struct {
	dir     *chem.Directory
	airlock []string
	log     *slog.Logger
}

// NewAnalyzer builds an analyzer. A nil airlock list means the default
// prefixes; a nil logger discards.
func NewAnalyzer(dir *chem.Directory, airlockPrefixes []string, log *slog.Logger) *Analyzer {
	if airlockPrefixes == nil {
		airlockPrefixes = layout.DefaultAirlockPrefixes
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Analyzer{dir: dir, airlock: airlockPrefixes, log: log}
}

// Analyze computes the readiness report for a built payload against an
// inventory snapshot.
func (a *Analyzer) Analyze(payload *taskgraph.Payload, inventory []station.InventoryRow) *Report {
	needCons := a.consumableDemand(payload)
	needMg, needML := reagentDemand(payload)
	a.padDeadVolume(needMg, needML, inventory)
	consStock, stockMg, stockML := a.aggregateSupply(inventory)

	report := &Report{}

	for _, name := range sortedKeys(needMg, needML) {
		row := ReagentRow{
			Substance: name,
			NeedMg:    needMg[name],
			NeedML:    needML[name],
			AvailMg:   stockMg[name],
			AvailML:   stockML[name],
		}
		density := 0.0
		if c, ok := a.dir.Lookup(name); ok {
			density = c.Density
		}
		var unit string
		if row.NeedML > 0 {
			avail := row.AvailML + amount.Convert(amount.KindWeight, amount.KindVolume, row.AvailMg, density)
			row.diff = avail - row.NeedML
			unit = "mL"
		} else {
			avail := row.AvailMg + amount.Convert(amount.KindVolume, amount.KindWeight, row.AvailML, density)
			row.diff = avail - row.NeedMg
			unit = "mg"
		}
		row.Diff = fmt.Sprintf("%.1f%s", row.diff, unit)
		if row.diff < 0 {
			row.Status = StatusShort
			report.Shortages = append(report.Shortages,
				fmt.Sprintf("%s: short %.1f%s", name, -row.diff, unit))
		} else {
			row.Status = StatusSatisfied
			if row.diff > 0 {
				report.Surpluses = append(report.Surpluses,
					fmt.Sprintf("%s: surplus %.1f%s", name, row.diff, unit))
			}
		}
		report.Reagents = append(report.Reagents, row)
	}

	codes := make([]int, 0, len(needCons))
	for code := range needCons {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		row := ConsumableRow{
			Code:      code,
			Name:      station.ConsumableName(code),
			Need:      needCons[code],
			Available: consStock[code],
		}
		row.Diff = row.Available - row.Need
		if row.Diff < 0 {
			row.Status = StatusShort
			report.Shortages = append(report.Shortages,
				fmt.Sprintf("%s: short %d", row.Name, -row.Diff))
		} else {
			row.Status = StatusSatisfied
		}
		report.Consumables = append(report.Consumables, row)
	}

	report.Ready = len(report.Shortages) == 0
	return report
}

// ConfirmWithStation runs the secondary station-side check when the
// local diff passed. A 1200 flips ready off with the server's message;
// other non-success codes are logged and do not override the local
// verdict.
func (a *Analyzer) ConfirmWithStation(ctx context.Context, api station.API, taskID int64, report *Report) error {
	if !report.Ready || taskID == 0 {
		return nil
	}
	check, err := api.CheckTaskResource(ctx, taskID)
	if err != nil {
		return fmt.Errorf("station resource check: %w", err)
	}
	if check.Shortage() {
		report.Ready = false
		report.StationMsg = check.Msg
		if check.PromptMsg != "" {
			report.StationMsg += ": " + check.PromptMsg
		}
		report.Shortages = append(report.Shortages, "station: "+report.StationMsg)
		return nil
	}
	if check.Code != 200 {
		a.log.Warn("station resource check returned non-success code",
			"task_id", taskID, "code", check.Code, "msg", check.Msg)
	}
	return nil
}

// tipGroup keys pipetting demand: one tip is shared per step row and
// substance across experiments.
type tipGroup struct {
	row       int
	substance string
}

// consumableDemand derives the consumable needs from the payload.
func (a *Analyzer) consumableDemand(payload *taskgraph.Payload) map[int]int {
	n := payload.TaskSetup.ExperimentNum
	need := make(map[int]int)
	need[station.ConsumableReactionTube] = n

	magnets := 0
	stirs := 0
	filterSamples := 0
	filterRows := make(map[int]bool)
	maxVol := make(map[tipGroup]float64)
	filterDiluentMax := make(map[string]float64)

	for _, u := range payload.LayoutList {
		switch u.UnitType {
		case taskgraph.UnitAddMagnet:
			magnets++
		case taskgraph.UnitStirrer:
			stirs++
		case taskgraph.UnitPipetting:
			g := tipGroup{row: u.Row, substance: u.Process.Substance}
			if v := deref(u.Process.AddVolume); v > maxVol[g] {
				maxVol[g] = v
			}
		case taskgraph.UnitFilterSample:
			filterSamples++
			filterRows[u.Row] = true
			if v := deref(u.Process.AddVolume); v > filterDiluentMax[u.Process.Substance] {
				filterDiluentMax[u.Process.Substance] = v
			}
		}
	}

	if stirs > 0 {
		need[station.ConsumableReactionCap] = (n + 23) / 24
	}
	if magnets > 0 {
		need[station.ConsumableMagnet] = magnets
	}

	tips50 := len(filterRows) * n // sampling tips
	tips1 := 0
	tips5 := 0
	for _, v := range maxVol {
		switch {
		case v <= usable50uL:
			tips50++
		case v <= usable1mL:
			tips1++
		default:
			tips5 += int(math.Ceil(v / usable5mL))
		}
	}
	for _, v := range filterDiluentMax {
		if v > 0 {
			tips5++
		}
	}
	if tips50 > 0 {
		need[station.ConsumableTip50uL] = tips50
	}
	if tips1 > 0 {
		need[station.ConsumableTip1mL] = tips1
	}
	if tips5 > 0 {
		need[station.ConsumableTip5mL] = tips5
	}
	if filterSamples > 0 {
		need[station.ConsumableFilterBottle] = filterSamples
	}
	return need
}

// reagentDemand sums dispense amounts per substance across all units.
func reagentDemand(payload *taskgraph.Payload) (needMg, needML map[string]float64) {
	needMg = make(map[string]float64)
	needML = make(map[string]float64)
	for _, u := range payload.LayoutList {
		switch u.UnitType {
		case taskgraph.UnitAddPowder:
			needMg[u.Process.Substance] += deref(u.Process.AddWeight)
		case taskgraph.UnitPipetting, taskgraph.UnitFilterSample:
			needML[u.Process.Substance] += deref(u.Process.AddVolume)
		}
	}
	return needMg, needML
}

// padDeadVolume adds the per-container padding: a flat weighing margin
// for solids, and the largest observed container class's dead volume
// for liquids.
func (a *Analyzer) padDeadVolume(needMg, needML map[string]float64, inventory []station.InventoryRow) {
	for name := range needMg {
		needMg[name] += solidDeadWeightMg
	}

	classBySubstance := make(map[string]float64)
	for _, row := range inventory {
		if layout.IsAirlock(row.LayoutCode, a.airlock) {
			continue
		}
		class := station.BottleClassML(row.TrayCode)
		if class == 0 {
			continue
		}
		for _, d := range row.Details {
			if d.Substance == "" {
				continue
			}
			if class > classBySubstance[d.Substance] {
				classBySubstance[d.Substance] = class
			}
		}
	}
	for name := range needML {
		if class, ok := classBySubstance[name]; ok {
			needML[name] += deadVolumeML[class]
		}
	}
}

// aggregateSupply folds the inventory into consumable counts and
// per-substance mg/mL stock, skipping trays in transit zones.
func (a *Analyzer) aggregateSupply(inventory []station.InventoryRow) (cons map[int]int, mg, ml map[string]float64) {
	cons = make(map[int]int)
	mg = make(map[string]float64)
	ml = make(map[string]float64)

	for _, row := range inventory {
		if layout.IsAirlock(row.LayoutCode, a.airlock) {
			continue
		}
		if code := station.ConsumableForTray(row.TrayCode); code != 0 {
			cons[code] += row.Count
		}
		phase := station.PhaseNone
		if spec, ok := station.TrayByCode(row.TrayCode); ok {
			phase = spec.Phase
		}
		for _, d := range row.Details {
			if d.Substance == "" {
				continue
			}
			value, kind := detailAmount(&d, phase)
			switch kind {
			case amount.KindWeight:
				mg[d.Substance] += value
			case amount.KindVolume:
				ml[d.Substance] += value
			}
		}
	}
	return cons, mg, ml
}

// detailAmount picks the first available numeric field of a substance
// detail and reports which phase bucket it belongs to. The bare
// "value" field falls back to the tray's media phase.
func detailAmount(d *station.SubstanceDetail, trayPhase station.MediaPhase) (float64, amount.Kind) {
	switch {
	case d.AvailableWeight != nil:
		return *d.AvailableWeight, amount.KindWeight
	case d.CurWeight != nil:
		return *d.CurWeight, amount.KindWeight
	case d.InitialWeight != nil:
		return *d.InitialWeight, amount.KindWeight
	case d.AvailableVolume != nil:
		return *d.AvailableVolume, amount.KindVolume
	case d.CurVolume != nil:
		return *d.CurVolume, amount.KindVolume
	case d.InitialVolume != nil:
		return *d.InitialVolume, amount.KindVolume
	case d.Value != nil:
		if trayPhase == station.PhaseWeight {
			return *d.Value, amount.KindWeight
		}
		return *d.Value, amount.KindVolume
	}
	return 0, ""
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func sortedKeys(maps ...map[string]float64) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
