package taskgraph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/orchidlab/synthctl/internal/amount"
	"github.com/orchidlab/synthctl/internal/chem"
)

// colKind classifies a recipe column after scanning its cells.
type colKind int

const (
	colSolid colKind = iota
	colLiquid
	colOther
	colMagnetManual
	colSyntheticMagnet
)

// column is one (possibly virtual) recipe column. Virtual columns come
// from splitting a mixed solid/liquid reagent column: they share the
// same source cells but carry a split filter so each emits only units
// whose chemical matches.
type column struct {
	kind      colKind
	header    string
	nameCol   int     // header index of the name cell, -1 for synthetic
	amountCol int     // -1 when absent
	src       int     // source order among opened columns
	split     colKind // colSolid or colLiquid on a virtual column, -1 otherwise
	maxVolML  float64 // max per-row liquid volume, liquid columns only
}

// resolvedAmount is a reagent cell resolved to its dispense amount.
type resolvedAmount struct {
	unit  string // "mg" or "mL"
	value float64
}

// Builder converts recipes into task payloads against a chemical
// directory.
type Builder struct {
	dir *chem.Directory
}

// NewBuilder returns a builder resolving substance names against dir.
func NewBuilder(dir *chem.Directory) *Builder {
	return &Builder{dir: dir}
}

// Build turns a validated recipe into the station task payload. The
// returned payload satisfies the grid invariants: one column per
// experiment, per-column rows a contiguous prefix starting at 0.
func (b *Builder) Build(recipe *Recipe) (*Payload, error) {
	if err := recipe.Validate(); err != nil {
		return nil, err
	}

	p := &Params{}
	*p = recipe.Params
	if p.WeighingTolerancePct <= 0 {
		p.WeighingTolerancePct = 1
	}
	if p.MaxWeighingErrorMg <= 0 {
		p.MaxWeighingErrorMg = 10
	}

	cols, err := b.inferColumns(recipe, p)
	if err != nil {
		return nil, err
	}
	ordered := orderColumns(cols, p)

	payload := &Payload{
		TaskName:   recipe.Name,
		IsAuditLog: 1,
		TaskSetup: TaskSetup{
			ExperimentNum: len(recipe.Rows),
			Vessel:        ResourceType,
		},
	}

	for exp := range recipe.Rows {
		units, err := b.emitExperiment(recipe, p, ordered, exp)
		if err != nil {
			return nil, err
		}
		payload.LayoutList = append(payload.LayoutList, units...)
	}
	return payload, nil
}

// inferColumns walks the headers, opens reagent pairs and magnet
// columns, classifies each by its cells, and splits mixed columns into
// virtual ones.
func (b *Builder) inferColumns(recipe *Recipe, p *Params) ([]*column, error) {
	var cols []*column
	src := 0
	for i, h := range recipe.Headers {
		hl := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.HasPrefix(hl, "reagent"):
			amountCol := -1
			if i+1 < len(recipe.Headers) {
				next := strings.ToLower(strings.TrimSpace(recipe.Headers[i+1]))
				if !strings.HasPrefix(next, "reagent") && next != MagnetCell {
					amountCol = i + 1
				}
			}
			expanded, err := b.classifyReagentColumn(recipe, p, h, i, amountCol, src)
			if err != nil {
				return nil, err
			}
			cols = append(cols, expanded...)
			if len(expanded) > 0 {
				src++
			}
		case hl == MagnetCell:
			cols = append(cols, &column{
				kind: colMagnetManual, header: h, nameCol: i, amountCol: -1, src: src, split: -1,
			})
			src++
		}
	}
	return cols, nil
}

// classifyReagentColumn scans a reagent pair down all rows and returns
// one column, or several virtual ones when solids and liquids mix.
func (b *Builder) classifyReagentColumn(recipe *Recipe, p *Params, header string, nameCol, amountCol, src int) ([]*column, error) {
	var sawSolid, sawLiquid, sawOther, sawMagnet bool
	maxVol := 0.0

	for r := range recipe.Rows {
		cell := recipe.cell(r, nameCol)
		if cell == "" {
			continue
		}
		if strings.EqualFold(cell, MagnetCell) {
			sawMagnet = true
			continue
		}
		c, ok := b.dir.Lookup(cell)
		if !ok {
			return nil, &ValidationError{Row: r + 1, Column: header, Msg: fmt.Sprintf("unknown chemical %q", cell)}
		}
		switch classify(c) {
		case colSolid:
			sawSolid = true
		case colLiquid:
			sawLiquid = true
			res, err := b.resolveCell(recipe, p, r, header, c, amountCol)
			if err != nil {
				return nil, err
			}
			if res.unit == "mL" && res.value > maxVol {
				maxVol = res.value
			}
		default:
			sawOther = true
		}
	}

	base := column{header: header, nameCol: nameCol, amountCol: amountCol, src: src, split: -1}
	if sawSolid && sawLiquid {
		solid, liquid := base, base
		solid.kind, solid.split = colSolid, colSolid
		liquid.kind, liquid.split = colLiquid, colLiquid
		liquid.maxVolML = maxVol
		out := []*column{&solid, &liquid}
		if sawMagnet {
			magnet := base
			magnet.kind = colMagnetManual
			out = append(out, &magnet)
		}
		return out, nil
	}

	switch {
	case sawSolid:
		base.kind = colSolid
	case sawLiquid:
		base.kind = colLiquid
		base.maxVolML = maxVol
	case sawOther:
		base.kind = colOther
	case sawMagnet:
		base.kind = colMagnetManual
	default:
		return nil, nil // entirely empty column
	}
	return []*column{&base}, nil
}

// classify maps a chemical to its dispensing column kind. Solutions
// pipette, beads weigh, otherwise the physical state decides; anything
// that is neither solid nor liquid is "other".
func classify(c *chem.Chemical) colKind {
	switch c.Form {
	case amount.FormSolution:
		return colLiquid
	case amount.FormBeads:
		return colSolid
	}
	switch c.State {
	case amount.StateSolid:
		return colSolid
	case amount.StateLiquid:
		return colLiquid
	}
	return colOther
}

// orderColumns assigns the output row order. Auto mode: solids first,
// then the synthetic magnet row, manual magnet columns, liquids by
// descending max volume, then other columns. Fixed mode keeps source
// order and slots the synthetic magnet row right before the first
// liquid column, or last when there is none.
func orderColumns(cols []*column, p *Params) []*column {
	out := make([]*column, len(cols))
	copy(out, cols)

	if p.AutoMagnet {
		out = append(out, &column{kind: colSyntheticMagnet, nameCol: -1, amountCol: -1, split: -1})
	}

	if p.FixedOrder {
		firstLiquid := -1
		maxSrc := -1
		for _, c := range cols {
			if c.kind == colLiquid && (firstLiquid == -1 || c.src < firstLiquid) {
				firstLiquid = c.src
			}
			if c.src > maxSrc {
				maxSrc = c.src
			}
		}
		key := func(c *column) int {
			if c.kind == colSyntheticMagnet {
				if firstLiquid >= 0 {
					return 2*firstLiquid - 1
				}
				return 2*maxSrc + 1
			}
			return 2 * c.src
		}
		sort.SliceStable(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
		return out
	}

	group := func(c *column) int {
		switch c.kind {
		case colSolid:
			return 0
		case colSyntheticMagnet:
			return 1
		case colMagnetManual:
			return 2
		case colLiquid:
			return 3
		}
		return 4
	}
	sort.SliceStable(out, func(i, j int) bool {
		gi, gj := group(out[i]), group(out[j])
		if gi != gj {
			return gi < gj
		}
		if gi == 3 && out[i].maxVolML != out[j].maxVolML {
			return out[i].maxVolML > out[j].maxVolML
		}
		return out[i].src < out[j].src
	})
	return out
}

// emitExperiment walks the ordered columns for one experiment row and
// emits its units with a compacting step counter, then appends the
// auxiliary stages.
func (b *Builder) emitExperiment(recipe *Recipe, p *Params, ordered []*column, exp int) ([]*Unit, error) {
	var units []*Unit
	step := 0
	emit := func(u *Unit) {
		u.Column = exp
		u.Row = step
		step++
		units = append(units, u)
	}

	explicitMagnet := false
	for c := range recipe.Rows[exp] {
		if strings.EqualFold(recipe.cell(exp, c), MagnetCell) {
			explicitMagnet = true
			break
		}
	}

	for _, col := range ordered {
		switch col.kind {
		case colSyntheticMagnet:
			// An explicit magnet cell anywhere in the row
			// suppresses the synthetic one.
			if !explicitMagnet {
				emit(magnetUnit())
			}
		case colMagnetManual:
			if strings.EqualFold(recipe.cell(exp, col.nameCol), MagnetCell) {
				emit(magnetUnit())
			}
		default:
			u, err := b.emitReagentCell(recipe, p, col, exp)
			if err != nil {
				return nil, err
			}
			if u != nil {
				emit(u)
			}
		}
	}

	aux, err := b.emitAuxiliary(p)
	if err != nil {
		return nil, err
	}
	for _, u := range aux {
		emit(u)
	}
	return units, nil
}

// emitReagentCell produces the unit for one reagent cell, or nil when
// the cell is empty or filtered out by the column's split kind.
func (b *Builder) emitReagentCell(recipe *Recipe, p *Params, col *column, exp int) (*Unit, error) {
	cell := recipe.cell(exp, col.nameCol)
	if cell == "" {
		return nil, nil
	}
	if strings.EqualFold(cell, MagnetCell) {
		// Magnet cells in a split column are handled by the magnet
		// virtual column; in a plain column they emit directly.
		if col.split >= 0 {
			return nil, nil
		}
		return magnetUnit(), nil
	}

	c, ok := b.dir.Lookup(cell)
	if !ok {
		return nil, &ValidationError{Row: exp + 1, Column: col.header, Msg: fmt.Sprintf("unknown chemical %q", cell)}
	}
	if col.split >= 0 && classify(c) != col.split {
		return nil, nil
	}

	res, err := b.resolveCell(recipe, p, exp, col.header, c, col.amountCol)
	if err != nil {
		return nil, err
	}
	if res.unit == "mg" {
		return b.powderUnit(c, res.value, p), nil
	}
	return pipetteUnit(c, res.value), nil
}

// resolveCell parses and resolves a reagent amount cell into mg or mL.
func (b *Builder) resolveCell(recipe *Recipe, p *Params, row int, header string, c *chem.Chemical, amountCol int) (resolvedAmount, error) {
	if amountCol < 0 {
		return resolvedAmount{}, &ValidationError{Row: row + 1, Column: header, Msg: "reagent has no amount column"}
	}
	cellText := recipe.cell(row, amountCol)
	if cellText == "" {
		return resolvedAmount{}, &ValidationError{Row: row + 1, Column: header, Msg: "missing amount"}
	}
	v, unit, err := amount.Parse(cellText)
	if err != nil {
		return resolvedAmount{}, &ValidationError{Row: row + 1, Column: header, Msg: err.Error()}
	}

	switch unit {
	case "eq":
		if p.ScaleMmol <= 0 {
			return resolvedAmount{}, &ValidationError{Row: row + 1, Column: header,
				Msg: "equivalent amount requires a positive reaction scale (mmol)"}
		}
		return b.resolveMmol(v*p.ScaleMmol, c, row, header)
	case "mmol":
		return b.resolveMmol(v, c, row, header)
	case "g", "mg", "kg":
		mg, _ := amount.Normalize(v, unit, amount.KindWeight, "mg")
		return resolvedAmount{unit: "mg", value: mg}, nil
	case "mL", "μL", "L":
		ml, _ := amount.Normalize(v, unit, amount.KindVolume, "mL")
		return resolvedAmount{unit: "mL", value: ml}, nil
	}
	return resolvedAmount{}, &ValidationError{Row: row + 1, Column: header,
		Msg: fmt.Sprintf("unsupported amount unit in %q", cellText)}
}

func (b *Builder) resolveMmol(mmol float64, c *chem.Chemical, row int, header string) (resolvedAmount, error) {
	unit, v, err := amount.ResolveMmol(mmol, c.Substance())
	if err != nil {
		return resolvedAmount{}, &ValidationError{Row: row + 1, Column: header, Msg: err.Error()}
	}
	return resolvedAmount{unit: unit, value: v}, nil
}

// weighingOffset computes the tolerance band for a powder target:
// clip(target × tol%, 0.1 mg, max error), rounded to 0.1 mg.
func weighingOffset(targetMg float64, p *Params) float64 {
	o := targetMg * p.WeighingTolerancePct / 100
	if o > p.MaxWeighingErrorMg {
		o = p.MaxWeighingErrorMg
	}
	if o < 0.1 {
		o = 0.1
	}
	return roundMg(o)
}

func roundMg(v float64) float64 { return math.Round(v*10) / 10 }
func roundML(v float64) float64 { return math.Round(v*1000) / 1000 }

func (b *Builder) powderUnit(c *chem.Chemical, mg float64, p *Params) *Unit {
	target := roundMg(mg)
	offset := weighingOffset(target, p)
	return &Unit{
		UnitID: newUnitID(), UnitType: UnitAddPowder, ResourceType: ResourceType,
		Process: Process{
			Substance:  c.Name,
			ChemicalID: c.StationID,
			AddWeight:  &target,
			Offset:     &offset,
			Custom:     &Custom{Unit: "mg", UnitOptions: []string{"mg", "g"}},
		},
	}
}

func pipetteUnit(c *chem.Chemical, ml float64) *Unit {
	vol := roundML(ml)
	return &Unit{
		UnitID: newUnitID(), UnitType: UnitPipetting, ResourceType: ResourceType,
		Process: Process{
			Substance:  c.Name,
			ChemicalID: c.StationID,
			AddVolume:  &vol,
			Custom:     &Custom{Unit: "mL", UnitOptions: []string{"mL", "L"}},
		},
	}
}

func magnetUnit() *Unit {
	return &Unit{
		UnitID: newUnitID(), UnitType: UnitAddMagnet, ResourceType: ResourceType,
		Process: Process{Custom: &Custom{Unit: ""}},
	}
}

// emitAuxiliary builds the trailing stages in their fixed sequence:
// reaction-stir, internal-standard add, post-IS stir, filter-sample.
// Each is skipped when its governing parameter is blank.
func (b *Builder) emitAuxiliary(p *Params) ([]*Unit, error) {
	var units []*Unit

	if strings.TrimSpace(p.ReactorType) != "" {
		temp := 25.0
		if p.Temperature != nil {
			temp = *p.Temperature
		}
		duration := int(p.TimeHours * 3600)
		rpm := p.RPM
		isWait := p.WaitTargetTemp
		isHeating := p.TargetTemperature != nil
		u := &Unit{
			UnitID: newUnitID(), UnitType: UnitStirrer, ResourceType: ResourceType,
			Process: Process{
				Temperature:      &temp,
				IsHeating:        &isHeating,
				IsWait:           &isWait,
				RotationSpeed:    &rpm,
				ReactionDuration: &duration,
				Custom:           &Custom{Unit: ""},
			},
		}
		if p.TargetTemperature != nil {
			t := *p.TargetTemperature
			u.Process.TargetTemperature = &t
		}
		units = append(units, u)
	}

	if strings.TrimSpace(p.InternalStandard) != "" {
		c, ok := b.dir.Lookup(p.InternalStandard)
		if !ok {
			return nil, &ValidationError{Column: "internal_standard",
				Msg: fmt.Sprintf("unknown chemical %q", p.InternalStandard)}
		}
		// The IS amount is a single scalar: mg for a solid standard,
		// μL for a liquid one.
		if c.State == amount.StateLiquid {
			units = append(units, pipetteUnit(c, p.InternalStandardAmount/1000))
		} else {
			units = append(units, b.powderUnit(c, p.InternalStandardAmount, p))
		}

		stirTemp := 25.0
		noHeat := false
		noWait := false
		rpm := p.RPM
		duration := int(p.PostISStirMinutes * 60)
		units = append(units, &Unit{
			UnitID: newUnitID(), UnitType: UnitStirrer, ResourceType: ResourceType,
			Process: Process{
				Temperature:      &stirTemp,
				IsHeating:        &noHeat,
				IsWait:           &noWait,
				RotationSpeed:    &rpm,
				ReactionDuration: &duration,
				Custom:           &Custom{Unit: ""},
			},
		})
	}

	if strings.TrimSpace(p.Diluent) != "" {
		c, ok := b.dir.Lookup(p.Diluent)
		if !ok {
			return nil, &ValidationError{Column: "diluent",
				Msg: fmt.Sprintf("unknown chemical %q", p.Diluent)}
		}
		addVol := roundML(p.DilutionVolumeUL / 1000)
		sampleVol := roundML(p.SampleVolumeUL / 1000)
		units = append(units, &Unit{
			UnitID: newUnitID(), UnitType: UnitFilterSample, ResourceType: ResourceType,
			Process: Process{
				Substance:      c.Name,
				ChemicalID:     c.StationID,
				AddVolume:      &addVol,
				SamplingVolume: &sampleVol,
				SinglePressNum: 6,
			},
		})
	}

	return units, nil
}
