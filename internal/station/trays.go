package station

// MediaPhase says what kind of amount a tray's media holds.
type MediaPhase string

const (
	PhaseVolume MediaPhase = "volume"
	PhaseWeight MediaPhase = "weight"
	PhaseNone   MediaPhase = "none"
)

// Consumable codes. The readiness analyzer keys demand and stock by
// these.
const (
	ConsumableReactionTube = 551000502
	ConsumableReactionCap  = 551000503
	ConsumableMagnet       = 551000504
	ConsumableTip50uL      = 551000505
	ConsumableTip1mL       = 551000506
	ConsumableTip5mL       = 551000507
	ConsumableFilterBottle = 551000508
)

// ConsumableName renders a consumable code for reports.
func ConsumableName(code int) string {
	switch code {
	case ConsumableReactionTube:
		return "reaction tube"
	case ConsumableReactionCap:
		return "reaction cap"
	case ConsumableMagnet:
		return "stir bar"
	case ConsumableTip50uL:
		return "50 μL tip"
	case ConsumableTip1mL:
		return "1 mL tip"
	case ConsumableTip5mL:
		return "5 mL tip"
	case ConsumableFilterBottle:
		return "filter bottle"
	}
	return "unknown consumable"
}

// TraySpec is the static description of one tray kind.
type TraySpec struct {
	Code        int
	Name        string
	Cols, Rows  int
	Phase       MediaPhase
	DefaultUnit string
	// Consumable is the consumable code this tray stocks, 0 for
	// reagent trays.
	Consumable int
	// BottleML is the media container class for dead-volume
	// budgeting, 0 when not a liquid-bottle tray.
	BottleML float64
}

// Trays is the vendor tray catalog.
var Trays = []TraySpec{
	{Code: 620001, Name: "reaction tube tray", Cols: 8, Rows: 6, Phase: PhaseNone, Consumable: ConsumableReactionTube},
	{Code: 620002, Name: "reaction cap tray", Cols: 8, Rows: 3, Phase: PhaseNone, Consumable: ConsumableReactionCap},
	{Code: 620003, Name: "stir bar tray", Cols: 12, Rows: 8, Phase: PhaseNone, Consumable: ConsumableMagnet},
	{Code: 620010, Name: "50 μL tip tray", Cols: 12, Rows: 8, Phase: PhaseNone, Consumable: ConsumableTip50uL},
	{Code: 620011, Name: "1 mL tip tray", Cols: 12, Rows: 8, Phase: PhaseNone, Consumable: ConsumableTip1mL},
	{Code: 620012, Name: "5 mL tip tray", Cols: 6, Rows: 4, Phase: PhaseNone, Consumable: ConsumableTip5mL},
	{Code: 620020, Name: "filter bottle tray", Cols: 6, Rows: 4, Phase: PhaseNone, Consumable: ConsumableFilterBottle},
	{Code: 630002, Name: "2 mL vial tray", Cols: 9, Rows: 6, Phase: PhaseVolume, DefaultUnit: "mL", BottleML: 2},
	{Code: 630008, Name: "8 mL bottle tray", Cols: 6, Rows: 4, Phase: PhaseVolume, DefaultUnit: "mL", BottleML: 8},
	{Code: 630040, Name: "40 mL bottle tray", Cols: 4, Rows: 3, Phase: PhaseVolume, DefaultUnit: "mL", BottleML: 40},
	{Code: 630125, Name: "125 mL reagent bottle tray", Cols: 3, Rows: 2, Phase: PhaseVolume, DefaultUnit: "mL", BottleML: 125},
	{Code: 630201, Name: "powder bottle tray", Cols: 6, Rows: 4, Phase: PhaseWeight, DefaultUnit: "mg"},
}

var traysByCode = func() map[int]*TraySpec {
	m := make(map[int]*TraySpec, len(Trays))
	for i := range Trays {
		m[Trays[i].Code] = &Trays[i]
	}
	return m
}()

// TrayByCode looks up a tray kind by its resource code.
func TrayByCode(code int) (*TraySpec, bool) {
	t, ok := traysByCode[code]
	return t, ok
}

// ConsumableForTray maps a tray resource code to the consumable it
// stocks, or 0.
func ConsumableForTray(code int) int {
	if t, ok := traysByCode[code]; ok {
		return t.Consumable
	}
	return 0
}

// BottleClassML returns the liquid container class (mL) for a tray
// code, or 0 when the tray holds no liquid bottles.
func BottleClassML(code int) float64 {
	if t, ok := traysByCode[code]; ok {
		return t.BottleML
	}
	return 0
}
