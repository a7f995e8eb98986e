// Package amount handles quantity parsing, unit normalization, and
// cross-phase conversion for reagent amounts.
//
// Canonical internal units are mg for weights and mL for volumes. Inputs
// may arrive in any of the accepted spreadsheet units (eq, mmol, g, mg,
// kg, L, mL, μL); both Unicode micro variants (U+00B5 and U+03BC) are
// folded to the same tag.
package amount

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind distinguishes the two measurable phases of an amount.
type Kind string

const (
	KindVolume Kind = "volume"
	KindWeight Kind = "weight"
)

// State is a chemical's physical state.
type State string

const (
	StateSolid   State = "solid"
	StateLiquid  State = "liquid"
	StateGas     State = "gas"
	StateUnknown State = "unknown"
)

// Form is a chemical's physical form, which governs the conversion
// formula used by ResolveMmol.
type Form string

const (
	FormNeat     Form = "neat"
	FormSolution Form = "solution"
	FormBeads    Form = "beads"
	FormUnknown  Form = "unknown"
)

// Substance carries the physical data ResolveMmol needs. Zero values
// mean "not known".
type Substance struct {
	Name            string
	MolecularWeight float64 // g/mol
	Density         float64 // g/mL
	State           State
	Form            Form
	ActiveContent   float64 // mmol/mL for solution, wt% for beads
}

// canonical maps a lowercased, micro-folded unit suffix to its
// canonical tag. Unknown suffixes normalize to "".
var canonical = map[string]string{
	"eq":   "eq",
	"mmol": "mmol",
	"kg":   "kg",
	"g":    "g",
	"mg":   "mg",
	"l":    "L",
	"ml":   "mL",
	"μl":   "μL",
	"ul":   "μL",
}

// CanonicalUnit folds case and micro-symbol variants and returns the
// canonical tag for a unit suffix, or "" when the suffix is unknown.
func CanonicalUnit(s string) string {
	s = strings.ReplaceAll(s, "µ", "μ") // micro sign → greek mu
	return canonical[strings.ToLower(strings.TrimSpace(s))]
}

// Parse extracts the leading numeric prefix and the trailing alphabetic
// suffix from a quantity cell such as "1.5 eq" or "500μL". The suffix is
// canonicalized; an unknown suffix comes back as "".
func Parse(text string) (float64, string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, "", fmt.Errorf("empty amount")
	}

	end := 0
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' || c == '.' || c == '-' || c == '+' ||
			(end > 0 && (c == 'e' || c == 'E') && end+1 < len(s) && isDigitOrSign(s[end+1])) {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, "", fmt.Errorf("amount %q has no numeric prefix", text)
	}

	var value float64
	if _, err := fmt.Sscanf(s[:end], "%g", &value); err != nil {
		return 0, "", fmt.Errorf("amount %q: bad number %q", text, s[:end])
	}

	// Trailing alphabetic suffix, skipping any separator.
	rest := strings.TrimSpace(s[end:])
	var suffix strings.Builder
	for _, r := range rest {
		if unicode.IsLetter(r) || r == '%' {
			suffix.WriteRune(r)
		}
	}
	return value, CanonicalUnit(suffix.String()), nil
}

func isDigitOrSign(c byte) bool {
	return c >= '0' && c <= '9' || c == '-' || c == '+'
}

// Normalize converts a value to the canonical unit for its kind (mL for
// volume, mg for weight). An unrecognized unit falls back to defaultUnit
// with the value unchanged.
func Normalize(value float64, unit string, kind Kind, defaultUnit string) (float64, string) {
	switch kind {
	case KindVolume:
		switch CanonicalUnit(unit) {
		case "L":
			return value * 1000, "mL"
		case "mL":
			return value, "mL"
		case "μL":
			return value / 1000, "mL"
		}
	case KindWeight:
		switch CanonicalUnit(unit) {
		case "kg":
			return value * 1e6, "mg"
		case "g":
			return value * 1000, "mg"
		case "mg":
			return value, "mg"
		}
	}
	return value, defaultUnit
}

// Convert crosses a canonical amount between phases using density
// (g/mL). Conversion needs density > 0; without it, and for same-kind
// calls, the result is 0.
func Convert(from, to Kind, value, density float64) float64 {
	if from == to || density <= 0 {
		return 0
	}
	if from == KindWeight && to == KindVolume {
		return value / 1000 / density // mg → mL
	}
	return value * density * 1000 // mL → mg
}

// ResolveMmol converts a molar target into the substance's dispense
// amount: ("mg", v) for powder dispense or ("mL", v) for pipetting.
//
//	neat solid:  mg = mmol × MW
//	neat liquid: mL = mmol × MW / ρ / 1000
//	solution:    mL = mmol / activeContent   (activeContent in mmol/mL)
//	beads:       mg = mmol × MW / (wt% / 100)
func ResolveMmol(targetMmol float64, sub *Substance) (string, float64, error) {
	switch sub.Form {
	case FormNeat:
		if sub.MolecularWeight <= 0 {
			return "", 0, fmt.Errorf("%s: molecular weight required for mmol amount", sub.Name)
		}
		if sub.State == StateSolid {
			return "mg", targetMmol * sub.MolecularWeight, nil
		}
		if sub.State == StateLiquid {
			if sub.Density <= 0 {
				return "", 0, fmt.Errorf("%s: density required for neat liquid mmol amount", sub.Name)
			}
			return "mL", targetMmol * sub.MolecularWeight / sub.Density / 1000, nil
		}
		return "", 0, fmt.Errorf("%s: cannot resolve mmol for state %q", sub.Name, sub.State)
	case FormSolution:
		if sub.ActiveContent <= 0 {
			return "", 0, fmt.Errorf("%s: active content (mmol/mL) required for solution", sub.Name)
		}
		return "mL", targetMmol / sub.ActiveContent, nil
	case FormBeads:
		if sub.MolecularWeight <= 0 || sub.ActiveContent <= 0 {
			return "", 0, fmt.Errorf("%s: molecular weight and active content (wt%%) required for beads", sub.Name)
		}
		return "mg", targetMmol * sub.MolecularWeight / (sub.ActiveContent / 100), nil
	}
	return "", 0, fmt.Errorf("%s: unknown physical form %q", sub.Name, sub.Form)
}

// DispenseKind reports whether the substance is dispensed as a powder
// (weight) or pipetted (volume). Solutions pipette regardless of the
// solute's state; beads weigh.
func DispenseKind(sub *Substance) Kind {
	switch sub.Form {
	case FormSolution:
		return KindVolume
	case FormBeads:
		return KindWeight
	}
	if sub.State == StateLiquid {
		return KindVolume
	}
	return KindWeight
}
