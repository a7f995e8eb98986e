// Package chem maintains the local chemical directory: physical data
// for every substance a recipe may reference, plus the mapping to the
// station's own chemical registry.
package chem

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orchidlab/synthctl/internal/amount"
)

// Chemical is one directory entry, unique by name. StationID is zero
// until an alignment run back-fills it.
type Chemical struct {
	Name            string       `yaml:"name"`
	CAS             string       `yaml:"cas,omitempty"`
	MolecularWeight float64      `yaml:"molecular_weight,omitempty"` // g/mol
	Density         float64      `yaml:"density,omitempty"`          // g/mL
	State           amount.State `yaml:"state"`
	Form            amount.Form  `yaml:"form"`
	ActiveContent   float64      `yaml:"active_content,omitempty"` // mmol/mL (solution) or wt% (beads)
	Brand           string       `yaml:"brand,omitempty"`
	PackageSize     string       `yaml:"package_size,omitempty"`
	StorageLocation string       `yaml:"storage_location,omitempty"`
	StationID       int64        `yaml:"-"`
}

// Substance adapts the entry for the amount resolver.
func (c *Chemical) Substance() *amount.Substance {
	return &amount.Substance{
		Name:            c.Name,
		MolecularWeight: c.MolecularWeight,
		Density:         c.Density,
		State:           c.State,
		Form:            c.Form,
		ActiveContent:   c.ActiveContent,
	}
}

// Validate checks the form-specific required fields:
//
//	neat     → MW, and density when liquid
//	solution → active content (mmol/mL)
//	beads    → MW and active content (wt%)
func (c *Chemical) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("chemical with empty name")
	}
	switch c.State {
	case amount.StateSolid, amount.StateLiquid, amount.StateGas:
	default:
		return fmt.Errorf("%s: physical state %q not one of solid/liquid/gas", c.Name, c.State)
	}
	switch c.Form {
	case amount.FormNeat:
		if c.MolecularWeight <= 0 {
			return fmt.Errorf("%s: neat chemical requires molecular weight", c.Name)
		}
		if c.State == amount.StateLiquid && c.Density <= 0 {
			return fmt.Errorf("%s: neat liquid requires density", c.Name)
		}
	case amount.FormSolution:
		if c.ActiveContent <= 0 {
			return fmt.Errorf("%s: solution requires active content (mmol/mL)", c.Name)
		}
	case amount.FormBeads:
		if c.MolecularWeight <= 0 {
			return fmt.Errorf("%s: beads require molecular weight", c.Name)
		}
		if c.ActiveContent <= 0 {
			return fmt.Errorf("%s: beads require active content (wt%%)", c.Name)
		}
	case "":
		return fmt.Errorf("%s: physical form must be set", c.Name)
	default:
		return fmt.Errorf("%s: unknown physical form %q", c.Name, c.Form)
	}
	return nil
}

// ConcatFields are the fields merged with ";" when duplicate entries
// for the same substance are folded together. Any other conflicting
// value is wrapped as "(a;b)".
var ConcatFields = map[string]bool{
	"brand":            true,
	"package_size":     true,
	"storage_location": true,
}

// Directory is the in-memory chemical directory. Lookups are exact by
// name.
type Directory struct {
	byName map[string]*Chemical
	order  []string
}

// NewDirectory builds a directory from validated entries, folding
// duplicates by name.
func NewDirectory(entries []*Chemical) (*Directory, error) {
	d := &Directory{byName: make(map[string]*Chemical)}
	for i, c := range entries {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("directory entry %d: %w", i+1, err)
		}
		if prev, ok := d.byName[c.Name]; ok {
			mergeDuplicate(prev, c)
			continue
		}
		cp := *c
		d.byName[c.Name] = &cp
		d.order = append(d.order, c.Name)
	}
	return d, nil
}

// mergeDuplicate folds a repeated entry into the kept one.
func mergeDuplicate(dst, src *Chemical) {
	dst.Brand = mergeField(dst.Brand, src.Brand, true)
	dst.PackageSize = mergeField(dst.PackageSize, src.PackageSize, true)
	dst.StorageLocation = mergeField(dst.StorageLocation, src.StorageLocation, true)
	dst.CAS = mergeField(dst.CAS, src.CAS, false)
}

func mergeField(a, b string, concat bool) string {
	if b == "" || a == b {
		return a
	}
	if a == "" {
		return b
	}
	if concat {
		return a + ";" + b
	}
	// Conflicting non-concat values are preserved wrapped, so the
	// ambiguity stays visible to the operator.
	inner := strings.TrimSuffix(strings.TrimPrefix(a, "("), ")")
	for _, part := range strings.Split(inner, ";") {
		if part == b {
			return a
		}
	}
	return "(" + inner + ";" + b + ")"
}

// Lookup resolves a substance name exactly.
func (d *Directory) Lookup(name string) (*Chemical, bool) {
	c, ok := d.byName[strings.TrimSpace(name)]
	return c, ok
}

// Names returns all entry names in load order.
func (d *Directory) Names() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Len reports the number of distinct entries.
func (d *Directory) Len() int { return len(d.byName) }

// StationIDs returns the name → station-id relation for all aligned
// entries, sorted by name for deterministic iteration.
func (d *Directory) StationIDs() map[string]int64 {
	out := make(map[string]int64)
	names := d.Names()
	sort.Strings(names)
	for _, n := range names {
		if c := d.byName[n]; c.StationID != 0 {
			out[n] = c.StationID
		}
	}
	return out
}
