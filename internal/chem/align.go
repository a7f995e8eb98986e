package chem

import (
	"context"
	"fmt"

	"github.com/orchidlab/synthctl/internal/amount"
)

// RemoteChemical is a row of the station's own chemical registry, as
// far as alignment cares about it.
type RemoteChemical struct {
	ID    int64
	Name  string
	CAS   string
	State amount.State
}

// Registry is the station-side registry surface alignment drives. The
// station client implements it.
type Registry interface {
	ChemicalList(ctx context.Context, query string, offset, limit int) ([]RemoteChemical, int, error)
	AddChemical(ctx context.Context, c *Chemical) (int64, error)
	UpdateChemical(ctx context.Context, id int64, c *Chemical) error
	DeleteChemical(ctx context.Context, id int64) error
}

// AlignOptions tunes an alignment run.
type AlignOptions struct {
	// DeleteUnknown removes station chemicals whose name is absent
	// from the local directory. Off by default; destructive.
	DeleteUnknown bool
	// PageSize bounds registry list pages. Zero means 200.
	PageSize int
}

// AlignStats summarizes what an alignment run did.
type AlignStats struct {
	Created int
	Updated int
	Deleted int
	Matched int
}

// Align reconciles the local directory with the station registry:
// missing chemicals are created, entries whose CAS or physical state
// drifted are updated, and the station-side id is back-filled into
// every local record. Previously cached ids are invalidated first.
func (d *Directory) Align(ctx context.Context, reg Registry, opts AlignOptions) (*AlignStats, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	for _, name := range d.order {
		d.byName[name].StationID = 0
	}

	remote := make(map[string]RemoteChemical)
	for offset := 0; ; {
		page, total, err := reg.ChemicalList(ctx, "", offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list station chemicals: %w", err)
		}
		for _, rc := range page {
			remote[rc.Name] = rc
		}
		offset += len(page)
		if offset >= total || len(page) == 0 {
			break
		}
	}

	stats := &AlignStats{}
	for _, name := range d.order {
		local := d.byName[name]
		rc, ok := remote[name]
		if !ok {
			id, err := reg.AddChemical(ctx, local)
			if err != nil {
				return stats, fmt.Errorf("create station chemical %q: %w", name, err)
			}
			local.StationID = id
			stats.Created++
			continue
		}
		if rc.CAS != local.CAS || rc.State != local.State {
			if err := reg.UpdateChemical(ctx, rc.ID, local); err != nil {
				return stats, fmt.Errorf("update station chemical %q: %w", name, err)
			}
			stats.Updated++
		} else {
			stats.Matched++
		}
		local.StationID = rc.ID
	}

	if opts.DeleteUnknown {
		for name, rc := range remote {
			if _, ok := d.byName[name]; ok {
				continue
			}
			if err := reg.DeleteChemical(ctx, rc.ID); err != nil {
				return stats, fmt.Errorf("delete station chemical %q: %w", name, err)
			}
			stats.Deleted++
		}
	}

	return stats, nil
}
