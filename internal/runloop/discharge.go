package runloop

import (
	"context"
	"fmt"
	"time"

	"github.com/orchidlab/synthctl/internal/layout"
	"github.com/orchidlab/synthctl/internal/station"
)

// Discharge modes.
type DischargeMode int

const (
	// DischargeBoth moves the task's trays and every empty tray.
	DischargeBoth DischargeMode = iota
	// DischargeTaskOnly moves only the task's reaction and sampling
	// trays.
	DischargeTaskOnly
	// DischargeEmptiesOnly moves only zero-count trays.
	DischargeEmptiesOnly
)

// dischargeRing is the fixed assignment order for transfer buffer
// positions.
var dischargeRing = []string{
	"TB-2-1", "TB-2-2", "TB-2-3", "TB-2-4",
	"TB-1-1", "TB-1-2", "TB-1-3", "TB-1-4",
}

// DischargeOptions selects what to move out.
type DischargeOptions struct {
	// TaskID ties the discharge to a task. 0 with a task-including mode
	// selects the latest COMPLETED task.
	TaskID int64
	Mode   DischargeMode
	// IgnoreMissing drops task trays absent from the inventory with a
	// warning instead of failing.
	IgnoreMissing bool

	Interval time.Duration
	Deadline time.Duration
}

// DischargeEntry is one executed tray move.
type DischargeEntry struct {
	Source  string                    `json:"src_layout_code"`
	Dest    string                    `json:"dst_layout_code"`
	TaskID  int64                     `json:"task_id,omitempty"`
	Details []station.SubstanceDetail `json:"substance_details,omitempty"`
}

// DischargeLog is the record of one discharge batch.
type DischargeLog struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Entries    []DischargeEntry `json:"entries"`
}

// Discharge waits for an idle station, plans source trays per the mode,
// assigns transfer buffer positions in ring order, and executes the
// batch move-out. The executed plan is returned and recorded.
func (c *Coordinator) Discharge(ctx context.Context, opts DischargeOptions) (*DischargeLog, error) {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Deadline <= 0 {
		opts.Deadline = 10 * time.Minute
	}
	if err := c.WaitIdle(ctx, "discharge", opts.Interval, opts.Deadline); err != nil {
		return nil, err
	}

	rows, err := c.Inventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("discharge: enumerate inventory: %w", err)
	}
	byCode := make(map[string]station.InventoryRow, len(rows))
	for _, row := range rows {
		byCode[row.LayoutCode] = row
	}

	started := time.Now().UTC()
	taskID := opts.TaskID

	var sources []string
	seen := make(map[string]bool)
	add := func(code string) {
		if code == "" || seen[code] || c.isAirlock(code) {
			return
		}
		seen[code] = true
		sources = append(sources, code)
	}

	if opts.Mode != DischargeEmptiesOnly {
		var task *station.TaskInfo
		if taskID == 0 {
			task, err = c.latestCompletedTask(ctx)
		} else {
			err = c.withReauth(ctx, func() error {
				var err error
				task, err = c.api.TaskInfo(ctx, taskID)
				return err
			})
		}
		if err != nil {
			return nil, fmt.Errorf("discharge: resolve task: %w", err)
		}
		taskID = task.ID
		for _, code := range append(append([]string(nil), task.ReactionTrays...), task.SamplingTrays...) {
			if _, ok := byCode[code]; !ok {
				if opts.IgnoreMissing {
					c.log.Warn("task tray absent from inventory, skipping", "layout_code", code, "task_id", taskID)
					continue
				}
				return nil, fmt.Errorf("discharge: task tray %s not found in inventory", code)
			}
			add(code)
		}
	}

	if opts.Mode != DischargeTaskOnly {
		for _, row := range rows {
			if row.Count == 0 && len(row.Details) == 0 {
				add(row.LayoutCode)
			}
		}
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("discharge: nothing to move out")
	}

	// Ring positions already holding a tray are skipped.
	var free []string
	for _, pos := range dischargeRing {
		if _, occupied := byCode[pos]; !occupied {
			free = append(free, pos)
		}
	}
	if len(sources) > len(free) {
		return nil, fmt.Errorf("discharge: %d trays to move but only %d transfer buffer positions free", len(sources), len(free))
	}

	items := make([]station.TrayDischarge, 0, len(sources))
	entries := make([]DischargeEntry, 0, len(sources))
	for i, src := range sources {
		dst := free[i]
		items = append(items, station.TrayDischarge{Source: src, Dest: dst})
		entries = append(entries, DischargeEntry{
			Source:  src,
			Dest:    dst,
			TaskID:  taskID,
			Details: byCode[src].Details,
		})
		c.log.Info("discharge planned", "src", src, "dst", dst)
	}

	mode := "all"
	switch opts.Mode {
	case DischargeTaskOnly:
		mode = "task"
	case DischargeEmptiesOnly:
		mode = "empties"
	}
	if err := c.withReauth(ctx, func() error { return c.api.BatchOutTray(ctx, items, mode) }); err != nil {
		return nil, fmt.Errorf("discharge: %w", err)
	}

	logEntry := &DischargeLog{StartedAt: started, FinishedAt: time.Now().UTC(), Entries: entries}
	if opts.Mode == DischargeEmptiesOnly {
		taskID = 0
	}
	_ = c.rec.TaskDischarge(taskID, logEntry)
	_ = c.rec.BatchOutLog(map[string]any{"at": logEntry.FinishedAt, "items": items, "mode": mode})
	return logEntry, nil
}

func (c *Coordinator) isAirlock(code string) bool {
	return layout.IsAirlock(code, c.airlock)
}

// latestCompletedTask returns the highest-id COMPLETED task.
func (c *Coordinator) latestCompletedTask(ctx context.Context) (*station.TaskInfo, error) {
	var tasks []station.TaskInfo
	err := c.withReauth(ctx, func() error {
		var err error
		tasks, _, err = c.api.TaskList(ctx, station.TaskListOptions{Sort: "-id", Limit: 50, Status: station.TaskCompleted})
		return err
	})
	if err != nil {
		return nil, err
	}
	var best *station.TaskInfo
	for i := range tasks {
		if best == nil || tasks[i].ID > best.ID {
			best = &tasks[i]
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no COMPLETED task on the station")
	}
	return best, nil
}
