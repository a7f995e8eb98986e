// Package runloop drives a synthesis run end to end: session upkeep,
// idle waits, task submission, progress polling, and post-run
// discharge. One coordinator owns the station session for the duration
// of a run; the station itself serializes tasks, so there is never more
// than one run in flight.
package runloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/orchidlab/synthctl/internal/layout"
	"github.com/orchidlab/synthctl/internal/sink"
	"github.com/orchidlab/synthctl/internal/station"
	"github.com/orchidlab/synthctl/internal/taskgraph"
)

// TimeoutError reports a polling deadline breach, naming the stage and
// the last state observed there.
type TimeoutError struct {
	Stage     string
	LastState string
}

func (e *TimeoutError) Error() string {
	if e.LastState != "" {
		return fmt.Sprintf("%s: timed out (last state %s)", e.Stage, e.LastState)
	}
	return fmt.Sprintf("%s: timed out", e.Stage)
}

// Credentials for the upper computer.
type Credentials struct {
	User string
	Pass string
}

// Coordinator owns the station session and the active task handle for
// one run.
type Coordinator struct {
	api     station.API
	creds   Credentials
	rec     sink.Sink
	log     *slog.Logger
	airlock []string

	// listRetryDelay spaces the running-task lookup retries; tests
	// shorten it.
	listRetryDelay time.Duration
}

// New builds a coordinator. nil sink and logger mean discard; nil
// airlock prefixes mean the defaults.
func New(api station.API, creds Credentials, rec sink.Sink, log *slog.Logger, airlockPrefixes []string) *Coordinator {
	if rec == nil {
		rec = sink.Discard{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if airlockPrefixes == nil {
		airlockPrefixes = layout.DefaultAirlockPrefixes
	}
	return &Coordinator{
		api:            api,
		creds:          creds,
		rec:            rec,
		log:            log,
		airlock:        airlockPrefixes,
		listRetryDelay: 10 * time.Second,
	}
}

// ensureSession logs in when no token is cached.
func (c *Coordinator) ensureSession(ctx context.Context) error {
	if c.api.Authenticated() {
		return nil
	}
	if err := c.api.Login(ctx, c.creds.User, c.creds.Pass); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	c.log.Debug("station session established")
	return nil
}

// withReauth runs fn with a live session. On an authorization-expired
// fault it clears the token, logs in once, and retries fn exactly once;
// a second 401 propagates.
func (c *Coordinator) withReauth(ctx context.Context, fn func() error) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	err := fn()
	if !errors.Is(err, station.ErrUnauthorized) {
		return err
	}
	c.log.Info("station session expired, re-authenticating")
	c.api.ClearToken()
	if err := c.api.Login(ctx, c.creds.User, c.creds.Pass); err != nil {
		return fmt.Errorf("re-authenticate: %w", err)
	}
	return fn()
}

// WaitIdle polls the station state until IDLE, logging every
// transition. Breaching the deadline raises a TimeoutError naming the
// stage.
func (c *Coordinator) WaitIdle(ctx context.Context, stage string, interval, deadline time.Duration) error {
	deadlineAt := time.Now().Add(deadline)
	last := station.StateUnknown

	bo := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	return backoff.Retry(func() error {
		if time.Now().After(deadlineAt) {
			return backoff.Permanent(&TimeoutError{Stage: stage, LastState: last.String()})
		}
		var state station.State
		err := c.withReauth(ctx, func() error {
			var err error
			state, err = c.api.StationState(ctx)
			return err
		})
		if err != nil {
			return backoff.Permanent(err)
		}
		if state != last {
			c.log.Info("station state changed", "stage", stage, "from", last.String(), "to", state.String())
			_ = c.rec.Snapshot(sink.KindStationState, map[string]string{"stage": stage, "state": state.String()})
			last = state
		}
		if state == station.StateIdle {
			return nil
		}
		return fmt.Errorf("station is %s", state)
	}, bo)
}

// DeviceInit commands station initialization, waits for idleness, and
// best-effort homes the W-1 shelves that hold 125 mL reagent bottle
// trays. Shelf homing failures are logged, never raised.
func (c *Coordinator) DeviceInit(ctx context.Context, interval, deadline time.Duration) error {
	if err := c.withReauth(ctx, func() error { return c.api.DeviceInit(ctx) }); err != nil {
		return fmt.Errorf("device init: %w", err)
	}
	_ = c.rec.Snapshot(sink.KindDeviceStatus, map[string]any{"event": "init", "at": time.Now().UTC()})
	if err := c.WaitIdle(ctx, "device-init", interval, deadline); err != nil {
		return err
	}

	var rows []station.InventoryRow
	err := c.withReauth(ctx, func() error {
		var err error
		rows, err = c.api.ResourceInfo(ctx, "")
		return err
	})
	if err != nil {
		return fmt.Errorf("device init: enumerate inventory: %w", err)
	}
	_ = c.rec.Snapshot(sink.KindResourceInfo, rows)

	// W-1-1 controls W-1-1/2; W-1-3 controls W-1-3/4.
	controllers := make(map[string]bool)
	for _, row := range rows {
		if station.BottleClassML(row.TrayCode) != 125 {
			continue
		}
		switch row.LayoutCode {
		case "W-1-1", "W-1-2":
			controllers["W-1-1"] = true
		case "W-1-3", "W-1-4":
			controllers["W-1-3"] = true
		}
	}
	for _, pos := range []string{"W-1-1", "W-1-3"} {
		if !controllers[pos] {
			continue
		}
		if err := c.withReauth(ctx, func() error { return c.api.ShelfHome(ctx, pos) }); err != nil {
			c.log.Warn("post-init shelf homing failed", "shelf", pos, "error", err)
		}
	}
	return nil
}

// Inventory fetches the current inventory snapshot.
func (c *Coordinator) Inventory(ctx context.Context) ([]station.InventoryRow, error) {
	var rows []station.InventoryRow
	err := c.withReauth(ctx, func() error {
		var err error
		rows, err = c.api.ResourceInfo(ctx, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LoadIn submits material load-in requests and records them.
func (c *Coordinator) LoadIn(ctx context.Context, reqs []station.TrayLoad) error {
	if err := c.withReauth(ctx, func() error { return c.api.BatchInTray(ctx, reqs) }); err != nil {
		return fmt.Errorf("batch in: %w", err)
	}
	_ = c.rec.BatchInLog(map[string]any{"at": time.Now().UTC(), "items": reqs})
	return nil
}

// SubmitTask posts a built payload and records the new task handle.
func (c *Coordinator) SubmitTask(ctx context.Context, payload *taskgraph.Payload) (int64, error) {
	var id int64
	err := c.withReauth(ctx, func() error {
		var err error
		id, err = c.api.AddTask(ctx, payload)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.log.Info("task submitted", "task_id", id, "task_name", payload.TaskName)
	_ = c.rec.TaskCreate(id, map[string]any{"task_name": payload.TaskName, "experiment_num": payload.TaskSetup.ExperimentNum})
	_ = c.rec.TaskPayload(id, payload)
	return id, nil
}

// StartOptions gates StartTask.
type StartOptions struct {
	TaskID     int64 // 0 selects the latest UNSTARTED task
	CheckEnv   bool
	WaterLimit float64 // ppm
	O2Limit    float64 // ppm
}

// StartTask starts a submitted task. The station must be idle; with
// CheckEnv on, the glovebox atmosphere must be under both limits.
func (c *Coordinator) StartTask(ctx context.Context, opts StartOptions) (int64, error) {
	var state station.State
	err := c.withReauth(ctx, func() error {
		var err error
		state, err = c.api.StationState(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if state != station.StateIdle {
		return 0, fmt.Errorf("start task: station is %s, not IDLE", state)
	}

	if opts.CheckEnv {
		var env *station.GloveboxEnv
		err := c.withReauth(ctx, func() error {
			var err error
			env, err = c.api.GloveboxEnv(ctx)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("start task: read glovebox: %w", err)
		}
		_ = c.rec.Snapshot(sink.KindGloveboxEnv, env)
		if env.H2OPPM >= opts.WaterLimit {
			return 0, fmt.Errorf("start task: glovebox H2O %.1f ppm over limit %.1f", env.H2OPPM, opts.WaterLimit)
		}
		if env.O2PPM >= opts.O2Limit {
			return 0, fmt.Errorf("start task: glovebox O2 %.1f ppm over limit %.1f", env.O2PPM, opts.O2Limit)
		}
	}

	taskID := opts.TaskID
	if taskID == 0 {
		var tasks []station.TaskInfo
		err := c.withReauth(ctx, func() error {
			var err error
			tasks, _, err = c.api.TaskList(ctx, station.TaskListOptions{Sort: "-id", Limit: 50, Status: station.TaskUnstarted})
			return err
		})
		if err != nil {
			return 0, err
		}
		if len(tasks) == 0 {
			return 0, fmt.Errorf("start task: no UNSTARTED task on the station")
		}
		for _, task := range tasks {
			if task.ID > taskID {
				taskID = task.ID
			}
		}
	}

	if err := c.withReauth(ctx, func() error { return c.api.StartTask(ctx, taskID) }); err != nil {
		return 0, err
	}
	c.log.Info("task started", "task_id", taskID)
	_ = c.rec.TaskStatus(taskID, station.TaskRunning, time.Now().UTC())
	return taskID, nil
}

// WaitWithProgress polls a task to a terminal status, streaming each
// newly observed step to onStep exactly once. With taskID 0 it looks
// for the highest-id RUNNING task, retrying up to 3 times.
func (c *Coordinator) WaitWithProgress(ctx context.Context, taskID int64, interval, deadline time.Duration, onStep func(string)) (string, error) {
	if taskID == 0 {
		var err error
		taskID, err = c.findRunningTask(ctx)
		if err != nil {
			return "", err
		}
	}
	if onStep == nil {
		onStep = func(string) {}
	}

	deadlineAt := time.Now().Add(deadline)
	seen := make(map[string]bool)
	lastStatus := ""

	bo := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	err := backoff.Retry(func() error {
		if time.Now().After(deadlineAt) {
			return backoff.Permanent(&TimeoutError{Stage: "wait-task", LastState: lastStatus})
		}

		var info *station.TaskInfo
		err := c.withReauth(ctx, func() error {
			var err error
			info, err = c.api.TaskInfo(ctx, taskID)
			return err
		})
		if err != nil {
			return backoff.Permanent(err)
		}
		if info.Status != lastStatus {
			c.log.Info("task status changed", "task_id", taskID, "from", lastStatus, "to", info.Status)
			lastStatus = info.Status
		}
		if station.TaskTerminal(info.Status) {
			return nil
		}

		var ops *station.TaskOpInfo
		err = c.withReauth(ctx, func() error {
			var err error
			ops, err = c.api.TaskOpInfo(ctx, taskID)
			return err
		})
		if err != nil {
			return backoff.Permanent(err)
		}
		for _, u := range append(append([]station.StepUnit(nil), ops.DoneUnits...), ops.RunningUnits...) {
			step := fmt.Sprintf("%s: %s → %s", u.UnitID, u.Action, u.Target)
			if !seen[step] {
				seen[step] = true
				onStep(step)
			}
		}
		return fmt.Errorf("task %d is %s", taskID, info.Status)
	}, bo)
	if err != nil {
		return lastStatus, err
	}

	_ = c.rec.TaskStatus(taskID, lastStatus, time.Now().UTC())
	return lastStatus, nil
}

// findRunningTask picks the highest-id RUNNING task, retrying up to 3
// times with a pause, since the station registers the start
// asynchronously.
func (c *Coordinator) findRunningTask(ctx context.Context) (int64, error) {
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.listRetryDelay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		var tasks []station.TaskInfo
		err := c.withReauth(ctx, func() error {
			var err error
			tasks, _, err = c.api.TaskList(ctx, station.TaskListOptions{Sort: "-id", Limit: 50, Status: station.TaskRunning})
			return err
		})
		if err != nil {
			return 0, err
		}
		var best int64
		for _, task := range tasks {
			if task.ID > best {
				best = task.ID
			}
		}
		if best != 0 {
			return best, nil
		}
	}
	return 0, fmt.Errorf("wait task: no RUNNING task found after 3 attempts")
}
