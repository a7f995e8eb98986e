package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orchidlab/synthctl/internal/runloop"
	"github.com/orchidlab/synthctl/internal/station"
	"github.com/orchidlab/synthctl/internal/ui"
)

// taskIDArg parses an optional [task-id] positional. 0 means "let the
// coordinator pick".
func taskIDArg(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", args[0])
	}
	return id, nil
}

var submitCmd = &cobra.Command{
	Use:   "submit <recipe.yaml>",
	Short: "Compile a recipe and post it to the station",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := compileRecipe(args[0])
		if err != nil {
			return err
		}
		coord, done, err := newCoordinator()
		if err != nil {
			return err
		}
		defer done()

		id, err := coord.SubmitTask(cmd.Context(), payload)
		var dup *station.DuplicateTaskError
		if errors.As(err, &dup) {
			return fmt.Errorf("a task named %q already exists on the station; rename the recipe or delete the old task", dup.TaskName)
		}
		if err != nil {
			return err
		}
		fmt.Printf("task %d submitted as %q (%d units)\n", id, payload.TaskName, len(payload.LayoutList))
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start [task-id]",
	Short: "Start a submitted task",
	Long: `start launches a task on an idle station. Without an id it picks the
latest unstarted task. With glovebox checking enabled, the atmosphere
must be under the configured water and oxygen limits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := taskIDArg(args)
		if err != nil {
			return err
		}
		coord, done, err := newCoordinator()
		if err != nil {
			return err
		}
		defer done()

		started, err := coord.StartTask(cmd.Context(), runloop.StartOptions{
			TaskID:     id,
			CheckEnv:   viper.GetBool("glovebox.check"),
			WaterLimit: viper.GetFloat64("glovebox.h2o_limit_ppm"),
			O2Limit:    viper.GetFloat64("glovebox.o2_limit_ppm"),
		})
		var notReady *station.NotReadyError
		if errors.As(err, &notReady) {
			return fmt.Errorf("station refused to start task %d: %s", notReady.TaskID, notReady.Msg)
		}
		if err != nil {
			return err
		}
		fmt.Printf("task %d started\n", started)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [task-id]",
	Short: "Follow a running task to completion",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := taskIDArg(args)
		if err != nil {
			return err
		}
		coord, done, err := newCoordinator()
		if err != nil {
			return err
		}
		defer done()

		status, err := coord.WaitWithProgress(cmd.Context(), id, pollInterval(), taskDeadline(), func(step string) {
			fmt.Println(ui.RenderStep(step))
		})
		if err != nil {
			return err
		}
		if status != station.TaskCompleted {
			return fmt.Errorf("task finished %s", status)
		}
		fmt.Printf("%s task completed\n", ui.PassStyle.Render(ui.IconPass))
		return nil
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks on the station",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newStationClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		creds := credentials()
		if err := api.Login(ctx, creds.User, creds.Pass); err != nil {
			return err
		}
		tasks, total, err := api.TaskList(ctx, station.TaskListOptions{Sort: "-id", Limit: 50})
		if err != nil {
			return err
		}
		fmt.Print(ui.RenderTaskList(tasks))
		if total > len(tasks) {
			fmt.Printf("(%d of %d tasks)\n", len(tasks), total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd, startCmd, watchCmd, tasksCmd)
}
