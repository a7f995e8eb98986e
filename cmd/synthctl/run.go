package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orchidlab/synthctl/internal/readiness"
	"github.com/orchidlab/synthctl/internal/runloop"
	"github.com/orchidlab/synthctl/internal/station"
	"github.com/orchidlab/synthctl/internal/ui"
)

var (
	runInit      bool
	runDischarge bool
	runSkipCheck bool
)

var runCmd = &cobra.Command{
	Use:   "run <recipe.yaml>",
	Short: "Compile, check, submit, start, and follow a recipe end to end",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := compileRecipe(args[0])
		if err != nil {
			return err
		}
		dir, err := loadDirectory()
		if err != nil {
			return err
		}
		coord, done, err := newCoordinator()
		if err != nil {
			return err
		}
		defer done()
		ctx := cmd.Context()

		if runInit {
			if err := coord.DeviceInit(ctx, pollInterval(), idleDeadline()); err != nil {
				return err
			}
			fmt.Println("station initialized")
		}

		if !runSkipCheck {
			rows, err := coord.Inventory(ctx)
			if err != nil {
				return err
			}
			report := readiness.NewAnalyzer(dir, nil, logger).Analyze(payload, rows)
			fmt.Print(ui.RenderReadiness(report))
			if !report.Ready {
				return fmt.Errorf("station is not ready for %s", payload.TaskName)
			}
		}

		id, err := coord.SubmitTask(ctx, payload)
		var dup *station.DuplicateTaskError
		if errors.As(err, &dup) {
			return fmt.Errorf("a task named %q already exists on the station", dup.TaskName)
		}
		if err != nil {
			return err
		}
		fmt.Printf("task %d submitted\n", id)

		if _, err := coord.StartTask(ctx, runloop.StartOptions{
			TaskID:     id,
			CheckEnv:   viper.GetBool("glovebox.check"),
			WaterLimit: viper.GetFloat64("glovebox.h2o_limit_ppm"),
			O2Limit:    viper.GetFloat64("glovebox.o2_limit_ppm"),
		}); err != nil {
			return err
		}
		fmt.Printf("task %d started\n", id)

		status, err := coord.WaitWithProgress(ctx, id, pollInterval(), taskDeadline(), func(step string) {
			fmt.Println(ui.RenderStep(step))
		})
		if err != nil {
			return err
		}
		if status != station.TaskCompleted {
			return fmt.Errorf("task %d finished %s", id, status)
		}
		fmt.Printf("%s task %d completed\n", ui.PassStyle.Render(ui.IconPass), id)

		if !runDischarge {
			return nil
		}
		log, err := coord.Discharge(ctx, runloop.DischargeOptions{
			TaskID:   id,
			Mode:     runloop.DischargeBoth,
			Interval: pollInterval(),
			Deadline: idleDeadline(),
		})
		if err != nil {
			return err
		}
		fmt.Print(ui.RenderDischarge(log))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runInit, "init", false, "initialize the station before submitting")
	runCmd.Flags().BoolVar(&runDischarge, "discharge", false, "discharge trays after completion")
	runCmd.Flags().BoolVar(&runSkipCheck, "skip-check", false, "skip the local readiness check")
	rootCmd.AddCommand(runCmd)
}
