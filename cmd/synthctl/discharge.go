package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orchidlab/synthctl/internal/runloop"
	"github.com/orchidlab/synthctl/internal/ui"
)

var (
	dischargeTaskOnly    bool
	dischargeEmptiesOnly bool
	dischargeIgnore      bool
)

var dischargeCmd = &cobra.Command{
	Use:   "discharge [task-id]",
	Short: "Move finished and empty trays to the transfer buffer",
	Long: `discharge waits for an idle station, gathers the task's reaction and
sampling trays plus every empty tray, and batch-moves them to free
transfer buffer positions. Airlock trays are never touched. Without an
id it targets the latest completed task.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dischargeTaskOnly && dischargeEmptiesOnly {
			return fmt.Errorf("--task-only and --empties-only are mutually exclusive")
		}
		id, err := taskIDArg(args)
		if err != nil {
			return err
		}
		mode := runloop.DischargeBoth
		if dischargeTaskOnly {
			mode = runloop.DischargeTaskOnly
		}
		if dischargeEmptiesOnly {
			mode = runloop.DischargeEmptiesOnly
		}

		coord, done, err := newCoordinator()
		if err != nil {
			return err
		}
		defer done()

		log, err := coord.Discharge(cmd.Context(), runloop.DischargeOptions{
			TaskID:        id,
			Mode:          mode,
			IgnoreMissing: dischargeIgnore,
			Interval:      pollInterval(),
			Deadline:      idleDeadline(),
		})
		if err != nil {
			return err
		}
		fmt.Print(ui.RenderDischarge(log))
		return nil
	},
}

func init() {
	dischargeCmd.Flags().BoolVar(&dischargeTaskOnly, "task-only", false, "move only the task's trays")
	dischargeCmd.Flags().BoolVar(&dischargeEmptiesOnly, "empties-only", false, "move only empty trays")
	dischargeCmd.Flags().BoolVar(&dischargeIgnore, "ignore-missing", false, "skip task trays absent from the inventory")
	rootCmd.AddCommand(dischargeCmd)
}
