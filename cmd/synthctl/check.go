package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orchidlab/synthctl/internal/readiness"
	"github.com/orchidlab/synthctl/internal/ui"
)

var checkTaskID int64

var checkCmd = &cobra.Command{
	Use:   "check <recipe.yaml>",
	Short: "Diff recipe demand against live station inventory",
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
		rows, err := coord.Inventory(ctx)
		if err != nil {
			return err
		}

		analyzer := readiness.NewAnalyzer(dir, nil, logger)
		report := analyzer.Analyze(payload, rows)
		if checkTaskID != 0 {
			api, err := newStationClient()
			if err != nil {
				return err
			}
			creds := credentials()
			if err := api.Login(ctx, creds.User, creds.Pass); err != nil {
				return err
			}
			if err := analyzer.ConfirmWithStation(ctx, api, checkTaskID, report); err != nil {
				return err
			}
		}

		fmt.Print(ui.RenderReadiness(report))
		if !report.Ready {
			return fmt.Errorf("station is not ready for %s", payload.TaskName)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().Int64Var(&checkTaskID, "task-id", 0, "also run the station-side check for a submitted task")
	rootCmd.AddCommand(checkCmd)
}
