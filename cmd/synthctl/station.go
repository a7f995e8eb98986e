package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orchidlab/synthctl/internal/ui"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the station's overall state",
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
		state, err := api.StationState(ctx)
		if err != nil {
			return err
		}
		fmt.Println(state.String())
		return nil
	},
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Show the station inventory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, done, err := newCoordinator()
		if err != nil {
			return err
		}
		defer done()

		rows, err := coord.Inventory(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(ui.RenderInventory(rows))
		return nil
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Show the glovebox atmosphere",
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
		env, err := api.GloveboxEnv(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ui.RenderGlovebox(env))
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the station and home loaded reagent shelves",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, done, err := newCoordinator()
		if err != nil {
			return err
		}
		defer done()

		if err := coord.DeviceInit(cmd.Context(), pollInterval(), idleDeadline()); err != nil {
			return err
		}
		fmt.Printf("%s station initialized\n", ui.PassStyle.Render(ui.IconPass))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd, inventoryCmd, envCmd, initCmd)
}
