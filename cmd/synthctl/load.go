package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/orchidlab/synthctl/internal/station"
)

var loadDetails string

var loadCmd = &cobra.Command{
	Use:   "load <layout-code> <tray-code>",
	Short: "Register a tray loaded at a station position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		trayCode, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid tray code %q", args[1])
		}
		if _, ok := station.TrayByCode(trayCode); !ok {
			return fmt.Errorf("unknown tray code %d", trayCode)
		}

		req := station.TrayLoad{LayoutCode: args[0], TrayCode: trayCode}
		if loadDetails != "" {
			raw, err := os.ReadFile(loadDetails)
			if err != nil {
				return err
			}
			if !json.Valid(raw) {
				return fmt.Errorf("%s is not valid JSON", loadDetails)
			}
			req.Details = json.RawMessage(raw)
		}

		coord, done, err := newCoordinator()
		if err != nil {
			return err
		}
		defer done()

		if err := coord.LoadIn(cmd.Context(), []station.TrayLoad{req}); err != nil {
			return err
		}
		fmt.Printf("tray %d registered at %s\n", trayCode, args[0])
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadDetails, "details", "", "JSON file with per-well substance details")
	rootCmd.AddCommand(loadCmd)
}
