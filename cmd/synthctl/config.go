package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orchidlab/synthctl/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if file := viper.ConfigFileUsed(); file != "" {
			fmt.Printf("config file: %s\n", file)
		} else {
			fmt.Println(ui.MutedStyle.Render("no config file found; using defaults, flags, and SYNTHCTL_* environment"))
		}

		keys := viper.AllKeys()
		sort.Strings(keys)
		for _, key := range keys {
			value := viper.Get(key)
			if key == "pass" && value != "" {
				value = "********"
			}
			fmt.Printf("%-24s %v\n", key, value)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
