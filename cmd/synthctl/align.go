package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orchidlab/synthctl/internal/chem"
)

var alignDeleteUnknown bool

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Reconcile the local chemical directory with the station registry",
	Long: `align pushes local chemicals the station does not know, updates
entries whose CAS or physical state drifted, and back-fills the
station-side ids into the local directory file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := loadDirectory()
		if err != nil {
			return err
		}
		api, err := newStationClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		creds := credentials()
		if err := api.Login(ctx, creds.User, creds.Pass); err != nil {
			return err
		}

		stats, err := dir.Align(ctx, api, chem.AlignOptions{DeleteUnknown: alignDeleteUnknown})
		if err != nil {
			return err
		}
		if err := dir.SaveFile(viper.GetString("chemicals")); err != nil {
			return fmt.Errorf("save directory: %w", err)
		}
		fmt.Printf("aligned %d chemicals: %d created, %d updated, %d deleted, %d unchanged\n",
			dir.Len(), stats.Created, stats.Updated, stats.Deleted, stats.Matched)
		return nil
	},
}

func init() {
	alignCmd.Flags().BoolVar(&alignDeleteUnknown, "delete-unknown", false, "delete station chemicals absent from the local directory")
	rootCmd.AddCommand(alignCmd)
}
