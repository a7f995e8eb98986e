package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orchidlab/synthctl/internal/taskgraph"
)

var buildOut string

var buildCmd = &cobra.Command{
	Use:   "build <recipe.yaml>",
	Short: "Compile a recipe into a station task payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := compileRecipe(args[0])
		if err != nil {
			return err
		}

		raw, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		if buildOut != "" {
			if err := os.WriteFile(buildOut, append(raw, '\n'), 0644); err != nil {
				return err
			}
			fmt.Printf("payload written to %s (%d units)\n", buildOut, len(payload.LayoutList))
			return nil
		}
		fmt.Println(string(raw))
		return nil
	},
}

// compileRecipe loads the chemical directory and a recipe file and runs
// the builder.
func compileRecipe(path string) (*taskgraph.Payload, error) {
	dir, err := loadDirectory()
	if err != nil {
		return nil, err
	}
	recipe, err := taskgraph.LoadRecipe(path)
	if err != nil {
		return nil, err
	}
	payload, err := taskgraph.NewBuilder(dir).Build(recipe)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", recipe.Name, err)
	}
	return payload, nil
}

func init() {
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "write the payload JSON to a file instead of stdout")
	rootCmd.AddCommand(buildCmd)
}
