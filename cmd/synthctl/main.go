// synthctl drives a synthesis workstation: recipe compilation,
// readiness checks, task submission, and run supervision against the
// station's upper computer.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
