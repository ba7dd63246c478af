package main

import (
	"os"

	"github.com/growifyai/blueprint/cmd"
)

func main() {
	// Cobra already prints the error, so just set the exit code.
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
