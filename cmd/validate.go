package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/growifyai/blueprint/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the blueprint's structural properties",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := bp.Validate()
		if err == nil {
			fmt.Printf("%s is valid: %d database(s), %d service(s)\n",
				manifestFile, len(bp.Databases), len(bp.Services))
			return nil
		}

		var verr *manifest.ValidationError
		if errors.As(err, &verr) {
			for _, violation := range verr.Violations {
				fmt.Printf("  - %s\n", violation)
			}
			return fmt.Errorf("%s has %d violation(s)", manifestFile, len(verr.Violations))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
