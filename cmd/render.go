package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/growifyai/blueprint/internal/engine"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the blueprint with deferred references resolved",
	Long: `Render substitutes every deferred reference (fromDatabase,
fromService, fromGroup, generateValue) with the concrete value recorded
by the last 'up' and prints the resulting document. Databases that have
not been provisioned yet cannot be resolved; run 'up' first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng := engine.New(projectName, nil)

		resolved, err := eng.Resolve(bp)
		if err != nil {
			return err
		}

		out, err := resolved.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
