package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/growifyai/blueprint/internal/cloud"
	"github.com/growifyai/blueprint/internal/docker"
	"github.com/growifyai/blueprint/internal/engine"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop services and remove provisioned resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := docker.NewManager()
		if err != nil {
			return err
		}

		eng := engine.New(projectName, mgr)
		eng.NewCloud = func(ctx context.Context) (engine.CloudProvisioner, error) {
			return cloud.NewProvisioner(ctx)
		}

		if err := eng.Destroy(context.Background()); err != nil {
			return err
		}

		fmt.Println("Environment stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downCmd)
}
