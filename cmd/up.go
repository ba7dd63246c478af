package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/growifyai/blueprint/internal/cloud"
	"github.com/growifyai/blueprint/internal/docker"
	"github.com/growifyai/blueprint/internal/engine"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Provision databases, then build and start services",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := docker.NewManager()
		if err != nil {
			return err
		}

		eng := engine.New(projectName, mgr)
		eng.ArtifactBucket = artifactBucket
		eng.NewCloud = func(ctx context.Context) (engine.CloudProvisioner, error) {
			return cloud.NewProvisioner(ctx)
		}

		if err := eng.Apply(context.Background(), bp); err != nil {
			return err
		}

		fmt.Println("Environment is up.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(upCmd)
}
