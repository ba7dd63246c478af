package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/growifyai/blueprint/internal/manifest"
)

// Loaded blueprint, shared by all subcommands.
var bp *manifest.Blueprint

var (
	manifestFile   string
	projectName    string
	artifactBucket string
)

var rootCmd = &cobra.Command{
	Use:   "blueprint",
	Short: "Blueprint: declarative service and database provisioning",
	// PersistentPreRunE runs before ANY command (up, down, etc.)
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := manifest.Load(manifestFile)
		if err != nil {
			return err
		}
		bp = loaded

		if projectName == "" {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			projectName = filepath.Base(dir)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&manifestFile, "file", "f", "blueprint.yaml", "path to the blueprint manifest")
	rootCmd.PersistentFlags().StringVarP(&projectName, "project", "p", "", "project name (defaults to the working directory name)")
	rootCmd.PersistentFlags().StringVar(&artifactBucket, "artifact-bucket", "", "S3 bucket for deploy records")
}
