package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/growifyai/blueprint/internal/docker"
	"github.com/growifyai/blueprint/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List provisioned resources and running services",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := docker.NewManager()
		if err != nil {
			return err
		}

		eng := engine.New(projectName, mgr)
		containers, st, err := eng.Status(context.Background())
		if err != nil {
			return err
		}

		if len(containers) == 0 && len(st.Services) == 0 {
			fmt.Println("No blueprint resources found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tSTATUS\tADDRESS")

		for _, c := range containers {
			// c.Names[0] is "/blueprint-myproj-db", strip the slash
			name := c.Names[0][1:]

			addr := ""
			for _, p := range c.Ports {
				if p.PublicPort != 0 {
					addr = fmt.Sprintf("localhost:%d", p.PublicPort)
					break
				}
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, c.Image, c.Status, addr)
		}

		for name, svc := range st.Services {
			if len(svc.PIDs) == 0 {
				continue
			}
			addr := ""
			if svc.Port != 0 {
				addr = fmt.Sprintf("%s:%d", svc.Host, svc.Port)
			}
			fmt.Fprintf(w, "%s\t%s\tpid %v\t%s\n", name, svc.Type, svc.PIDs, addr)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
