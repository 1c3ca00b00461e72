package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/supervisor"
)

var healthStart bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the backend health endpoint, optionally starting the backend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sc := cfg.Supervisor
		if healthStart {
			sc.AutoStart = true
		}
		sup := supervisor.New(sc)

		if !healthStart {
			if !sup.IsRunning(cmd.Context()) {
				return eris.Errorf("backend not reachable at %s", sc.HealthURL)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend healthy at %s\n", sc.HealthURL)
			return nil
		}

		// A started backend keeps running after this command exits.
		if err := sup.EnsureRunning(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backend healthy at %s\n", sc.HealthURL)
		return nil
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthStart, "start", false, "start the backend with supervisor.start_command when it is down")
	rootCmd.AddCommand(healthCmd)
}
