package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozarkconnect/linkpulse/internal/api/rest"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check a linkpulse-server's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health rest.HealthResponse
			if err := getJSON("/api/health", &health); err != nil {
				return err
			}

			status := green(health.Status)
			if health.Status != "ok" {
				status = red(health.Status)
			}

			fmt.Printf("%s  %s  version=%s  uptime=%.0fs  active_tests=%d\n",
				bold(serverURL), status, health.Version, health.UptimeSeconds, health.ActiveTests)
			return nil
		},
	}
}
