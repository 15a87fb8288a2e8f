// linkpulsectl is a thin terminal client for a linkpulse-server: it starts a
// measurement run and streams the live protocol, and reads back history,
// the server catalog, and health.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "linkpulsectl",
		Short: "Command-line client for a linkpulse measurement server",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "linkpulse-server base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(runCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(serversCmd())
	root.AddCommand(healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}
