package main

import (
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/ozarkconnect/linkpulse/internal/api/rest"
)

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show recent test results recorded by a linkpulse-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []rest.BasicResultDTO
			if err := getJSON("/api/test/history", &results); err != nil {
				return err
			}

			if len(results) == 0 {
				cmd.Println("no recorded results")
				return nil
			}

			headerFmt := colorNewUnderline()
			tbl := table.New("Test ID", "Down", "Up", "Latency", "Jitter", "Duration", "When")
			tbl.WithHeaderFormatter(headerFmt)
			for _, r := range results {
				tbl.AddRow(
					r.TestID,
					colorMbps(r.DownMbps),
					colorMbps(r.UpMbps),
					colorLatency(r.LatencyMs),
					colorLatency(r.JitterMs),
					r.DurationSec,
					r.Timestamp.Local().Format("2006-01-02 15:04:05"),
				)
			}
			tbl.Print()
			return nil
		},
	}
}
