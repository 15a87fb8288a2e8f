package main

import (
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/ozarkconnect/linkpulse/internal/api/rest"
)

func serversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the measurement servers a linkpulse-server advertises",
		RunE: func(cmd *cobra.Command, args []string) error {
			var servers []rest.ServerDescriptor
			if err := getJSON("/api/servers", &servers); err != nil {
				return err
			}

			headerFmt := colorNewUnderline()
			tbl := table.New("ID", "Name", "Location", "Websocket")
			tbl.WithHeaderFormatter(headerFmt)
			for _, s := range servers {
				tbl.AddRow(s.ID, s.Name, s.Location, s.WebsocketURL)
			}
			tbl.Print()
			return nil
		},
	}
}
