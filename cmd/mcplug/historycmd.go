package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hydai/mcplug/internal/history"
	"github.com/hydai/mcplug/internal/settings"
)

// NewHistoryCommand prints recent tool invocations.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tool invocations",
		Run: func(cmd *cobra.Command, args []string) {
			s := settings.Load("")
			if !s.History.Enabled {
				fmt.Println("History is disabled in settings.")
				return
			}

			log := history.Open(s.History.Path)
			defer log.Close()
			if err := log.Init(cmd.Context()); err != nil {
				fail(false, err)
			}

			entries, err := log.Recent(cmd.Context(), limit)
			if err != nil {
				fail(false, err)
			}
			if len(entries) == 0 {
				fmt.Println("No invocations recorded.")
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tSERVER\tTOOL\tSTATUS\tTOOK")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\n",
					e.CreatedAt.Format(time.DateTime), e.Server, e.Tool, e.Status, e.DurationMS)
			}
			w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}
