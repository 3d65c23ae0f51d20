package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewListCommand lists configured servers, or one server's tools.
func NewListCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list [server]",
		Short: "List configured servers, or the tools of one server",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			sess, err := newSession(ctx)
			if err != nil {
				fail(jsonOut, err)
			}
			defer sess.Close(ctx)

			if len(args) == 0 {
				listServers(sess, jsonOut)
				return
			}
			listTools(cmd, sess, args[0], jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON")
	return cmd
}

func listServers(sess *session, jsonOut bool) {
	cfg := sess.runtime.Config()

	if jsonOut {
		type row struct {
			Name        string `json:"name"`
			Description string `json:"description,omitempty"`
			Transport   string `json:"transport"`
			Lifecycle   string `json:"lifecycle,omitempty"`
		}
		rows := make([]row, 0, len(cfg.Names))
		for _, name := range cfg.Names {
			sc := cfg.Servers[name]
			rows = append(rows, row{
				Name:        name,
				Description: sc.Description,
				Transport:   transportOf(sc.BaseURL),
				Lifecycle:   string(sc.Lifecycle),
			})
		}
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(cfg.Names) == 0 {
		fmt.Println("No servers configured. Create config/mcplug.json or ~/.mcplug/mcplug.json.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTRANSPORT\tDESCRIPTION")
	for _, name := range cfg.Names {
		sc := cfg.Servers[name]
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, transportOf(sc.BaseURL), sc.Description)
	}
	w.Flush()
}

func transportOf(baseURL string) string {
	if baseURL != "" {
		return "http"
	}
	return "stdio"
}

func listTools(cmd *cobra.Command, sess *session, server string, jsonOut bool) {
	tools, err := sess.runtime.ListTools(cmd.Context(), server)
	if err != nil {
		fail(jsonOut, err)
	}

	if jsonOut {
		data, _ := json.MarshalIndent(tools, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(tools) == 0 {
		fmt.Printf("%s exposes no tools.\n", server)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
	}
	w.Flush()
}
