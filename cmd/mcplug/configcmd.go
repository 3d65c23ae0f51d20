package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hydai/mcplug/config"
)

// NewConfigCommand inspects the resolved configuration.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(newConfigShowCommand(), newConfigPathCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged, env-expanded server catalog",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(config.Options{Path: flagConfig})
			if err != nil {
				fail(false, err)
			}
			ordered := make(map[string]any, len(cfg.Names))
			for _, name := range cfg.Names {
				ordered[name] = cfg.Servers[name]
			}
			data, _ := json.MarshalIndent(map[string]any{"mcpServers": ordered}, "", "  ")
			fmt.Println(string(data))
		},
	}
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config files that were loaded, highest precedence first",
		Run: func(cmd *cobra.Command, args []string) {
			paths := config.Discover(flagConfig)
			if len(paths) == 0 {
				fmt.Fprintln(os.Stderr, "No config files found.")
				os.Exit(1)
			}
			for _, p := range paths {
				fmt.Println(p)
			}
		},
	}
}
