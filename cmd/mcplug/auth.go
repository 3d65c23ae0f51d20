package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hydai/mcplug"
	"github.com/hydai/mcplug/config"
	"github.com/hydai/mcplug/oauth"
)

// NewAuthCommand runs the browser OAuth flow for one HTTP server and caches
// the token where the transport will find it.
func NewAuthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auth <server>",
		Short: "Authenticate against an HTTP server via the browser OAuth flow",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			server := args[0]

			cfg, err := config.Load(config.Options{Path: flagConfig})
			if err != nil {
				fail(false, err)
			}
			sc, ok := cfg.Get(server)
			if !ok {
				fail(false, mcplug.ErrServerNotFound(server, cfg.Names))
			}
			if sc.BaseURL == "" {
				fail(false, mcplug.ErrOAuth(fmt.Sprintf("server '%s' is a stdio server; only HTTP servers use OAuth", server), nil))
			}

			flow := oauth.NewFlow(server, sc.BaseURL)
			token, err := flow.Run(cmd.Context())
			if err != nil {
				fail(false, err)
			}
			if err := oauth.SaveToken(server, token); err != nil {
				fail(false, err)
			}
			fmt.Printf("Authenticated. Token cached at %s\n", oauth.CachePath(server))
		},
	}
}
