package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hydai/mcplug"
	cliargs "github.com/hydai/mcplug/args"
	"github.com/hydai/mcplug/internal/history"
)

// NewCallCommand invokes one tool. The target and arguments accept every
// surface form the args package parses:
//
//	mcplug call server.tool key:value other=2
//	mcplug call 'server.tool(key: "value", n: 2)'
//	mcplug call 'server.tool("positional", 2)'
func NewCallCommand() *cobra.Command {
	var (
		jsonOut bool
		rawOut  bool
	)

	cmd := &cobra.Command{
		Use:   "call <server.tool> [key:value ...]",
		Short: "Invoke a tool on a configured server",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, argv []string) {
			ctx := cmd.Context()
			sess, err := newSession(ctx)
			if err != nil {
				fail(jsonOut, err)
			}
			defer sess.Close(ctx)

			server, tool, callArgs, err := resolveCall(ctx, sess, argv)
			if err != nil {
				fail(jsonOut, err)
			}

			start := time.Now()
			result, err := sess.runtime.CallTool(ctx, server, tool, callArgs)
			recordHistory(ctx, sess, server, tool, callArgs, err, time.Since(start))
			if err != nil {
				fail(jsonOut, err)
			}

			switch {
			case rawOut || sess.settings.Output.Format == "raw":
				fmt.Println(string(result.Raw))
			case jsonOut || sess.settings.Output.Format == "json":
				data, _ := json.MarshalIndent(result.Content, "", "  ")
				fmt.Println(string(data))
			default:
				fmt.Println(result.Text())
			}
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the content blocks as JSON")
	cmd.Flags().BoolVar(&rawOut, "raw", false, "emit the raw JSON-RPC result envelope")
	return cmd
}

// resolveCall turns the CLI argument vector into (server, tool, args).
// Function-call form owns the whole first argument; otherwise the remaining
// arguments are key:value / key=value pairs. Positional function-call values
// bind to the tool schema's required parameters, which costs a tools/list.
func resolveCall(ctx context.Context, sess *session, argv []string) (string, string, any, error) {
	target := argv[0]

	if strings.ContainsRune(target, '(') {
		server, tool, params, err := cliargs.ParseFunctionCall(target)
		if err != nil {
			return "", "", nil, err
		}
		positional, ok := params.([]any)
		if !ok {
			return server, tool, params, nil
		}
		def, err := findTool(ctx, sess, server, tool)
		if err != nil {
			return "", "", nil, err
		}
		bound, err := cliargs.BindPositional(def, positional)
		if err != nil {
			return "", "", nil, err
		}
		return server, tool, bound, nil
	}

	server, tool, err := cliargs.ParseToolRef(target)
	if err != nil {
		return "", "", nil, err
	}
	parsed, err := cliargs.Parse(argv[1:])
	if err != nil {
		return "", "", nil, err
	}
	return server, tool, parsed, nil
}

// findTool fetches the catalog and locates one definition.
func findTool(ctx context.Context, sess *session, server, tool string) (mcplug.ToolDefinition, error) {
	tools, err := sess.runtime.ListTools(ctx, server)
	if err != nil {
		return mcplug.ToolDefinition{}, err
	}
	known := make([]string, 0, len(tools))
	for _, t := range tools {
		if t.Name == tool {
			return t, nil
		}
		known = append(known, t.Name)
	}
	return mcplug.ToolDefinition{}, mcplug.ErrToolNotFound(server, tool, mcplug.SuggestTool(tool, known))
}

// recordHistory appends the invocation to the local history log when enabled.
// History failures never fail the call.
func recordHistory(ctx context.Context, sess *session, server, tool string, args any, callErr error, elapsed time.Duration) {
	if !sess.settings.History.Enabled {
		return
	}
	log := history.Open(sess.settings.History.Path)
	defer log.Close()
	if err := log.Init(ctx); err != nil {
		return
	}
	_ = log.Record(ctx, server, tool, args, callErr, elapsed)
}
