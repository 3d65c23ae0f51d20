// Package mcplug is a client-side toolkit for the Model Context Protocol (MCP).
//
// It discovers MCP servers from layered configuration sources, connects to
// them over stdio child processes or HTTP with Server-Sent Events, performs
// the MCP JSON-RPC handshake, enumerates tools, and invokes tools with
// caller-supplied arguments. It ships both as an embeddable library and as
// the mcplug command-line tool.
//
// # Quick Start
//
// Load the merged configuration and dispatch calls through a Runtime:
//
//	cfg, err := config.Load(config.Options{})
//	if err != nil {
//		return err
//	}
//	rt := runtime.New(cfg)
//	defer rt.Close()
//
//	result, err := rt.CallTool(ctx, "firecrawl", "scrape", map[string]any{
//		"url": "https://example.com",
//	})
//	fmt.Println(result.Text())
//
// # Core Interfaces
//
// The root package defines the contracts the rest of the module implements:
//
//   - [Transport] — one connection to one MCP server (stdio or HTTP+SSE)
//   - [Config], [ServerConfig] — the resolved, env-expanded server catalog
//   - [Error] — the closed error taxonomy with stable string codes
//   - [CallResult], [ContentBlock], [ToolDefinition], [ServerInfo] — the value model
//
// # Included Implementations
//
// Transports: transport/stdio (child process, newline-delimited JSON-RPC),
// transport/httpsse (HTTP POST with JSON or SSE responses).
// Resolution: config (discovery, JSONC, env expansion, editor imports).
// Dispatch: runtime (connection pool, lifecycle policy, timeouts).
// Parsing: args (CLI argument surface forms, tool-name suggestions).
//
// See cmd/mcplug for the command-line entry point.
package mcplug
