package mcplug

import "context"

// Transport is one connection to one MCP server. Implementations own their
// underlying OS resources (child process, HTTP client) and release them on
// Close.
//
// Initialize must be called exactly once before ListTools or CallTool; a
// second call is a programming error and returns a transport error. After a
// successful Initialize, ListTools and CallTool are safe for concurrent use.
// Every operation honors context cancellation. Close is idempotent and safe
// to call after an error.
type Transport interface {
	Initialize(ctx context.Context) (ServerInfo, error)
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	CallTool(ctx context.Context, name string, args any) (*CallResult, error)
	Close() error
}

// TransportWrapper decorates a freshly built transport, e.g. with
// instrumentation. The server name is the configured name, not the one the
// server reports.
type TransportWrapper func(server string, t Transport) Transport
