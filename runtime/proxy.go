package runtime

import (
	"context"

	"github.com/hydai/mcplug"
	"github.com/hydai/mcplug/config"
)

// ServerProxy binds a server name to a Runtime for ergonomic repeated calls.
// It borrows the Runtime and must not outlive it.
type ServerProxy struct {
	runtime *Runtime
	server  string
}

// Name returns the bound server name.
func (p *ServerProxy) Name() string { return p.server }

// Call invokes tool on the bound server.
func (p *ServerProxy) Call(ctx context.Context, tool string, args any) (*mcplug.CallResult, error) {
	return p.runtime.CallTool(ctx, p.server, tool, args)
}

// Tools returns the bound server's tool catalog.
func (p *ServerProxy) Tools(ctx context.Context) ([]mcplug.ToolDefinition, error) {
	return p.runtime.ListTools(ctx, p.server)
}

// Info connects to the bound server and returns its handshake info.
func (p *ServerProxy) Info(ctx context.Context) (mcplug.ServerInfo, error) {
	return p.runtime.ServerInfo(ctx, p.server)
}

// CallOnce loads the layered configuration, performs a single tool call, and
// tears everything down. The one-shot entry point for embedders that don't
// hold a Runtime.
func CallOnce(ctx context.Context, server, tool string, args any, opts ...Option) (*mcplug.CallResult, error) {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		return nil, err
	}
	r := New(cfg, opts...)
	defer r.Close()
	return r.CallTool(ctx, server, tool, args)
}
