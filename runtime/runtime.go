// Package runtime dispatches tool calls to MCP servers. A Runtime owns one
// transport per server, lazily connected, pooled according to the lifecycle
// policy, and wrapped with the operation timeouts. It is the single place
// where deadlines, cancellation, and pool invalidation are applied; it never
// retries, because tool calls are not known to be idempotent.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hydai/mcplug"
	"github.com/hydai/mcplug/transport/httpsse"
	"github.com/hydai/mcplug/transport/stdio"
)

const defaultTimeout = 30 * time.Second

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets a structured logger for pool and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithAllowHTTP permits cleartext http:// base URLs for HTTP transports.
func WithAllowHTTP(allow bool) Option {
	return func(r *Runtime) { r.allowHTTP = allow }
}

// WithWorkDir overrides the working directory for stdio children. It wins
// over the directory of the config file that defined the server.
func WithWorkDir(dir string) Option {
	return func(r *Runtime) { r.workDir = dir }
}

// WithTransportWrapper decorates every transport the Runtime builds, e.g.
// with observer instrumentation.
func WithTransportWrapper(w mcplug.TransportWrapper) Option {
	return func(r *Runtime) { r.wrap = w }
}

// Runtime maps server names to transports and applies timeout and lifecycle
// policy. The configuration is immutable after construction; the pool is
// guarded so each keep-alive server initializes at most once.
type Runtime struct {
	config    *mcplug.Config
	logger    *slog.Logger
	allowHTTP bool
	workDir   string
	wrap      mcplug.TransportWrapper

	connect singleflight.Group

	mu   sync.Mutex
	pool map[string]*conn
}

// New builds a Runtime over an already-resolved configuration.
func New(cfg *mcplug.Config, opts ...Option) *Runtime {
	r := &Runtime{
		config: cfg,
		logger: slog.New(discardHandler{}),
		pool:   make(map[string]*conn),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Config returns the resolved configuration.
func (r *Runtime) Config() *mcplug.Config { return r.config }

// ServerNames returns the configured server names in declaration order.
func (r *Runtime) ServerNames() []string {
	names := make([]string, len(r.config.Names))
	copy(names, r.config.Names)
	return names
}

// Server returns a proxy bound to one server name.
func (r *Runtime) Server(name string) *ServerProxy {
	return &ServerProxy{runtime: r, server: name}
}

// CallTool invokes tool on server with args and returns its result. Exactly
// one of the result and the error is non-nil.
func (r *Runtime) CallTool(ctx context.Context, server, tool string, args any) (*mcplug.CallResult, error) {
	conn, err := r.acquire(ctx, server)
	if err != nil {
		return nil, err
	}
	defer r.release(server, conn)

	result, err := timedOp(r, ctx, server, tool, callTimeout(), func(opCtx context.Context) (*mcplug.CallResult, error) {
		return conn.transport.CallTool(opCtx, tool, args)
	})
	if err != nil {
		return nil, r.checkToolNotFound(ctx, server, tool, err)
	}
	return result, nil
}

// ListTools returns the tool catalog of server.
func (r *Runtime) ListTools(ctx context.Context, server string) ([]mcplug.ToolDefinition, error) {
	conn, err := r.acquire(ctx, server)
	if err != nil {
		return nil, err
	}
	defer r.release(server, conn)

	return timedOp(r, ctx, server, "", listTimeout(), func(opCtx context.Context) ([]mcplug.ToolDefinition, error) {
		return conn.transport.ListTools(opCtx)
	})
}

// ServerInfo connects to server (or reuses its pooled transport) and returns
// the handshake info.
func (r *Runtime) ServerInfo(ctx context.Context, server string) (mcplug.ServerInfo, error) {
	conn, err := r.acquire(ctx, server)
	if err != nil {
		return mcplug.ServerInfo{}, err
	}
	defer r.release(server, conn)
	return conn.info, nil
}

// Close shuts down every pooled transport. Individual close errors are
// logged; the first is returned.
func (r *Runtime) Close() error {
	r.mu.Lock()
	pool := r.pool
	r.pool = make(map[string]*conn)
	r.mu.Unlock()

	var first error
	for name, c := range pool {
		if err := c.transport.Close(); err != nil {
			r.logger.Warn("runtime: close transport", "server", name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// conn is one acquired transport plus the bookkeeping release needs.
type conn struct {
	transport mcplug.Transport
	info      mcplug.ServerInfo
	pooled    bool
}

// acquire returns a ready transport for server: the pooled one when present,
// otherwise a freshly built and initialized one. Keep-alive transports go
// through a singleflight group so concurrent first callers share one
// initialize; ephemeral callers each get their own transport.
func (r *Runtime) acquire(ctx context.Context, server string) (*conn, error) {
	sc, ok := r.config.Get(server)
	if !ok {
		return nil, mcplug.ErrServerNotFound(server, r.config.Names)
	}

	r.mu.Lock()
	if c, ok := r.pool[server]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	if effectiveLifecycle(server, sc) == mcplug.LifecycleKeepAlive {
		v, err, _ := r.connect.Do(server, func() (any, error) {
			// Re-check: a previous flight may have pooled it already.
			r.mu.Lock()
			if c, ok := r.pool[server]; ok {
				r.mu.Unlock()
				return c, nil
			}
			r.mu.Unlock()

			c, err := r.dial(ctx, server, sc)
			if err != nil {
				return nil, err
			}
			c.pooled = true
			r.mu.Lock()
			r.pool[server] = c
			r.mu.Unlock()
			r.logger.Debug("runtime: pooled transport", "server", server)
			return c, nil
		})
		if err != nil {
			return nil, err
		}
		return v.(*conn), nil
	}

	return r.dial(ctx, server, sc)
}

// release closes ephemeral transports after use. Pooled transports stay.
func (r *Runtime) release(server string, c *conn) {
	if c.pooled {
		return
	}
	if err := c.transport.Close(); err != nil {
		r.logger.Warn("runtime: close ephemeral transport", "server", server, "error", err)
	}
}

// dial builds and initializes a transport for server. Base URL wins over
// command when both are configured. A transport whose initialize fails is
// closed and never pooled.
func (r *Runtime) dial(ctx context.Context, server string, sc mcplug.ServerConfig) (*conn, error) {
	var (
		t   mcplug.Transport
		err error
	)
	switch {
	case sc.BaseURL != "":
		t, err = httpsse.New(server, sc,
			httpsse.WithLogger(r.logger),
			httpsse.WithAllowHTTP(r.allowHTTP),
		)
	case sc.Command != "":
		opts := []stdio.Option{stdio.WithLogger(r.logger)}
		if r.workDir != "" {
			opts = append(opts, stdio.WithWorkDir(r.workDir))
		}
		t, err = stdio.New(server, sc, opts...)
	default:
		return nil, &mcplug.Error{
			Kind:    mcplug.KindConfig,
			Path:    "<runtime>",
			Message: "server '" + server + "' has neither 'baseUrl' nor 'command' configured",
		}
	}
	if err != nil {
		return nil, err
	}

	if r.wrap != nil {
		t = r.wrap(server, t)
	}

	info, err := timedOp(r, ctx, server, "", listTimeout(), func(opCtx context.Context) (mcplug.ServerInfo, error) {
		return t.Initialize(opCtx)
	})
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	return &conn{transport: t, info: info}, nil
}

// timedOp runs op under a deadline and maps expiry to a Timeout error. A
// transport that timed out or desynced its framing is evicted from the pool
// so the next call builds a fresh one. Free function because Go methods
// cannot introduce type parameters.
func timedOp[T any](r *Runtime, ctx context.Context, server, tool string, limit time.Duration, op func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	opCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	result, err := op(opCtx)
	if err == nil {
		return result, nil
	}

	var zero T
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		r.evict(server)
		return zero, mcplug.ErrTimeout(server, tool, time.Since(start))
	}
	if e, ok := mcplug.AsError(err); ok && e.Kind == mcplug.KindProtocol {
		r.evict(server)
	}
	return zero, err
}
