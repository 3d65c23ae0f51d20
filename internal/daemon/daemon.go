// Package daemon keeps a long-lived Runtime behind a unix socket so repeated
// CLI invocations share keep-alive transports instead of respawning servers.
// The wire format is one JSON request per line, one JSON response per line.
// The daemon watches the config files that produced its catalog and rebuilds
// the Runtime when they change.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hydai/mcplug"
	"github.com/hydai/mcplug/config"
	"github.com/hydai/mcplug/runtime"
)

// request is one line from a client.
type request struct {
	Op     string          `json:"op"` // ping | list | tools | call
	Server string          `json:"server,omitempty"`
	Tool   string          `json:"tool,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// response is one line back. Exactly one of Result and Error is set when OK
// is decided.
type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// WithRuntimeOptions forwards options to every Runtime the daemon builds,
// including rebuilds after a config change.
func WithRuntimeOptions(opts ...runtime.Option) Option {
	return func(d *Daemon) { d.rtOpts = opts }
}

// Daemon serves list and call requests over a unix socket through one shared
// Runtime.
type Daemon struct {
	logger     *slog.Logger
	rtOpts     []runtime.Option
	configPath string

	mu sync.Mutex
	rt *runtime.Runtime
}

// New builds a Daemon over the layered configuration. configPath is the
// explicit config file, empty for the default discovery order.
func New(configPath string, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		logger:     slog.New(discardHandler{}),
		configPath: configPath,
	}
	for _, o := range opts {
		o(d)
	}
	rt, err := d.buildRuntime()
	if err != nil {
		return nil, err
	}
	d.rt = rt
	return d, nil
}

func (d *Daemon) buildRuntime() (*runtime.Runtime, error) {
	cfg, err := config.Load(config.Options{Path: d.configPath, Logger: d.logger})
	if err != nil {
		return nil, err
	}
	return runtime.New(cfg, d.rtOpts...), nil
}

// Serve listens on the daemon socket until ctx is cancelled. It writes the
// pid file, watches the config sources for changes, and removes its state on
// exit.
func (d *Daemon) Serve(ctx context.Context) error {
	if err := writePID(); err != nil {
		return err
	}
	defer removeState()

	_ = os.Remove(SocketPath())
	listener, err := net.Listen("unix", SocketPath())
	if err != nil {
		return err
	}
	defer listener.Close()

	watchDone := d.watchConfig(ctx)
	defer func() { <-watchDone }()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	d.logger.Info("daemon: listening", "socket", SocketPath())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			d.logger.Warn("daemon: accept", "error", err)
			continue
		}
		go d.handle(ctx, conn)
	}

	d.mu.Lock()
	rt := d.rt
	d.mu.Unlock()
	return rt.Close()
}

// watchConfig rebuilds the Runtime when any discovered config file changes.
// Editors replace files on save, so Create events count as changes too.
func (d *Daemon) watchConfig(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("daemon: config watch unavailable", "error", err)
		close(done)
		return done
	}
	for _, path := range config.Discover(d.configPath) {
		if err := watcher.Add(path); err != nil {
			d.logger.Debug("daemon: cannot watch", "path", path, "error", err)
		}
	}

	go func() {
		defer close(done)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				d.logger.Info("daemon: config changed, rebuilding runtime", "path", event.Name)
				d.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn("daemon: config watch", "error", err)
			}
		}
	}()
	return done
}

// reload swaps in a fresh Runtime and closes the old one. A failed reload
// keeps the current Runtime serving.
func (d *Daemon) reload() {
	rt, err := d.buildRuntime()
	if err != nil {
		d.logger.Warn("daemon: reload failed, keeping current config", "error", err)
		return
	}
	d.mu.Lock()
	old := d.rt
	d.rt = rt
	d.mu.Unlock()
	if err := old.Close(); err != nil {
		d.logger.Warn("daemon: close replaced runtime", "error", err)
	}
}

func (d *Daemon) current() *runtime.Runtime {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rt
}

// handle serves one client connection until it disconnects.
func (d *Daemon) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64<<10), 10<<20)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(errorResponse(mcplug.ErrProtocol("malformed daemon request: " + err.Error())))
			continue
		}
		_ = enc.Encode(d.dispatch(ctx, req))
	}
}

func (d *Daemon) dispatch(ctx context.Context, req request) response {
	rt := d.current()

	switch req.Op {
	case "ping":
		return okResponse(json.RawMessage(`"pong"`))
	case "list":
		names := rt.ServerNames()
		data, _ := json.Marshal(names)
		return okResponse(data)
	case "tools":
		tools, err := rt.ListTools(ctx, req.Server)
		if err != nil {
			return errorResponse(err)
		}
		data, _ := json.Marshal(tools)
		return okResponse(data)
	case "call":
		var args any
		if len(req.Args) > 0 {
			if err := json.Unmarshal(req.Args, &args); err != nil {
				return errorResponse(mcplug.ErrProtocol("malformed call arguments: " + err.Error()))
			}
		}
		result, err := rt.CallTool(ctx, req.Server, req.Tool, args)
		if err != nil {
			return errorResponse(err)
		}
		return okResponse(result.Raw)
	default:
		return errorResponse(mcplug.ErrProtocol("unknown daemon op '" + req.Op + "'"))
	}
}

func okResponse(result json.RawMessage) response {
	return response{OK: true, Result: result}
}

func errorResponse(err error) response {
	if e, ok := mcplug.AsError(err); ok {
		return response{Error: e.JSON()}
	}
	data, _ := json.Marshal(map[string]any{"error": map[string]string{"message": err.Error(), "code": "unknown"}})
	return response{Error: data}
}

// Stop terminates a running daemon by pid. Reports whether one was running.
func Stop() (bool, error) {
	pid := ReadPID()
	if pid == 0 {
		return false, nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		removeState()
		return false, nil
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		// Stale pid file from a crashed daemon.
		removeState()
		return false, nil
	}
	return true, nil
}

// discardHandler drops all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
