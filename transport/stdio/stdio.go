// Package stdio implements the MCP transport over a child process speaking
// newline-delimited JSON-RPC on its standard streams.
//
// A single background reader demultiplexes responses to waiters keyed by
// request id; requests are serialized onto the child's stdin by a write
// mutex. The child's stderr is drained concurrently into a bounded tail
// buffer that is surfaced when the child dies before the handshake finishes.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hydai/mcplug"
	"github.com/hydai/mcplug/jsonrpc"
)

const (
	// maxLine bounds one JSON-RPC message on the child's stdout.
	maxLine = 10 << 20
	// stderrTail bounds how much of the child's stderr is retained.
	stderrTail = 4 << 10
	// exitGrace is how long Close waits for the child to exit on its own
	// after stdin is closed before killing it.
	exitGrace = 2 * time.Second
)

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets a structured logger for framing events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithWorkDir overrides the child's working directory. It takes precedence
// over the directory of the config file that defined the server.
func WithWorkDir(dir string) Option {
	return func(t *Transport) { t.workDir = dir }
}

// Transport is an MCP connection to a spawned child process. Implements
// mcplug.Transport.
type Transport struct {
	server  string
	logger  *slog.Logger
	workDir string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	writeMu sync.Mutex
	ids     jsonrpc.Counter

	mu      sync.Mutex
	pending map[int64]chan waiterResult
	closed  bool

	readerDone chan struct{}

	initialized atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

var _ mcplug.Transport = (*Transport)(nil)

type waiterResult struct {
	msg *jsonrpc.Message
	err error
}

// New spawns the configured command and starts the background reader. The
// child inherits the caller's environment merged with sc.Env (sc.Env wins);
// its working directory is the WithWorkDir override, else the directory of
// the config file that defined the server.
func New(server string, sc mcplug.ServerConfig, opts ...Option) (*Transport, error) {
	t := &Transport{
		server:  server,
		logger:  slog.New(discardHandler{}),
		pending: make(map[int64]chan waiterResult),
		stderr:  &tailBuffer{max: stderrTail},
	}
	for _, o := range opts {
		o(t)
	}

	cmd := exec.Command(sc.Command, sc.Args...)
	cmd.Env = mergeEnv(os.Environ(), sc.Env)
	switch {
	case t.workDir != "":
		cmd.Dir = t.workDir
	case sc.Dir != "":
		cmd.Dir = sc.Dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, mcplug.ErrConnectionFailed(server, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, mcplug.ErrConnectionFailed(server, err)
	}
	cmd.Stderr = t.stderr

	if err := cmd.Start(); err != nil {
		return nil, mcplug.ErrConnectionFailed(server, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.start(stdout)
	return t, nil
}

// newPiped wires a transport over raw pipes instead of a child process.
// Used by tests to script the server side in-process.
func newPiped(server string, stdin io.WriteCloser, stdout io.Reader, opts ...Option) *Transport {
	t := &Transport{
		server:  server,
		logger:  slog.New(discardHandler{}),
		pending: make(map[int64]chan waiterResult),
		stderr:  &tailBuffer{max: stderrTail},
		stdin:   stdin,
	}
	for _, o := range opts {
		o(t)
	}
	t.start(stdout)
	return t
}

// start launches the background reader.
func (t *Transport) start(stdout io.Reader) {
	t.readerDone = make(chan struct{})
	go t.readLoop(stdout)
}

// readLoop parses each stdout line and routes responses to waiters. It runs
// until the stream ends, then fails every remaining waiter.
func (t *Transport) readLoop(stdout io.Reader) {
	defer close(t.readerDone)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, err := jsonrpc.Decode(line)
		if err != nil {
			// A malformed line fails whoever is currently waiting; with
			// nobody waiting it is logged and skipped.
			t.logger.Warn("stdio: malformed line", "server", t.server, "error", err)
			t.failPending(mcplug.ErrProtocol(fmt.Sprintf("malformed line from server '%s': %v", t.server, err)))
			continue
		}

		switch {
		case msg.IsResponse():
			t.dispatch(msg)
		case msg.IsNotification():
			t.logger.Debug("stdio: ignoring notification", "server", t.server, "method", msg.Method)
		default:
			t.logger.Debug("stdio: ignoring server request", "server", t.server, "method", msg.Method)
		}
	}

	err := scanner.Err()
	if err != nil {
		t.logger.Warn("stdio: read failed", "server", t.server, "error", err)
	}
	t.failPending(&mcplug.Error{
		Kind:    mcplug.KindTransport,
		Server:  t.server,
		Message: fmt.Sprintf("server '%s' closed the connection", t.server),
		Err:     err,
	})
}

// dispatch hands a response to its waiter. A response nobody waits for (a
// cancelled caller, or an id we never issued) is dropped.
func (t *Transport) dispatch(msg *jsonrpc.Message) {
	t.mu.Lock()
	ch, ok := t.pending[*msg.ID]
	if ok {
		delete(t.pending, *msg.ID)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("stdio: dropping unsolicited response", "server", t.server, "id", *msg.ID)
		return
	}
	ch <- waiterResult{msg: msg}
}

// failPending delivers err to every outstanding waiter.
func (t *Transport) failPending(err error) {
	t.mu.Lock()
	waiters := t.pending
	t.pending = make(map[int64]chan waiterResult)
	t.mu.Unlock()

	for _, ch := range waiters {
		ch <- waiterResult{err: err}
	}
}

// send writes one request and waits for its response. Cancellation
// deregisters the waiter; a late reply is discarded by dispatch.
func (t *Transport) send(ctx context.Context, method string, params any) (*jsonrpc.Message, error) {
	id := t.ids.Next()
	ch := make(chan waiterResult, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, mcplug.ErrTransport("transport closed", nil)
	}
	t.pending[id] = ch
	t.mu.Unlock()

	data, err := jsonrpc.Encode(jsonrpc.NewRequest(id, method, params))
	if err != nil {
		t.deregister(id)
		return nil, mcplug.ErrProtocol(err.Error())
	}

	if err := t.write(data); err != nil {
		t.deregister(id)
		return nil, mcplug.ErrTransport("write request", err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.msg, nil
	case <-ctx.Done():
		t.deregister(id)
		return nil, ctx.Err()
	}
}

// notify writes one notification; no response is expected.
func (t *Transport) notify(method string, params any) error {
	data, err := jsonrpc.Encode(jsonrpc.NewNotification(method, params))
	if err != nil {
		return mcplug.ErrProtocol(err.Error())
	}
	if err := t.write(data); err != nil {
		return mcplug.ErrTransport("write notification", err)
	}
	return nil
}

// write appends the newline frame and serializes writers onto stdin.
func (t *Transport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (t *Transport) deregister(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// Initialize performs the MCP handshake. A child that dies before the
// handshake completes surfaces its stderr tail in the returned error.
func (t *Transport) Initialize(ctx context.Context) (mcplug.ServerInfo, error) {
	if !t.initialized.CompareAndSwap(false, true) {
		return mcplug.ServerInfo{}, mcplug.ErrTransport("initialize called twice", nil)
	}

	msg, err := t.send(ctx, "initialize", mcplug.InitializeParams())
	if err != nil {
		return mcplug.ServerInfo{}, t.connectError(err)
	}
	result, err := t.unwrap(msg)
	if err != nil {
		return mcplug.ServerInfo{}, err
	}

	info, err := mcplug.ParseInitializeResult(result, t.server)
	if err != nil {
		return mcplug.ServerInfo{}, err
	}

	if err := t.notify("notifications/initialized", nil); err != nil {
		return mcplug.ServerInfo{}, t.connectError(err)
	}

	t.logger.Debug("stdio: initialized", "server", t.server, "name", info.Name, "version", info.Version)
	return info, nil
}

// connectError converts a transport-level handshake failure into a
// ConnectionFailed carrying the captured stderr tail.
func (t *Transport) connectError(err error) error {
	if e, ok := mcplug.AsError(err); !ok || e.Kind != mcplug.KindTransport {
		return err
	}
	msg := err.Error()
	if tail := t.stderr.String(); tail != "" {
		msg = fmt.Sprintf("%s; stderr: %s", msg, tail)
	}
	return mcplug.ErrConnectionFailedMsg(t.server, msg)
}

// ListTools fetches the tool catalog. Requires a prior Initialize.
func (t *Transport) ListTools(ctx context.Context) ([]mcplug.ToolDefinition, error) {
	if !t.initialized.Load() {
		return nil, mcplug.ErrTransport("list tools before initialize", nil)
	}
	msg, err := t.send(ctx, "tools/list", struct{}{})
	if err != nil {
		return nil, err
	}
	result, err := t.unwrap(msg)
	if err != nil {
		return nil, err
	}
	var wire struct {
		Tools []mcplug.ToolDefinition `json:"tools"`
	}
	if err := json.Unmarshal(result, &wire); err != nil {
		return nil, mcplug.ErrProtocol("decode tools/list result: " + err.Error())
	}
	return wire.Tools, nil
}

// CallTool invokes one tool. Requires a prior Initialize.
func (t *Transport) CallTool(ctx context.Context, name string, args any) (*mcplug.CallResult, error) {
	if !t.initialized.Load() {
		return nil, mcplug.ErrTransport("call tool before initialize", nil)
	}
	params := map[string]any{"name": name, "arguments": args}
	msg, err := t.send(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	result, err := t.unwrap(msg)
	if err != nil {
		return nil, err
	}
	return mcplug.DecodeCallResult(result)
}

// unwrap extracts the result from a response, mapping JSON-RPC errors to the
// taxonomy. Authentication-indicating errors become AuthRequired.
func (t *Transport) unwrap(msg *jsonrpc.Message) (json.RawMessage, error) {
	if msg.Error != nil {
		if msg.Error.IndicatesAuth() {
			return nil, mcplug.ErrAuthRequired(t.server)
		}
		return nil, mcplug.ErrProtocol(msg.Error.Error())
	}
	if len(msg.Result) == 0 {
		return nil, mcplug.ErrProtocol("response missing both result and error")
	}
	return msg.Result, nil
}

// Close shuts the transport down: it closes the child's stdin, waits briefly
// for a natural exit, then kills. Pending callers receive a transport error.
// Idempotent.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		t.closeErr = t.stdin.Close()

		if t.cmd == nil {
			return
		}

		done := make(chan error, 1)
		go func() { done <- t.cmd.Wait() }()

		select {
		case <-done:
		case <-time.After(exitGrace):
			t.logger.Debug("stdio: killing unresponsive child", "server", t.server)
			_ = t.cmd.Process.Kill()
			<-done
		}

		t.failPending(mcplug.ErrTransport("transport closed", nil))
	})
	return t.closeErr
}

// mergeEnv overlays server env entries onto the inherited environment.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, override := extra[key]; override {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}

// tailBuffer keeps the last max bytes written to it. Safe for the single
// concurrent writer the exec package provides.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf))
}

// discardHandler drops all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
