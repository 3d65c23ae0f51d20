// Package httpsse implements the MCP transport over HTTP. Every request is a
// POST carrying one JSON-RPC envelope; the server answers either with a
// direct JSON body or with a Server-Sent Events stream whose events carry
// the JSON-RPC reply. Bearer tokens from the OAuth cache are attached when
// present.
package httpsse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/hydai/mcplug"
	"github.com/hydai/mcplug/jsonrpc"
	"github.com/hydai/mcplug/oauth"
)

// sessionHeader carries the server-assigned session across requests.
const sessionHeader = "Mcp-Session-Id"

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithAllowHTTP permits cleartext http:// base URLs. Off by default.
func WithAllowHTTP(allow bool) Option {
	return func(t *Transport) { t.allowHTTP = allow }
}

// WithHTTPClient overrides the HTTP client, e.g. for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// Transport is an MCP connection over HTTP+SSE. Implements mcplug.Transport.
type Transport struct {
	server    string
	baseURL   string
	headers   map[string]string
	bearer    string
	allowHTTP bool
	logger    *slog.Logger
	client    *http.Client

	ids jsonrpc.Counter

	sessionMu sync.Mutex
	sessionID string

	initialized atomic.Bool
}

var _ mcplug.Transport = (*Transport)(nil)

// New validates the base URL and builds a transport. Cleartext http:// is
// rejected unless WithAllowHTTP(true) is given; this check happens here, not
// at first use. A cached OAuth token for the server, when present, is
// attached as a bearer credential on every request.
func New(server string, sc mcplug.ServerConfig, opts ...Option) (*Transport, error) {
	t := &Transport{
		server:  server,
		baseURL: sc.BaseURL,
		headers: sc.Headers,
		logger:  slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(t)
	}
	if t.client == nil {
		t.client = &http.Client{}
	}

	u, err := url.Parse(sc.BaseURL)
	if err != nil {
		return nil, mcplug.ErrConnectionFailedMsg(server, fmt.Sprintf("invalid URL '%s': %v", sc.BaseURL, err))
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !t.allowHTTP {
			return nil, mcplug.ErrConnectionFailedMsg(server,
				fmt.Sprintf("cleartext HTTP is not allowed for '%s'; use https:// or pass --allow-http", sc.BaseURL))
		}
	default:
		return nil, mcplug.ErrConnectionFailedMsg(server,
			fmt.Sprintf("unsupported URL scheme '%s' in '%s'", u.Scheme, sc.BaseURL))
	}

	if tok := oauth.LoadToken(server); tok != nil && tok.AccessToken != "" {
		t.bearer = tok.AccessToken
	}

	return t, nil
}

// Initialize performs the MCP handshake.
func (t *Transport) Initialize(ctx context.Context) (mcplug.ServerInfo, error) {
	if !t.initialized.CompareAndSwap(false, true) {
		return mcplug.ServerInfo{}, mcplug.ErrTransport("initialize called twice", nil)
	}

	result, err := t.send(ctx, "initialize", mcplug.InitializeParams())
	if err != nil {
		return mcplug.ServerInfo{}, err
	}
	info, err := mcplug.ParseInitializeResult(result, t.server)
	if err != nil {
		return mcplug.ServerInfo{}, err
	}

	if err := t.notify(ctx, "notifications/initialized"); err != nil {
		return mcplug.ServerInfo{}, err
	}

	t.logger.Debug("httpsse: initialized", "server", t.server, "name", info.Name, "version", info.Version)
	return info, nil
}

// ListTools fetches the tool catalog. Requires a prior Initialize.
func (t *Transport) ListTools(ctx context.Context) ([]mcplug.ToolDefinition, error) {
	if !t.initialized.Load() {
		return nil, mcplug.ErrTransport("list tools before initialize", nil)
	}
	result, err := t.send(ctx, "tools/list", struct{}{})
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
	result, err := t.send(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	return mcplug.DecodeCallResult(result)
}

// Close drops the HTTP client; no shutdown message is sent. Idempotent.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// send POSTs one request envelope and returns the matched result.
func (t *Transport) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.ids.Next()
	resp, err := t.post(ctx, jsonrpc.NewRequest(id, method, params))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, mcplug.ErrAuthRequired(t.server)
	}

	t.captureSession(resp)

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch contentType {
	case "application/json":
		return t.readDirect(resp)
	case "text/event-stream":
		return t.readSSE(resp, id)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, mcplug.ErrTransport(
			fmt.Sprintf("HTTP %d with unexpected content type %q: %s", resp.StatusCode, contentType, bytes.TrimSpace(body)), nil)
	}
}

// notify POSTs one notification envelope; any body is drained and dropped.
func (t *Transport) notify(ctx context.Context, method string) error {
	resp, err := t.post(ctx, jsonrpc.NewNotification(method, nil))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return mcplug.ErrAuthRequired(t.server)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return mcplug.ErrTransport(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body)), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// post builds and issues one POST with the static headers, bearer token, and
// session id attached.
func (t *Transport) post(ctx context.Context, envelope any) (*http.Response, error) {
	data, err := jsonrpc.Encode(envelope)
	if err != nil {
		return nil, mcplug.ErrProtocol(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, mcplug.ErrConnectionFailed(t.server, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if t.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+t.bearer)
	}
	t.sessionMu.Lock()
	if t.sessionID != "" {
		req.Header.Set(sessionHeader, t.sessionID)
	}
	t.sessionMu.Unlock()

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, mcplug.ErrConnectionFailed(t.server, err)
	}
	return resp, nil
}

func (t *Transport) captureSession(resp *http.Response) {
	sid := resp.Header.Get(sessionHeader)
	if sid == "" {
		return
	}
	t.sessionMu.Lock()
	t.sessionID = sid
	t.sessionMu.Unlock()
}

// readDirect handles an application/json response body.
func (t *Transport) readDirect(resp *http.Response) (json.RawMessage, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mcplug.ErrTransport("read response body", err)
	}
	if !utf8.Valid(body) {
		return nil, mcplug.ErrTransport("response body is not valid UTF-8", nil)
	}

	msg, err := jsonrpc.Decode(body)
	if err != nil {
		if resp.StatusCode >= 400 {
			return nil, mcplug.ErrTransport(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body)), nil)
		}
		return nil, mcplug.ErrProtocol(fmt.Sprintf("parse JSON-RPC response from %s: %v", t.server, err))
	}
	return t.unwrap(msg)
}

// readSSE scans a text/event-stream until an event whose data decodes to a
// JSON-RPC response with the expected id. Keepalives and unrelated events
// are ignored. The stream is closed by the deferred Body.Close in send.
func (t *Transport) readSSE(resp *http.Response, id int64) (json.RawMessage, error) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 10<<20)

	var data strings.Builder
	flush := func() (json.RawMessage, bool, error) {
		if data.Len() == 0 {
			return nil, false, nil
		}
		payload := data.String()
		data.Reset()
		if !utf8.ValidString(payload) {
			return nil, false, mcplug.ErrTransport("event data is not valid UTF-8", nil)
		}
		msg, err := jsonrpc.Decode([]byte(payload))
		if err != nil || !msg.IsResponse() || *msg.ID != id {
			// Keepalive or unrelated event.
			return nil, false, nil
		}
		result, err := t.unwrap(msg)
		return result, true, err
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			result, done, err := flush()
			if done || err != nil {
				return result, err
			}
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(value, " "))
		}
		// Other SSE fields (event:, id:, retry:, comments) are ignored.
	}
	if err := scanner.Err(); err != nil {
		return nil, mcplug.ErrTransport("read event stream", err)
	}
	// Allow a final event without a trailing blank line.
	if result, done, err := flush(); done || err != nil {
		return result, err
	}
	return nil, mcplug.ErrProtocol(fmt.Sprintf("event stream from %s ended without a response for id %d", t.server, id))
}

// unwrap extracts the result, mapping JSON-RPC errors to the taxonomy.
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

// discardHandler drops all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
