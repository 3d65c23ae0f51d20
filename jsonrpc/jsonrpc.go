// Package jsonrpc implements the JSON-RPC 2.0 framing used by MCP transports:
// request and notification envelopes, per-transport id allocation, and
// inbound message classification. It carries no transport or policy logic.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
)

// Version is the fixed jsonrpc field value.
const Version = "2.0"

// Request is an outbound JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is an outbound JSON-RPC 2.0 notification (no id, no reply).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request envelope.
func NewRequest(id int64, method string, params any) Request {
	return Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// NewNotification builds a notification envelope.
func NewNotification(method string, params any) Notification {
	return Notification{JSONRPC: Version, Method: method, Params: params}
}

// Encode marshals an envelope to compact single-line JSON suitable for
// newline-delimited framing. Embedded newlines never occur because
// encoding/json escapes control characters inside strings.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("jsonrpc: encode: %w", err)
	}
	// json.Encoder appends a trailing newline; framing adds its own.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Message is any inbound JSON-RPC 2.0 message: a response (ID set, no
// method), or a server-originated request/notification (method set).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// Decode parses one inbound message.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode: %w", err)
	}
	return &m, nil
}

// IsResponse reports whether m answers an outstanding request.
func (m *Message) IsResponse() bool { return m.ID != nil && m.Method == "" }

// IsNotification reports whether m is a server-originated notification.
func (m *Message) IsNotification() bool { return m.ID == nil && m.Method != "" }

// ResponseError is the error member of a JSON-RPC 2.0 response.
type ResponseError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("JSON-RPC error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// IndicatesAuth reports whether the error's message or data signals that the
// server requires authentication (HTTP 401 semantics or an OAuth challenge).
func (e *ResponseError) IndicatesAuth() bool {
	for _, s := range []string{e.Message, string(e.Data)} {
		lower := strings.ToLower(s)
		if strings.Contains(lower, "unauthorized") ||
			strings.Contains(lower, "authentication") ||
			strings.Contains(lower, "auth_required") ||
			strings.Contains(lower, "401") {
			return true
		}
	}
	return false
}

// Counter allocates monotonically increasing request ids, one instance per
// transport. The zero value is ready to use; the first id is 1.
type Counter struct {
	n atomic.Int64
}

// Next returns the next id.
func (c *Counter) Next() int64 { return c.n.Add(1) }
