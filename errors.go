package mcplug

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind identifies one member of the closed error taxonomy.
type ErrorKind int

const (
	// KindServerNotFound means the requested server is not in the configuration.
	KindServerNotFound ErrorKind = iota
	// KindToolNotFound means the server does not expose the requested tool.
	KindToolNotFound
	// KindConnectionFailed means the transport could not reach the server.
	KindConnectionFailed
	// KindTimeout means an operation exceeded its deadline.
	KindTimeout
	// KindAuthRequired means the server demands authentication.
	KindAuthRequired
	// KindConfig means a configuration source could not be loaded or expanded.
	KindConfig
	// KindTransport means the transport failed below the protocol layer.
	KindTransport
	// KindProtocol means a JSON-RPC message could not be decoded or was an error.
	KindProtocol
	// KindOAuth means the OAuth flow or token cache failed.
	KindOAuth
	// KindIO means an underlying I/O operation failed.
	KindIO
)

// Error is the single error type produced by this module. The Kind is closed;
// consumers switch on it or on Code() without case analysis on Go types.
type Error struct {
	Kind     ErrorKind
	Server   string
	Tool     string
	Path     string
	Duration time.Duration
	Message  string
	Err      error
}

// Code returns the stable string code for structured output.
func (e *Error) Code() string {
	switch e.Kind {
	case KindServerNotFound, KindToolNotFound:
		return "not_found"
	case KindConnectionFailed:
		return "connection_refused"
	case KindTimeout:
		return "timeout"
	case KindAuthRequired:
		return "auth_required"
	case KindConfig:
		return "config_error"
	case KindTransport:
		return "transport_error"
	case KindProtocol:
		return "parse_error"
	case KindOAuth:
		return "oauth_error"
	case KindIO:
		return "io_error"
	default:
		return "unknown"
	}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServerNotFound:
		if e.Message != "" {
			return fmt.Sprintf("server '%s' not found. Available: %s", e.Server, e.Message)
		}
		return fmt.Sprintf("server '%s' not found. Available: (none loaded)", e.Server)
	case KindToolNotFound:
		if e.Message != "" {
			return fmt.Sprintf("tool '%s' not found on %s. %s", e.Tool, e.Server, e.Message)
		}
		return fmt.Sprintf("tool '%s' not found on %s", e.Tool, e.Server)
	case KindConnectionFailed:
		return fmt.Sprintf("cannot connect to %s: %s", e.Server, e.reason())
	case KindTimeout:
		secs := e.Duration.Seconds()
		if e.Tool != "" {
			return fmt.Sprintf("timeout after %.0fs calling %s.%s", secs, e.Server, e.Tool)
		}
		return fmt.Sprintf("timeout after %.0fs calling %s", secs, e.Server)
	case KindAuthRequired:
		return fmt.Sprintf("server '%s' requires authentication. Run: mcplug auth %s", e.Server, e.Server)
	case KindConfig:
		return fmt.Sprintf("error in config %s: %s", e.Path, e.reason())
	case KindTransport:
		return "transport error: " + e.reason()
	case KindProtocol:
		return "protocol error: " + e.reason()
	case KindOAuth:
		return "oauth error: " + e.reason()
	case KindIO:
		return "i/o error: " + e.reason()
	default:
		return e.reason()
	}
}

func (e *Error) reason() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown"
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// JSON projects the error as {"error":{server,tool,message,code}} for
// structured-output consumers.
func (e *Error) JSON() json.RawMessage {
	obj := map[string]string{
		"message": e.Error(),
		"code":    e.Code(),
	}
	if e.Server != "" {
		obj["server"] = e.Server
	}
	if e.Tool != "" {
		obj["tool"] = e.Tool
	}
	data, _ := json.Marshal(map[string]any{"error": obj})
	return data
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// --- constructors ---

// ErrServerNotFound reports an unknown server name, listing the known ones.
func ErrServerNotFound(server string, known []string) *Error {
	msg := ""
	if len(known) > 0 {
		msg = strings.Join(known, ", ")
	}
	return &Error{Kind: KindServerNotFound, Server: server, Message: msg}
}

// ErrToolNotFound reports an unknown tool, optionally carrying a suggestion.
func ErrToolNotFound(server, tool, suggestion string) *Error {
	msg := ""
	if suggestion != "" {
		msg = fmt.Sprintf("Did you mean '%s'?", suggestion)
	}
	return &Error{Kind: KindToolNotFound, Server: server, Tool: tool, Message: msg}
}

// ErrConnectionFailed reports a failure to reach a server.
func ErrConnectionFailed(server string, err error) *Error {
	return &Error{Kind: KindConnectionFailed, Server: server, Err: err}
}

// ErrConnectionFailedMsg is ErrConnectionFailed with a literal message.
func ErrConnectionFailedMsg(server, msg string) *Error {
	return &Error{Kind: KindConnectionFailed, Server: server, Message: msg}
}

// ErrTimeout reports a deadline expiry. tool may be empty for list operations.
func ErrTimeout(server, tool string, elapsed time.Duration) *Error {
	return &Error{Kind: KindTimeout, Server: server, Tool: tool, Duration: elapsed}
}

// ErrAuthRequired reports that a server demands authentication.
func ErrAuthRequired(server string) *Error {
	return &Error{Kind: KindAuthRequired, Server: server}
}

// ErrConfig reports a problem in a configuration source.
func ErrConfig(path, detail string) *Error {
	return &Error{Kind: KindConfig, Path: path, Message: detail}
}

// ErrTransport reports a failure below the protocol layer.
func ErrTransport(msg string, err error) *Error {
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}

// ErrProtocol reports an undecodable or error-carrying JSON-RPC message.
func ErrProtocol(msg string) *Error {
	return &Error{Kind: KindProtocol, Message: msg}
}

// ErrOAuth reports an OAuth flow or token cache failure.
func ErrOAuth(msg string, err error) *Error {
	return &Error{Kind: KindOAuth, Message: msg, Err: err}
}

// ErrIO wraps an I/O failure.
func ErrIO(err error) *Error {
	return &Error{Kind: KindIO, Err: err}
}
