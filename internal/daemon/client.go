package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client talks to a running daemon over its unix socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	enc     *json.Encoder
}

// Dial connects to the daemon socket.
func Dial() (*Client, error) {
	conn, err := net.DialTimeout("unix", SocketPath(), 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("daemon: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64<<10), 10<<20)
	return &Client{conn: conn, scanner: scanner, enc: json.NewEncoder(conn)}, nil
}

// Close drops the connection.
func (c *Client) Close() error { return c.conn.Close() }

// roundTrip sends one request and reads one response line.
func (c *Client) roundTrip(req request) (response, error) {
	if err := c.enc.Encode(req); err != nil {
		return response{}, fmt.Errorf("daemon: send: %w", err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return response{}, fmt.Errorf("daemon: read: %w", err)
		}
		return response{}, errors.New("daemon: connection closed")
	}
	var resp response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return response{}, fmt.Errorf("daemon: malformed response: %w", err)
	}
	return resp, nil
}

// Ping checks liveness.
func (c *Client) Ping() error {
	resp, err := c.roundTrip(request{Op: "ping"})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("daemon: ping failed: %s", resp.Error)
	}
	return nil
}

// Servers returns the daemon's configured server names.
func (c *Client) Servers() ([]string, error) {
	resp, err := c.roundTrip(request{Op: "list"})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("daemon: %s", resp.Error)
	}
	var names []string
	if err := json.Unmarshal(resp.Result, &names); err != nil {
		return nil, fmt.Errorf("daemon: malformed server list: %w", err)
	}
	return names, nil
}

// Call invokes a tool through the daemon's shared Runtime. On success it
// returns the raw JSON-RPC result envelope; on a tool failure it returns the
// daemon's structured error payload as the error message.
func (c *Client) Call(server, tool string, args any) (json.RawMessage, error) {
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("daemon: encode arguments: %w", err)
		}
		raw = data
	}
	resp, err := c.roundTrip(request{Op: "call", Server: server, Tool: tool, Args: raw})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp.Result, nil
}

// WaitReady polls the daemon socket with exponential backoff until a ping
// succeeds or the deadline passes. Used after spawning the daemon process.
func WaitReady(ctx context.Context, limit time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = limit

	return backoff.Retry(func() error {
		c, err := Dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Ping()
	}, backoff.WithContext(policy, ctx))
}
