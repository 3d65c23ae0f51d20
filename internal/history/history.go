// Package history records tool invocations in a local SQLite file so the CLI
// can list recent calls. Pure-Go driver, zero CGO required.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hydai/mcplug"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a Log.
type Option func(*Log)

// WithLogger sets a structured logger. When set, Open and Record each emit a
// debug record.
func WithLogger(l *slog.Logger) Option {
	return func(h *Log) { h.logger = l }
}

// Log is the invocation history backed by a local SQLite file.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Entry is one recorded invocation.
type Entry struct {
	ID         string
	Server     string
	Tool       string
	Args       json.RawMessage
	Status     string
	Error      string
	DurationMS int64
	CreatedAt  time.Time
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Open creates a Log at dbPath. It opens a single shared connection pool with
// SetMaxOpenConns(1) so all goroutines serialize through one connection,
// eliminating SQLITE_BUSY errors from concurrent writers.
func Open(dbPath string, opts ...Option) *Log {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("history: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	h := &Log{db: db, logger: nopLogger}
	for _, o := range opts {
		o(h)
	}
	h.logger.Debug("history: opened", "path", dbPath)
	return h
}

// Init creates the invocations table.
func (h *Log) Init(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS invocations (
		id TEXT PRIMARY KEY,
		server TEXT NOT NULL,
		tool TEXT NOT NULL,
		args TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("history: init: %w", err)
	}
	return nil
}

// Record appends one invocation. Args may be nil; callErr may be nil for a
// successful call.
func (h *Log) Record(ctx context.Context, server, tool string, args any, callErr error, elapsed time.Duration) error {
	argsJSON := []byte("{}")
	if args != nil {
		if data, err := json.Marshal(args); err == nil {
			argsJSON = data
		}
	}

	status := "ok"
	errMsg := ""
	if callErr != nil {
		errMsg = callErr.Error()
		status = "error"
		if e, ok := mcplug.AsError(callErr); ok {
			status = e.Code()
		}
	}

	start := time.Now()
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO invocations (id, server, tool, args, status, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mcplug.NewID(), server, tool, string(argsJSON), status, errMsg,
		elapsed.Milliseconds(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	h.logger.Debug("history: recorded", "server", server, "tool", tool, "status", status,
		"took", time.Since(start))
	return nil
}

// Recent returns the newest limit entries, newest first.
func (h *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, server, tool, args, status, error, duration_ms, created_at
		 FROM invocations ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var args string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Server, &e.Tool, &args, &e.Status, &e.Error, &e.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Args = json.RawMessage(args)
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (h *Log) Close() error {
	return h.db.Close()
}
