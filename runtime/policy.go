package runtime

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hydai/mcplug"
)

// effectiveLifecycle decides keep-alive vs ephemeral for one call. The
// environment overrides win over the configured tag and are read per call,
// not cached: MCPLUG_DISABLE_KEEPALIVE forces ephemeral, MCPLUG_KEEPALIVE
// forces keep-alive, both as comma-separated server names or '*'. Unset
// falls back to the server's configured lifecycle, then to ephemeral.
func effectiveLifecycle(server string, sc mcplug.ServerConfig) mcplug.Lifecycle {
	if envListContains(os.Getenv("MCPLUG_DISABLE_KEEPALIVE"), server) {
		return mcplug.LifecycleEphemeral
	}
	if envListContains(os.Getenv("MCPLUG_KEEPALIVE"), server) {
		return mcplug.LifecycleKeepAlive
	}
	if sc.Lifecycle != "" {
		return sc.Lifecycle
	}
	return mcplug.LifecycleEphemeral
}

// envListContains reports whether a comma-separated list names server or is
// the '*' wildcard.
func envListContains(list, server string) bool {
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "*" || entry == server {
			return true
		}
	}
	return false
}

// listTimeout returns the deadline for initialize and tools/list, default
// 30s, overridable in milliseconds via MCPLUG_LIST_TIMEOUT.
func listTimeout() time.Duration {
	return envTimeout("MCPLUG_LIST_TIMEOUT")
}

// callTimeout returns the deadline for tools/call, default 30s, overridable
// in milliseconds via MCPLUG_CALL_TIMEOUT.
func callTimeout() time.Duration {
	return envTimeout("MCPLUG_CALL_TIMEOUT")
}

func envTimeout(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return defaultTimeout
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return defaultTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// evict closes and drops the pooled transport for server, if any. Called
// when a timeout or protocol error may have desynchronized its framing.
func (r *Runtime) evict(server string) {
	r.mu.Lock()
	c, ok := r.pool[server]
	if ok {
		delete(r.pool, server)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("runtime: evicted transport", "server", server)
		if err := c.transport.Close(); err != nil {
			r.logger.Warn("runtime: close evicted transport", "server", server, "error", err)
		}
	}
}

// checkToolNotFound refines a protocol-level call failure: when the server's
// catalog shows the tool does not exist, the error becomes ToolNotFound, with
// a suggestion when exactly one known name is a near miss. Any other failure
// passes through unchanged, as does a failure to fetch the catalog. The
// catalog is fetched through a fresh acquire because the failing transport
// has already been evicted.
func (r *Runtime) checkToolNotFound(ctx context.Context, server, tool string, err error) error {
	e, ok := mcplug.AsError(err)
	if !ok || e.Kind != mcplug.KindProtocol {
		return err
	}

	tools, listErr := r.ListTools(ctx, server)
	if listErr != nil {
		return err
	}

	known := make([]string, 0, len(tools))
	for _, t := range tools {
		if t.Name == tool {
			return err
		}
		known = append(known, t.Name)
	}
	return mcplug.ErrToolNotFound(server, tool, mcplug.SuggestTool(tool, known))
}

// discardHandler drops all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
