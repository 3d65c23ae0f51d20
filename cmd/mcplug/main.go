// mcplug is the command-line front end: it lists configured MCP servers,
// enumerates their tools, and invokes tools with arguments given in any of
// the supported surface forms.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hydai/mcplug"
	"github.com/hydai/mcplug/config"
	"github.com/hydai/mcplug/internal/settings"
	"github.com/hydai/mcplug/observer"
	"github.com/hydai/mcplug/runtime"
)

var rootCmd = &cobra.Command{
	Use:   "mcplug",
	Short: "mcplug - Client toolkit for the Model Context Protocol",
	Long:  `Discovers MCP servers from layered configuration, connects over stdio or HTTP+SSE, and invokes their tools from the command line.`,
}

var (
	flagConfig    string
	flagCwd       string
	flagAllowHTTP bool
	flagTimeout   int
	flagVerbose   bool
)

func main() {
	// A project .env participates in ${VAR} expansion without polluting the
	// parent shell.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "explicit config file path")
	rootCmd.PersistentFlags().StringVar(&flagCwd, "cwd", "", "working directory for stdio servers")
	rootCmd.PersistentFlags().BoolVar(&flagAllowHTTP, "allow-http", false, "permit cleartext http:// base URLs")
	rootCmd.PersistentFlags().IntVar(&flagTimeout, "timeout", 0, "tool call timeout in milliseconds")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(
		NewListCommand(),
		NewCallCommand(),
		NewConfigCommand(),
		NewAuthCommand(),
		NewDaemonCommand(),
		NewHistoryCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session bundles everything a command needs: the resolved settings, the
// Runtime, and the observer shutdown hook.
type session struct {
	settings settings.Settings
	runtime  *runtime.Runtime
	shutdown func(context.Context) error
}

// newSession applies settings and flags, loads the config, and builds the
// Runtime. Callers must Close.
func newSession(ctx context.Context) (*session, error) {
	s := settings.Load("")
	applySettings(s)

	logger := slog.New(discardHandler{})
	if flagVerbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cfg, err := config.Load(config.Options{Path: flagConfig, Logger: logger})
	if err != nil {
		return nil, err
	}

	opts := []runtime.Option{runtime.WithLogger(logger)}
	if flagAllowHTTP || s.Network.AllowHTTP {
		opts = append(opts, runtime.WithAllowHTTP(true))
	}
	if flagCwd != "" {
		opts = append(opts, runtime.WithWorkDir(flagCwd))
	}

	sess := &session{settings: s}
	if s.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			return nil, fmt.Errorf("observer init: %w", err)
		}
		sess.shutdown = shutdown
		opts = append(opts, runtime.WithTransportWrapper(observer.Wrapper(inst)))
	}

	sess.runtime = runtime.New(cfg, opts...)
	return sess, nil
}

func (s *session) Close(ctx context.Context) {
	if err := s.runtime.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if s.shutdown != nil {
		_ = s.shutdown(ctx)
	}
}

// applySettings projects file-based preferences onto the env knobs the
// Runtime reads, without clobbering explicit env or flags.
func applySettings(s settings.Settings) {
	if flagTimeout > 0 {
		os.Setenv("MCPLUG_CALL_TIMEOUT", strconv.Itoa(flagTimeout))
	} else if s.Network.CallTimeoutMS > 0 && os.Getenv("MCPLUG_CALL_TIMEOUT") == "" {
		os.Setenv("MCPLUG_CALL_TIMEOUT", strconv.Itoa(s.Network.CallTimeoutMS))
	}
	if s.Network.ListTimeoutMS > 0 && os.Getenv("MCPLUG_LIST_TIMEOUT") == "" {
		os.Setenv("MCPLUG_LIST_TIMEOUT", strconv.Itoa(s.Network.ListTimeoutMS))
	}
}

// fail prints err and exits. Structured errors keep their stable code in the
// JSON projection when --json output was requested.
func fail(jsonOut bool, err error) {
	if jsonOut {
		if e, ok := mcplug.AsError(err); ok {
			fmt.Println(string(e.JSON()))
			os.Exit(1)
		}
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// discardHandler drops all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
