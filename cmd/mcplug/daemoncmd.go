package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/hydai/mcplug/internal/daemon"
	"github.com/hydai/mcplug/runtime"
)

// NewDaemonCommand manages the background daemon that shares keep-alive
// transports across CLI invocations.
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the shared connection daemon",
	}
	cmd.AddCommand(newDaemonStartCommand(), newDaemonRunCommand(), newDaemonStopCommand(), newDaemonStatusCommand())
	return cmd
}

func newDaemonStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Run: func(cmd *cobra.Command, args []string) {
			if c, err := daemon.Dial(); err == nil {
				defer c.Close()
				if c.Ping() == nil {
					fmt.Println("Daemon already running.")
					return
				}
			}

			exe, err := os.Executable()
			if err != nil {
				fail(false, err)
			}
			argv := []string{"daemon", "run"}
			if flagConfig != "" {
				argv = append(argv, "--config", flagConfig)
			}
			child := exec.Command(exe, argv...)
			child.Stdout = nil
			child.Stderr = nil
			if err := child.Start(); err != nil {
				fail(false, err)
			}
			_ = child.Process.Release()

			if err := daemon.WaitReady(cmd.Context(), 10*time.Second); err != nil {
				fail(false, fmt.Errorf("daemon did not become ready: %w", err))
			}
			fmt.Printf("Daemon started (socket %s).\n", daemon.SocketPath())
		},
	}
}

// newDaemonRunCommand serves in the foreground. `daemon start` spawns it;
// running it directly is handy under a process supervisor.
func newDaemonRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "run",
		Short:  "Run the daemon in the foreground",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			opts := []daemon.Option{daemon.WithLogger(logger)}
			var rtOpts []runtime.Option
			rtOpts = append(rtOpts, runtime.WithLogger(logger))
			if flagAllowHTTP {
				rtOpts = append(rtOpts, runtime.WithAllowHTTP(true))
			}
			opts = append(opts, daemon.WithRuntimeOptions(rtOpts...))

			d, err := daemon.New(flagConfig, opts...)
			if err != nil {
				fail(false, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if err := d.Serve(ctx); err != nil {
				fail(false, err)
			}
		},
	}
}

func newDaemonStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Run: func(cmd *cobra.Command, args []string) {
			running, err := daemon.Stop()
			if err != nil {
				fail(false, err)
			}
			if !running {
				fmt.Println("Daemon is not running.")
				return
			}
			fmt.Println("Daemon stopped.")
		},
	}
}

func newDaemonStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is reachable",
		Run: func(cmd *cobra.Command, args []string) {
			c, err := daemon.Dial()
			if err != nil {
				fmt.Println("Daemon is not running.")
				os.Exit(1)
			}
			defer c.Close()
			if err := c.Ping(); err != nil {
				fmt.Println("Daemon socket exists but does not answer:", err)
				os.Exit(1)
			}
			servers, err := c.Servers()
			if err != nil {
				fail(false, err)
			}
			fmt.Printf("Daemon running (pid %d), %d servers configured.\n", daemon.ReadPID(), len(servers))
		},
	}
}
