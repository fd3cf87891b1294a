// Package main implements the swaybar command, a status line generator for
// sway and i3bar.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/swaybar/config"
	"github.com/c360/swaybar/health"
	"github.com/c360/swaybar/metric"
	"github.com/c360/swaybar/module"
	"github.com/c360/swaybar/netclient"
	"github.com/c360/swaybar/scheduler"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "swaybar"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the root command with args and returns the exit code
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdin, stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		slog.Error("swaybar failed", "error", err, "exit_code", 1)
		return 1
	}
	return 0
}

// streams are the process's standard streams, replaceable in tests
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cli := &CLIConfig{}
	std := streams{in: stdin, out: stdout, err: stderr}

	root := &cobra.Command{
		Use:   appName,
		Short: "Status line generator for swaybar and i3bar",
		Long: `swaybar writes the i3bar JSON protocol to stdout and reads click events
from stdin. Configure it as the status_command of a sway or i3 bar:

  bar {
      status_command swaybar --config ~/.config/swaybar/config.yaml
  }

Logs go to stderr.`,
		Version:       fmt.Sprintf("%s (build %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFlags(cli); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			return run(cmd.Context(), cli, std)
		},
	}
	root.SetOut(stderr)
	root.SetErr(stderr)
	bindFlags(root.Flags(), cli)

	root.AddCommand(schemaCmd(stdout))
	return root
}

func schemaCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for configuration files",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := stdout.Write(config.Schema())
			return err
		},
	}
}

func run(ctx context.Context, cli *CLIConfig, std streams) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := setupLogger(cli.LogLevel, cli.LogFormat, std.err)
	slog.SetDefault(logger)

	cfg, path, err := loadConfig(cli.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("Configuration loaded", "path", path, "modules", len(cfg.Modules))

	if cli.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	if cli.MetricsPort >= 0 {
		cfg.Metrics.Port = cli.MetricsPort
	}

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()
	monitor := health.NewMonitor()

	if cfg.Metrics.Port > 0 {
		srv := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, logger)
		srv.Handle("/healthz", monitor.Handler())
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				logger.Warn("Metrics server stop failed", "error", err)
			}
		}()
		logger.Info("Metrics server started", "address", srv.Address(), "path", cfg.Metrics.Path)
	}

	deps := module.Deps{
		Logger:  logger,
		Metrics: metrics,
		Health:  monitor,
		Backoff: cfg.RetryConfig(),
		HTTP:    netclient.NewClient(netclient.WithLogger(logger)),
		NATS:    cfg.NATS.BusConfig(),
	}
	modules, err := scheduler.BuildModules(cfg.Modules, deps)
	if err != nil {
		return err
	}

	s, err := scheduler.New(scheduler.ConfigFrom(cfg), modules, std.in, std.out,
		scheduler.WithLogger(logger), scheduler.WithMetrics(metrics))
	if err != nil {
		return err
	}

	// A host that stops reading must show up as EPIPE on write instead of
	// killing the process, so modules and the metrics server are shut down.
	signal.Ignore(syscall.SIGPIPE)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Run(signalCtx); err != nil {
		return fmt.Errorf("bar stopped: %w", err)
	}
	logger.Info("swaybar shutdown complete")
	return nil
}

// loadConfig loads path, or the default location when path is empty
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		found, err := config.DefaultPath()
		if err != nil {
			return nil, "", err
		}
		path = found
	}

	cfg, err := config.NewLoader().LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
