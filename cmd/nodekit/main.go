// Package main runs a NodeKit process hosting the talker and listener demo
// components on the in-process bus or on NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/nodekit/config"
	"github.com/c360/nodekit/engine"
	"github.com/c360/nodekit/metric"
	"github.com/c360/nodekit/natsclient"
	"github.com/c360/nodekit/param"
	"github.com/c360/nodekit/param/kvstore"
	"github.com/c360/nodekit/pkg/retry"
	"github.com/c360/nodekit/transport"
	"github.com/c360/nodekit/transport/natsnode"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "nodekit"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// run executes the process until ctx is cancelled.
func run(ctx context.Context, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, argv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printHelp(fs)
		return nil
	}

	args := config.ParseArgs(fs.Args())
	cfg, err := initializeConfiguration(cliCfg, args)
	if err != nil {
		return err
	}

	logger := setupLogger(stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	logger.Info("Starting NodeKit",
		"version", Version,
		"build_time", BuildTime,
		"node", cfg.Node.Name,
		"namespace", cfg.Node.Namespace,
		"transport", cfg.Transport.Kind,
		"role", cliCfg.Role)
	if len(args.Rest) > 0 {
		logger.Warn("Ignoring unrecognized arguments", "args", args.Rest)
	}

	metricsRegistry := metric.NewMetricsRegistry()
	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, metricsRegistry)
		if err := server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}()
		logger.Info("Metrics server listening", "addr", server.Address(), "path", cfg.Metrics.Path)
	}

	node, store, cleanup, err := setupTransport(ctx, cfg, args, metricsRegistry, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	rt, err := engine.New(
		engine.WithNode(node),
		engine.WithStore(store),
		engine.WithLogger(logger),
		engine.WithMetrics(metricsRegistry),
		engine.WithParameterOverrides(args.Params...),
		engine.WithShutdownTimeout(cfg.Node.ShutdownTimeout),
		engine.WithRosout(cfg.Log.Rosout),
	)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}

	if err := createComponents(rt, cliCfg.Role); err != nil {
		return err
	}

	if err := rt.Run(ctx); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	logger.Info("NodeKit stopped")
	return nil
}

// initializeConfiguration layers defaults, the config file, the
// environment, command-line specials and flags, then validates the result.
func initializeConfiguration(cliCfg *CLIConfig, args config.Args) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Apply(args)
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if cliCfg.ShutdownTimeout > 0 {
		cfg.Node.ShutdownTimeout = cliCfg.ShutdownTimeout
	}
	if cliCfg.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = cliCfg.MetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupTransport builds the node and parameter store the configuration
// asks for. cleanup releases whatever was opened.
func setupTransport(
	ctx context.Context,
	cfg *config.Config,
	args config.Args,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (transport.Node, param.Store, func(), error) {
	names := args.Names(cfg.Node.Namespace)

	if cfg.Transport.Kind == config.TransportMemory {
		bus := transport.NewBus(transport.WithBusLogger(logger))
		return bus.NewNode(cfg.Node.Name, names), param.NewMemoryStore(), func() {}, nil
	}

	client, err := natsclient.NewClient(strings.Join(cfg.Transport.NATS.URLs, ","), natsOptions(cfg, metricsRegistry, logger)...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create NATS client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	closeClient := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}

	node := natsnode.New(client, cfg.Node.Name, names, logger)
	if cfg.Parameters.Store != config.StoreKV {
		return node, param.NewMemoryStore(), closeClient, nil
	}

	store, err := kvstore.Open(ctx, client, cfg.Parameters.Bucket, logger)
	if err != nil {
		closeClient()
		return nil, nil, nil, fmt.Errorf("open parameter bucket: %w", err)
	}
	return node, store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("Parameter store close failed", "error", err)
		}
		closeClient()
	}, nil
}

func natsOptions(cfg *config.Config, metricsRegistry *metric.MetricsRegistry, logger *slog.Logger) []natsclient.ClientOption {
	nc := cfg.Transport.NATS
	core := metricsRegistry.CoreMetrics()
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName + "-" + cfg.Node.Name),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(core),
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithReconnectWait(nc.ReconnectWait),
		natsclient.WithConnectRetry(retry.DefaultConfig()),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			core.SetTransportConnected(healthy)
			if !healthy {
				logger.Warn("NATS connection unhealthy")
			}
		}),
	}
	// Zero keeps the client defaults
	if nc.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(nc.PingInterval))
	}
	if nc.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(nc.DrainTimeout))
	}
	if nc.Username != "" {
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}
	if nc.Token != "" {
		opts = append(opts, natsclient.WithToken(nc.Token))
	}
	if nc.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(nc.TLS.CertFile, nc.TLS.KeyFile, nc.TLS.CAFile))
	}
	return opts
}

func createComponents(rt *engine.Runtime, role string) error {
	if role == "talker" || role == "both" {
		if _, err := engine.Create[Talker](rt, ""); err != nil {
			return fmt.Errorf("create talker: %w", err)
		}
	}
	if role == "listener" || role == "both" {
		if _, err := engine.Create[Listener](rt, ""); err != nil {
			return fmt.Errorf("create listener: %w", err)
		}
	}
	return nil
}
