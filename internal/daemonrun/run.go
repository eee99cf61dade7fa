// Package daemonrun assembles and runs the sitehost daemon process.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"sitehost/internal/config"
	"sitehost/internal/daemon"
	"sitehost/internal/deploy"
	"sitehost/internal/deps"
	"sitehost/internal/logging"
	"sitehost/internal/metrics"
	"sitehost/internal/ports"
	"sitehost/internal/registry"
	"sitehost/internal/tunnel"
	"sitehost/internal/workspace"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the sitehost daemon and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM. Every project is torn down before it
// returns.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	// Start takes the parent context so the API keeps serving until the
	// ordered shutdown below closes it.
	if err := d.Start(cmdCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check the api bind address and that no other daemon holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("sitehost daemon shutting down",
		logging.Int("projects", len(d.Manager().List())),
		logging.Duration("budget", cfg.ShutdownTimeout()),
	)
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(cmdCtx), cfg.ShutdownTimeout())
	defer stop()
	if err := d.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Build wires the workspace store, port allocator, registry, tunnel provider
// and metrics into a daemon that has not been started.
func Build(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	recorder := metrics.New()
	manager, err := NewManager(cfg, recorder, logger)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg, manager, recorder, logger)
}

// NewManager builds a deployment manager from cfg.
func NewManager(cfg *config.Config, recorder *metrics.Recorder, logger *slog.Logger) (*deploy.Manager, error) {
	store, err := workspace.New(cfg.Paths.WorkspaceDir,
		workspace.WithLogger(logger),
		workspace.WithEntryDocument(cfg.Deploy.EntryDocument),
	)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	allocator, err := ports.New(ports.Config{
		Floor:       cfg.Deploy.BasePort,
		Ceiling:     cfg.Deploy.MaxPort,
		MaxAttempts: cfg.Deploy.MaxProbeAttempts,
		Host:        cfg.Deploy.ListenHost,
	}, ports.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("port allocator: %w", err)
	}

	var provider tunnel.Provider
	if cfg.Tunnel.Enabled {
		provider = tunnel.NewCloudflared(tunnel.CloudflaredOptions{
			Binary:            cfg.Tunnel.Binary,
			Timeout:           cfg.TunnelTimeout(),
			LaunchesPerMinute: cfg.Tunnel.LaunchesPerMinute,
			Logger:            logger,
		})
	}

	return deploy.NewManager(deploy.Options{
		Store:            store,
		Ports:            allocator,
		Registry:         registry.New(),
		Tunnel:           provider,
		TunnelRetries:    cfg.Tunnel.Retries,
		TunnelRetryDelay: cfg.TunnelRetryDelay(),
		BindRetries:      cfg.Deploy.BindRetries,
		ListenHost:       cfg.Deploy.ListenHost,
		PublicHost:       cfg.Deploy.PublicHost,
		Metrics:          recorder,
		Logger:           logger,
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("workspace_dir", cfg.Paths.WorkspaceDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Int("base_port", cfg.Deploy.BasePort),
		logging.Bool("tunnel_enabled", cfg.Tunnel.Enabled),
	}
	for _, status := range deps.CheckBinaries(ctx, deps.Requirements(cfg)) {
		attrs = append(attrs,
			logging.Bool(status.Name+"_available", status.Available),
			logging.String(status.Name+"_binary", status.Command),
		)
		if status.Version != "" {
			attrs = append(attrs, logging.String(status.Name+"_version", status.Version))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
