package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"sitehost/internal/config"
	"sitehost/internal/deploy"
	"sitehost/internal/deps"
	"sitehost/internal/logging"
	"sitehost/internal/metrics"
)

// Daemon serves the control API and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *deploy.Manager
	metrics *metrics.Recorder
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	mu           sync.RWMutex
	dependencies []deps.Status
	startedAt    time.Time

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	LockFilePath string
	APIAddress   string
	Tunnels      bool
	Deployments  []deploy.Report
	Dependencies []deps.Status
}

// New constructs a daemon around an already configured deployment manager.
func New(cfg *config.Config, manager *deploy.Manager, recorder *metrics.Recorder, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || manager == nil {
		return nil, errors.New("daemon requires config and deployment manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if recorder == nil {
		recorder = metrics.New()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		manager:  manager,
		metrics:  recorder,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg.Paths.APIBind, d, logger)
	return d, nil
}

// Start acquires the daemon lock, snapshots dependency health and begins
// serving the control API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sitehost daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.refreshDependencies(d.ctx)
	d.manager.SweepOrphans()

	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api: %w", err)
	}

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("sitehost daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.Bool("tunnels", d.manager.TunnelsEnabled()),
	)
	return nil
}

// Stop closes the control API, tears down every project within ctx and
// releases the daemon lock.
func (d *Daemon) Stop(ctx context.Context) error {
	if !d.running.Load() {
		return nil
	}

	d.api.stop(ctx)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	teardownErr := d.manager.TeardownAll(ctx)
	if teardownErr != nil {
		logging.WarnWithContext(d.logger, "project teardown incomplete", "shutdown_teardown",
			logging.String(logging.FieldErrorHint, "workspace directories may need manual cleanup"),
			logging.Error(teardownErr),
		)
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("sitehost daemon stopped")
	return teardownErr
}

// Close stops the daemon with the configured shutdown budget.
func (d *Daemon) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout())
	defer cancel()
	return d.Stop(ctx)
}

// Manager exposes the deployment manager the daemon serves.
func (d *Daemon) Manager() *deploy.Manager {
	return d.manager
}

// APIAddress returns the bound control API address, or "" before Start.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.RLock()
	startedAt := d.startedAt
	dependencies := append([]deps.Status(nil), d.dependencies...)
	d.mu.RUnlock()

	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    startedAt,
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
		Tunnels:      d.manager.TunnelsEnabled(),
		Deployments:  d.manager.List(),
		Dependencies: dependencies,
	}
}

func (d *Daemon) refreshDependencies(ctx context.Context) {
	statuses := deps.CheckBinaries(ctx, deps.Requirements(d.cfg))
	for _, status := range statuses {
		if status.Available {
			continue
		}
		logging.WarnWithContext(d.logger, "dependency unavailable", "dependency_missing",
			logging.String("dependency", status.Name),
			logging.String(logging.FieldErrorHint, status.Detail),
			logging.String(logging.FieldImpact, "projects are served locally without a public URL"),
		)
	}
	d.mu.Lock()
	d.dependencies = statuses
	d.mu.Unlock()
}
