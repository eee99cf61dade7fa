package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"sitehost/internal/faults"
	"sitehost/internal/logging"
	"sitehost/internal/metrics"
	"sitehost/internal/registry"
	"sitehost/internal/staticsite"
	"sitehost/internal/tunnel"
	"sitehost/internal/workspace"
)

const defaultStopTimeout = 5 * time.Second

// PortSource hands out candidate ports.
type PortSource interface {
	Next() (int, error)
	NextAvailable(from int) (int, error)
}

// Options wires a Manager to its collaborators.
type Options struct {
	Store    *workspace.Store
	Ports    PortSource
	Registry *registry.Registry
	// Tunnel is nil when public exposure is disabled.
	Tunnel           tunnel.Provider
	TunnelRetries    int
	TunnelRetryDelay time.Duration
	// BindRetries caps how many further ports are tried after a lost bind race.
	BindRetries int
	ListenHost  string
	PublicHost  string
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

// Report describes one project to callers.
type Report struct {
	ProjectID   string
	Port        int
	URL         string
	PublicURL   string
	TunnelState registry.TunnelState
	Status      registry.Status
	CreatedAt   time.Time
	Files       []string
}

// Manager coordinates workspace, ports, servers, tunnels and the registry.
type Manager struct {
	store      *workspace.Store
	ports      PortSource
	registry   *registry.Registry
	tunnel     tunnel.Provider
	retries    int
	retryDelay time.Duration
	bindRetry  int
	listenHost string
	publicHost string
	metrics    *metrics.Recorder
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	workers  map[string]*tunnelWorker
	inflight sync.WaitGroup
	tunnels  sync.WaitGroup
}

// tunnelWorker is the background tunnel goroutine of one project. Cancelling
// it aborts a pending launch and stops the watch loop; done closes once the
// goroutine has released any handle it still owns.
type tunnelWorker struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager validates opts and returns a ready Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil || opts.Ports == nil || opts.Registry == nil {
		return nil, errors.New("deploy manager requires store, ports and registry")
	}
	if opts.BindRetries <= 0 {
		opts.BindRetries = 5
	}
	if opts.TunnelRetries < 0 {
		opts.TunnelRetries = 0
	}
	if opts.TunnelRetryDelay <= 0 {
		opts.TunnelRetryDelay = 10 * time.Second
	}
	if opts.PublicHost == "" {
		opts.PublicHost = "localhost"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:      opts.Store,
		ports:      opts.Ports,
		registry:   opts.Registry,
		tunnel:     opts.Tunnel,
		retries:    opts.TunnelRetries,
		retryDelay: opts.TunnelRetryDelay,
		bindRetry:  opts.BindRetries,
		listenHost: opts.ListenHost,
		publicHost: opts.PublicHost,
		metrics:    opts.Metrics,
		logger:     logging.NewComponentLogger(opts.Logger, "deploy"),
		ctx:        ctx,
		cancel:     cancel,
		workers:    make(map[string]*tunnelWorker),
	}, nil
}

// TunnelsEnabled reports whether new deploys will attempt a public tunnel.
func (m *Manager) TunnelsEnabled() bool {
	return m.tunnel != nil && m.tunnel.Available()
}

// Deploy materializes files, serves them on a fresh port and returns once the
// project is live. Tunnel resolution continues in the background.
func (m *Manager) Deploy(ctx context.Context, files []workspace.File) (Report, error) {
	started := time.Now()
	report, err := m.deploy(ctx, files)
	outcome := "success"
	if err != nil {
		outcome = string(faults.KindOf(err))
	}
	m.metrics.DeployFinished(outcome, time.Since(started))
	m.metrics.SetLive(m.registry.Len())
	return report, err
}

func (m *Manager) deploy(ctx context.Context, files []workspace.File) (Report, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Report{}, faults.New(faults.KindServerStartError, "deployment manager is shutting down", nil)
	}
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	createdAt := time.Now()
	id := newProjectID(createdAt)
	logger := logging.WithContext(ctx, m.logger).With(logging.ProjectID(id))

	normalized, err := m.store.Normalize(files)
	if err != nil {
		return Report{}, err
	}
	dir, err := m.store.Materialize(id, normalized)
	if err != nil {
		return Report{}, fmt.Errorf("materialize project: %w", err)
	}
	rollbackDir := func() {
		if releaseErr := m.store.Release(dir); releaseErr != nil {
			logging.WarnWithContext(logger, "rollback left project directory behind", "deploy_rollback_failed",
				logging.Error(releaseErr),
				logging.String("dir", dir),
				logging.String(logging.FieldImpact, "stale files remain under the workspace root"),
			)
		}
	}

	if err := ctx.Err(); err != nil {
		rollbackDir()
		return Report{}, fmt.Errorf("deploy cancelled: %w", err)
	}

	server, err := m.bind(id, dir, logger)
	if err != nil {
		rollbackDir()
		return Report{}, err
	}

	names := make([]string, 0, len(normalized))
	for _, f := range normalized {
		names = append(names, f.Name)
	}
	state := registry.TunnelDisabled
	if m.TunnelsEnabled() {
		state = registry.TunnelPending
	}
	dep := registry.Deployment{
		ID:          id,
		Dir:         dir,
		Port:        server.Port(),
		URL:         "http://" + m.publicHost + ":" + strconv.Itoa(server.Port()),
		TunnelState: state,
		Status:      registry.StatusLive,
		CreatedAt:   createdAt,
		Files:       names,
	}
	var worker *tunnelWorker
	if state == registry.TunnelPending {
		worker = m.startWorker(id)
	}
	if err := m.registry.Register(dep, server); err != nil {
		if worker != nil {
			m.takeWorker(id)
			worker.cancel()
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), defaultStopTimeout)
		_ = server.Stop(stopCtx)
		cancel()
		rollbackDir()
		return Report{}, fmt.Errorf("register project: %w", err)
	}

	logger.Info("project live",
		logging.Port(dep.Port),
		logging.String("url", dep.URL),
		logging.Int("file_count", len(names)),
		logging.String("tunnel_state", string(state)),
	)

	if worker != nil {
		m.tunnels.Add(1)
		go m.resolveTunnel(worker, id, dep.Port, logger)
	}
	return reportFrom(dep), nil
}

// bind starts the project server, moving to the next free port whenever the
// real bind loses a race with another process.
func (m *Manager) bind(id, dir string, logger *slog.Logger) (*staticsite.Server, error) {
	port, err := m.ports.Next()
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt <= m.bindRetry; attempt++ {
		server, err := staticsite.Start(staticsite.Options{
			Dir:           dir,
			Port:          port,
			Host:          m.listenHost,
			ProjectID:     id,
			EntryDocument: m.store.EntryDocument(),
			Logger:        m.logger,
		})
		if err == nil {
			return server, nil
		}
		if faults.KindOf(err) != faults.KindBindError {
			return nil, err
		}
		lastErr = err
		logger.Debug("port taken at bind, trying next", logging.Port(port), logging.Int("attempt", attempt+1))
		if port, err = m.ports.NextAvailable(port + 1); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// startWorker records the tunnel worker for id. Its context derives from the
// manager so shutdown cancels every pending launch at once.
func (m *Manager) startWorker(id string) *tunnelWorker {
	ctx, cancel := context.WithCancel(m.ctx)
	worker := &tunnelWorker{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.workers[id] = worker
	m.mu.Unlock()
	return worker
}

func (m *Manager) takeWorker(id string) *tunnelWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	worker := m.workers[id]
	delete(m.workers, id)
	return worker
}

// stopWorker cancels the tunnel worker for id, if any, and waits until it has
// let go of its tunnel process or ctx expires.
func (m *Manager) stopWorker(ctx context.Context, id string) error {
	worker := m.takeWorker(id)
	if worker == nil {
		return nil
	}
	worker.cancel()
	select {
	case <-worker.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveTunnel runs the bounded tunnel attempts for one project and then
// watches the tunnel until it exits or the project is torn down.
func (m *Manager) resolveTunnel(worker *tunnelWorker, id string, port int, logger *slog.Logger) {
	defer m.tunnels.Done()
	defer close(worker.done)
	defer worker.cancel()
	ctx := worker.ctx

	attempts := 1 + m.retries
	for attempt := 1; attempt <= attempts; attempt++ {
		res, handle, err := m.tunnel.Create(ctx, port)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.metrics.TunnelResult(string(registry.TunnelUnavailable))
			if attempt == attempts {
				if setErr := m.registry.SetTunnelState(id, registry.TunnelUnavailable); setErr == nil {
					logging.WarnWithContext(logger, "public tunnel unavailable", "tunnel_unavailable",
						logging.Error(err),
						logging.Int("attempts", attempts),
						logging.String(logging.FieldImpact, "project is reachable on the local URL only"),
						logging.String(logging.FieldErrorHint, "check that cloudflared is installed and has network access"),
					)
				}
				return
			}
			logger.Info("tunnel attempt failed, retrying",
				logging.Int("attempt", attempt),
				logging.Duration("delay", m.retryDelay),
				logging.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.retryDelay):
			}
			if dep, lookupErr := m.registry.Lookup(id); lookupErr != nil || dep.Status != registry.StatusLive {
				return
			}
			continue
		}

		if attachErr := m.registry.AttachTunnel(id, res, handle); attachErr != nil {
			// The project went away while the tunnel was starting.
			_ = handle.Terminate()
			return
		}
		state := registry.TunnelReady
		if res.Inferred {
			state = registry.TunnelInferred
		}
		m.metrics.TunnelResult(string(state))
		logger.Info("public url attached",
			logging.String("public_url", res.URL),
			logging.String("tunnel_state", string(state)),
		)
		m.watchTunnel(ctx, id, handle, logger)
		return
	}
}

func (m *Manager) watchTunnel(ctx context.Context, id string, handle tunnel.Handle, logger *slog.Logger) {
	select {
	case <-ctx.Done():
	case <-handle.Done():
		if err := m.registry.SetTunnelState(id, registry.TunnelUnavailable); err == nil {
			logging.WarnWithContext(logger, "public tunnel exited", "tunnel_lost",
				logging.String(logging.FieldImpact, "public URL no longer works"),
				logging.String(logging.FieldErrorHint, "redeploy the project to get a new public URL"),
			)
		}
	}
}

// Status returns the current report for id.
func (m *Manager) Status(id string) (Report, error) {
	dep, err := m.registry.Lookup(id)
	if err != nil {
		return Report{}, err
	}
	return reportFrom(dep), nil
}

// List returns every registered project ordered by creation.
func (m *Manager) List() []Report {
	deps := m.registry.List()
	out := make([]Report, 0, len(deps))
	for _, dep := range deps {
		out = append(out, reportFrom(dep))
	}
	return out
}

// SweepOrphans removes workspace directories that no registered project
// owns. It returns the number of directories removed.
func (m *Manager) SweepOrphans() int {
	active := make(map[string]struct{})
	for _, id := range m.registry.IDs() {
		active[id] = struct{}{}
	}
	result := m.store.SweepOrphans(active)
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		m.logger.Info("workspace sweep finished",
			logging.Int("removed", len(result.Removed)),
			logging.Int("failed", len(result.Errors)),
		)
	}
	return len(result.Removed)
}

// Teardown stops the project's server, terminates its tunnel, removes its
// directory and forgets it. Failures after the project is claimed are logged,
// not returned. Unknown or already departing ids yield not_found.
func (m *Manager) Teardown(ctx context.Context, id string) error {
	return m.teardown(ctx, id, "api")
}

func (m *Manager) teardown(ctx context.Context, id, trigger string) error {
	dep, res, err := m.registry.BeginTeardown(id)
	if err != nil {
		return err
	}
	logger := logging.WithContext(ctx, m.logger).With(logging.ProjectID(id), logging.Port(dep.Port))

	// A tunnel still starting is owned by its worker, not by res.
	workerCtx, cancelWorker := context.WithTimeout(ctx, defaultStopTimeout)
	err = m.stopWorker(workerCtx, id)
	cancelWorker()
	if err != nil {
		logging.WarnWithContext(logger, "tunnel worker did not stop in time", "teardown_tunnel_worker_slow",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a starting tunnel process may outlive the project briefly"),
		)
	}
	if res.Server != nil {
		if err := res.Server.Stop(ctx); err != nil {
			logging.WarnWithContext(logger, "project server did not stop cleanly", "teardown_server_stop_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "port may stay bound until the daemon exits"),
			)
		}
	}
	if res.Tunnel != nil {
		if err := res.Tunnel.Terminate(); err != nil {
			logging.WarnWithContext(logger, "tunnel did not terminate cleanly", "teardown_tunnel_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "a tunnel process may be orphaned"),
			)
		}
	}
	if err := m.store.Release(dep.Dir); err != nil {
		logging.WarnWithContext(logger, "project directory not removed", "teardown_release_failed",
			logging.Error(err),
			logging.String("dir", dep.Dir),
			logging.String(logging.FieldImpact, "stale files remain under the workspace root"),
		)
	}
	if _, err := m.registry.Unregister(id); err != nil {
		logger.Debug("unregister after teardown", logging.Error(err))
	}

	m.metrics.Teardown(trigger)
	m.metrics.SetLive(m.registry.Len())
	logger.Info("project torn down", logging.String("trigger", trigger))
	return nil
}

func reportFrom(dep registry.Deployment) Report {
	return Report{
		ProjectID:   dep.ID,
		Port:        dep.Port,
		URL:         dep.URL,
		PublicURL:   dep.PublicURL,
		TunnelState: dep.TunnelState,
		Status:      dep.Status,
		CreatedAt:   dep.CreatedAt,
		Files:       dep.Files,
	}
}
