// Package ports hands out free TCP ports for project servers.
//
// Probing is serialized so two concurrent deploys never receive the same
// candidate from one allocator. A probe only proves the port was free at that
// moment; the caller's real bind remains authoritative and may still lose a
// race with another process.
package ports

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"sitehost/internal/faults"
	"sitehost/internal/logging"
)

const maxPort = 65535

// ProbeFunc reports whether port can currently be bound.
type ProbeFunc func(host string, port int) bool

// Config describes the allocation range.
type Config struct {
	// Floor is the lowest port handed out.
	Floor int
	// Ceiling is the highest port handed out; zero means 65535.
	Ceiling int
	// MaxAttempts bounds a single search.
	MaxAttempts int
	// Host is the interface probed; empty probes all interfaces.
	Host string
}

// Allocator finds free ports starting after the last port it handed out.
type Allocator struct {
	mu     sync.Mutex
	cfg    Config
	last   int
	probe  ProbeFunc
	logger *slog.Logger
}

// Option customizes an Allocator.
type Option func(*Allocator)

// WithProbe replaces the bind probe, mainly for tests.
func WithProbe(probe ProbeFunc) Option {
	return func(a *Allocator) {
		if probe != nil {
			a.probe = probe
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New constructs an allocator for cfg.
func New(cfg Config, opts ...Option) (*Allocator, error) {
	if cfg.Floor <= 0 || cfg.Floor > maxPort {
		return nil, fmt.Errorf("port floor %d out of range", cfg.Floor)
	}
	if cfg.Ceiling == 0 {
		cfg.Ceiling = maxPort
	}
	if cfg.Ceiling < cfg.Floor || cfg.Ceiling > maxPort {
		return nil, fmt.Errorf("port ceiling %d invalid for floor %d", cfg.Ceiling, cfg.Floor)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1000
	}
	a := &Allocator{
		cfg:    cfg,
		probe:  probeListen,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.NewComponentLogger(a.logger, "ports")
	return a, nil
}

// Next returns the first free port after the last one handed out, wrapping to
// the floor at the ceiling.
func (a *Allocator) Next() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := a.cfg.Floor
	if a.last != 0 {
		start = a.last + 1
	}
	return a.searchLocked(start)
}

// NextAvailable returns the first free port at or after from.
func (a *Allocator) NextAvailable(from int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.searchLocked(from)
}

// Last returns the most recently handed out port, or zero.
func (a *Allocator) Last() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *Allocator) searchLocked(from int) (int, error) {
	if from < a.cfg.Floor || from > a.cfg.Ceiling {
		from = a.cfg.Floor
	}
	span := a.cfg.Ceiling - a.cfg.Floor + 1
	attempts := min(a.cfg.MaxAttempts, span)

	candidate := from
	for range attempts {
		if a.probe(a.cfg.Host, candidate) {
			a.last = candidate
			return candidate, nil
		}
		candidate++
		if candidate > a.cfg.Ceiling {
			candidate = a.cfg.Floor
		}
	}

	a.logger.Warn("no free port found",
		logging.Int("from", from),
		logging.Int("attempts", attempts),
		logging.Int("floor", a.cfg.Floor),
		logging.Int("ceiling", a.cfg.Ceiling),
		logging.String(logging.FieldEventType, "port_range_exhausted"),
		logging.String(logging.FieldErrorHint, "raise deploy.max_port or tear down idle projects"),
	)
	return 0, faults.New(faults.KindExhaustedRange, "no free port available", nil).
		With("from", from).
		With("attempts", attempts)
}

func probeListen(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
