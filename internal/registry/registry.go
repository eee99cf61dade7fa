// Package registry tracks live deployments.
//
// All access is serialized by one mutex. Callers receive value snapshots;
// the only shared objects handed out are the server and tunnel handles, which
// are safe for concurrent use.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"sitehost/internal/faults"
	"sitehost/internal/tunnel"
)

// Status is a deployment lifecycle stage. Transitions only move forward.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusLive         Status = "live"
	StatusTearingDown  Status = "tearing-down"
	StatusGone         Status = "gone"
)

func (s Status) rank() int {
	switch s {
	case StatusProvisioning:
		return 0
	case StatusLive:
		return 1
	case StatusTearingDown:
		return 2
	case StatusGone:
		return 3
	default:
		return -1
	}
}

// TunnelState describes how far public exposure has progressed.
type TunnelState string

const (
	TunnelPending     TunnelState = "pending"
	TunnelReady       TunnelState = "ready"
	TunnelInferred    TunnelState = "inferred"
	TunnelUnavailable TunnelState = "unavailable"
	TunnelDisabled    TunnelState = "disabled"
)

// Deployment is a snapshot of one project.
type Deployment struct {
	ID          string
	Dir         string
	Port        int
	URL         string
	PublicURL   string
	TunnelState TunnelState
	TunnelName  string
	Status      Status
	CreatedAt   time.Time
	Files       []string
}

func (d Deployment) clone() Deployment {
	d.Files = slices.Clone(d.Files)
	return d
}

// Server is the part of a project server the registry needs to hold.
type Server interface {
	Stop(ctx context.Context) error
}

// Resources are the live handles owned by a deployment.
type Resources struct {
	Server Server
	Tunnel tunnel.Handle
}

// ErrNotLive is returned when attaching a tunnel to a deployment that is no
// longer live. The caller still owns the handle and must terminate it.
var ErrNotLive = errors.New("deployment not live")

type entry struct {
	dep Deployment
	res Resources
}

// Registry is the in-memory deployment table.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func notFound(id string) error {
	return faults.New(faults.KindNotFound, "project not found", nil).With("project_id", id)
}

// Register records a new deployment with its server.
func (r *Registry) Register(dep Deployment, server Server) error {
	if strings.TrimSpace(dep.ID) == "" {
		return errors.New("deployment id is required")
	}
	if dep.Status != StatusProvisioning && dep.Status != StatusLive {
		return fmt.Errorf("cannot register deployment in status %q", dep.Status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[dep.ID]; exists {
		return fmt.Errorf("deployment %s already registered", dep.ID)
	}
	r.entries[dep.ID] = &entry{dep: dep.clone(), res: Resources{Server: server}}
	return nil
}

// Lookup returns a snapshot of id.
func (r *Registry) Lookup(id string) (Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Deployment{}, notFound(id)
	}
	return e.dep.clone(), nil
}

// List returns snapshots ordered by creation time.
func (r *Registry) List() []Deployment {
	r.mu.Lock()
	out := make([]Deployment, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.dep.clone())
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Deployment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of registered deployments.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns every registered id.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Transition moves id to status to. Moving backwards or sideways fails.
func (r *Registry) Transition(id string, to Status) (Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Deployment{}, notFound(id)
	}
	if to.rank() <= e.dep.Status.rank() {
		return e.dep.clone(), fmt.Errorf("invalid transition %s -> %s for %s", e.dep.Status, to, id)
	}
	e.dep.Status = to
	return e.dep.clone(), nil
}

// BeginTeardown claims id for teardown and returns its resources. Only one
// caller can claim a deployment; later callers see not_found.
func (r *Registry) BeginTeardown(id string) (Deployment, Resources, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.dep.Status.rank() >= StatusTearingDown.rank() {
		return Deployment{}, Resources{}, notFound(id)
	}
	e.dep.Status = StatusTearingDown
	res := e.res
	e.res.Tunnel = nil
	return e.dep.clone(), res, nil
}

// AttachTunnel records a tunnel result on a live deployment. When the
// deployment is no longer live it returns ErrNotLive and keeps nothing.
func (r *Registry) AttachTunnel(id string, res tunnel.Result, handle tunnel.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.dep.Status != StatusLive {
		return ErrNotLive
	}
	e.dep.PublicURL = res.URL
	e.dep.TunnelName = res.Name
	e.dep.TunnelState = TunnelReady
	if res.Inferred {
		e.dep.TunnelState = TunnelInferred
	}
	e.res.Tunnel = handle
	return nil
}

// SetTunnelState updates the tunnel state of a live deployment. A lost tunnel
// also clears the public URL.
func (r *Registry) SetTunnelState(id string, state TunnelState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.dep.Status != StatusLive {
		return ErrNotLive
	}
	e.dep.TunnelState = state
	if state == TunnelUnavailable || state == TunnelDisabled {
		e.dep.PublicURL = ""
		e.res.Tunnel = nil
	}
	return nil
}

// Unregister removes id and marks its final snapshot gone.
func (r *Registry) Unregister(id string) (Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Deployment{}, notFound(id)
	}
	delete(r.entries, id)
	e.dep.Status = StatusGone
	return e.dep.clone(), nil
}
