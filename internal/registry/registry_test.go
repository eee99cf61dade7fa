package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sitehost/internal/faults"
	"sitehost/internal/registry"
	"sitehost/internal/tunnel"
)

type nopServer struct{}

func (nopServer) Stop(context.Context) error { return nil }

type nopHandle struct{ done chan struct{} }

func (h nopHandle) Terminate() error      { return nil }
func (h nopHandle) Done() <-chan struct{} { return h.done }

func live(id string, created time.Time) registry.Deployment {
	return registry.Deployment{
		ID:          id,
		Port:        3003,
		Status:      registry.StatusLive,
		TunnelState: registry.TunnelPending,
		CreatedAt:   created,
		Files:       []string{"index.html"},
	}
}

func TestRegisterLookupAndSnapshotIsolation(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(live("p1", time.Now()), nopServer{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	snap, err := reg.Lookup("p1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	snap.Files[0] = "mutated"
	snap.Port = 1

	again, _ := reg.Lookup("p1")
	if again.Files[0] != "index.html" || again.Port != 3003 {
		t.Fatalf("registry state leaked through snapshot: %+v", again)
	}
	if err := reg.Register(live("p1", time.Now()), nopServer{}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestLookupUnknownIsNotFound(t *testing.T) {
	_, err := registry.New().Lookup("nope")
	if !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListOrdersByCreation(t *testing.T) {
	reg := registry.New()
	base := time.Now()
	for i, id := range []string{"c", "a", "b"} {
		if err := reg.Register(live(id, base.Add(time.Duration(2-i)*time.Second)), nopServer{}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	list := reg.List()
	got := []string{list[0].ID, list[1].ID, list[2].ID}
	want := []string{"b", "a", "c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected order %v want %v", got, want)
	}
}

func TestTransitionsAreForwardOnly(t *testing.T) {
	reg := registry.New()
	dep := live("p1", time.Now())
	dep.Status = registry.StatusProvisioning
	if err := reg.Register(dep, nopServer{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Transition("p1", registry.StatusLive); err != nil {
		t.Fatalf("provisioning -> live: %v", err)
	}
	if _, err := reg.Transition("p1", registry.StatusProvisioning); err == nil {
		t.Fatal("expected live -> provisioning to fail")
	}
	if _, err := reg.Transition("p1", registry.StatusLive); err == nil {
		t.Fatal("expected live -> live to fail")
	}
}

func TestBeginTeardownClaimsOnce(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(live("p1", time.Now()), nopServer{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h := nopHandle{done: make(chan struct{})}
	if err := reg.AttachTunnel("p1", tunnel.Result{URL: "https://x.trycloudflare.com"}, h); err != nil {
		t.Fatalf("AttachTunnel: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dep, res, err := reg.BeginTeardown("p1")
			if err != nil {
				if !errors.Is(err, faults.ErrNotFound) {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if dep.Status != registry.StatusTearingDown || res.Tunnel == nil || res.Server == nil {
				t.Errorf("unexpected claim %+v %+v", dep, res)
			}
			mu.Lock()
			claimed++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if claimed != 1 {
		t.Fatalf("expected exactly one claim, got %d", claimed)
	}

	gone, err := reg.Unregister("p1")
	if err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if gone.Status != registry.StatusGone {
		t.Fatalf("expected gone, got %s", gone.Status)
	}
	if _, err := reg.Lookup("p1"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found after unregister, got %v", err)
	}
}

func TestAttachTunnelRequiresLive(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(live("p1", time.Now()), nopServer{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.AttachTunnel("p1", tunnel.Result{URL: "https://a.trycloudflare.com", Inferred: true}, nil); err != nil {
		t.Fatalf("AttachTunnel: %v", err)
	}
	dep, _ := reg.Lookup("p1")
	if dep.TunnelState != registry.TunnelInferred || dep.PublicURL == "" {
		t.Fatalf("expected inferred tunnel, got %+v", dep)
	}
	if _, _, err := reg.BeginTeardown("p1"); err != nil {
		t.Fatalf("BeginTeardown: %v", err)
	}
	if err := reg.AttachTunnel("p1", tunnel.Result{URL: "https://b.trycloudflare.com"}, nil); !errors.Is(err, registry.ErrNotLive) {
		t.Fatalf("expected ErrNotLive, got %v", err)
	}
	if err := reg.AttachTunnel("missing", tunnel.Result{}, nil); !errors.Is(err, registry.ErrNotLive) {
		t.Fatalf("expected ErrNotLive for unknown id, got %v", err)
	}
}

func TestSetTunnelStateClearsURLWhenLost(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(live("p1", time.Now()), nopServer{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_ = reg.AttachTunnel("p1", tunnel.Result{URL: "https://a.trycloudflare.com"}, nil)
	if err := reg.SetTunnelState("p1", registry.TunnelUnavailable); err != nil {
		t.Fatalf("SetTunnelState: %v", err)
	}
	dep, _ := reg.Lookup("p1")
	if dep.PublicURL != "" || dep.TunnelState != registry.TunnelUnavailable {
		t.Fatalf("expected cleared public URL, got %+v", dep)
	}
}
