package tunnel_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sitehost/internal/faults"
	"sitehost/internal/testsupport"
	"sitehost/internal/tunnel"
)

type fakeProcess struct {
	done      chan struct{}
	once      sync.Once
	err       error
	mu        sync.Mutex
	terminate int
}

func newFakeProcess() *fakeProcess { return &fakeProcess{done: make(chan struct{})} }

func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) Err() error            { return p.err }
func (p *fakeProcess) exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}
func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminate++
	p.mu.Unlock()
	p.exit(errors.New("terminated"))
	return nil
}
func (p *fakeProcess) terminations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminate
}

type fakeLauncher struct {
	lines    []string
	exitErr  error
	exits    bool
	proc     *fakeProcess
	gotArgs  []string
	gotBin   string
	launchFn func() error
}

func (l *fakeLauncher) Launch(binary string, args []string, onLine func(string)) (tunnel.Process, error) {
	l.gotBin = binary
	l.gotArgs = args
	if l.launchFn != nil {
		if err := l.launchFn(); err != nil {
			return nil, err
		}
	}
	l.proc = newFakeProcess()
	go func() {
		for _, line := range l.lines {
			onLine(line)
		}
		if l.exits || l.exitErr != nil {
			l.proc.exit(l.exitErr)
		}
	}()
	return l.proc, nil
}

func newProvider(l tunnel.Launcher, timeout time.Duration) *tunnel.Cloudflared {
	return tunnel.NewCloudflared(
		tunnel.CloudflaredOptions{Binary: "cloudflared", Timeout: timeout, LaunchesPerMinute: 600},
		tunnel.WithLauncher(l),
		tunnel.WithNameGenerator(func() string { return "sitehost-test" }),
	)
}

func TestCreateReturnsReportedURL(t *testing.T) {
	launcher := &fakeLauncher{lines: []string{
		"INF Requesting new quick Tunnel on trycloudflare.com...",
		"INF |  https://calm-river-owl.trycloudflare.com  |",
	}}
	res, handle, err := newProvider(launcher, time.Second).Create(context.Background(), 3003)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.URL != "https://calm-river-owl.trycloudflare.com" || res.Inferred {
		t.Fatalf("unexpected result %+v", res)
	}
	wantArgs := []string{"tunnel", "--url", "http://127.0.0.1:3003"}
	for i, arg := range wantArgs {
		if launcher.gotArgs[i] != arg {
			t.Fatalf("unexpected args %v", launcher.gotArgs)
		}
	}
	if err := handle.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
}

func TestCreateInfersURLFromEstablishedSignal(t *testing.T) {
	launcher := &fakeLauncher{lines: []string{"INF Registered tunnel connection connIndex=0"}}
	res, handle, err := newProvider(launcher, 5*time.Second).Create(context.Background(), 3004)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Inferred || res.URL != "https://sitehost-test.trycloudflare.com" {
		t.Fatalf("expected inferred fallback URL, got %+v", res)
	}
	_ = handle.Terminate()
}

func TestCreateFailsWhenProcessExits(t *testing.T) {
	launcher := &fakeLauncher{lines: []string{"ERR something broke"}, exitErr: errors.New("exit status 1")}
	_, handle, err := newProvider(launcher, 5*time.Second).Create(context.Background(), 3005)
	if !errors.Is(err, faults.ErrTunnelUnavailable) {
		t.Fatalf("expected tunnel unavailable, got %v", err)
	}
	if handle != nil {
		t.Fatal("expected nil handle on failure")
	}
}

func TestCreateKeepsURLPrintedBeforeExit(t *testing.T) {
	for i := range 200 {
		launcher := &fakeLauncher{
			lines: []string{"INF |  https://short-lived-host.trycloudflare.com  |"},
			exits: true,
		}
		res, _, err := newProvider(launcher, 5*time.Second).Create(context.Background(), 3010)
		if err != nil {
			t.Fatalf("attempt %d: Create: %v", i, err)
		}
		if res.URL != "https://short-lived-host.trycloudflare.com" || res.Inferred {
			t.Fatalf("attempt %d: unexpected result %+v", i, res)
		}
	}
}

func TestCreateInfersURLWhenEstablishedBeforeExit(t *testing.T) {
	for i := range 50 {
		launcher := &fakeLauncher{
			lines: []string{"INF Registered tunnel connection connIndex=0"},
			exits: true,
		}
		res, _, err := newProvider(launcher, 5*time.Second).Create(context.Background(), 3011)
		if err != nil {
			t.Fatalf("attempt %d: Create: %v", i, err)
		}
		if !res.Inferred {
			t.Fatalf("attempt %d: expected inferred URL, got %+v", i, res)
		}
	}
}

func TestCreateTimesOutAndTerminates(t *testing.T) {
	launcher := &fakeLauncher{lines: []string{"INF starting"}}
	start := time.Now()
	_, _, err := newProvider(launcher, 200*time.Millisecond).Create(context.Background(), 3006)
	if !errors.Is(err, faults.ErrTunnelUnavailable) {
		t.Fatalf("expected tunnel unavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
	if launcher.proc.terminations() != 1 {
		t.Fatalf("expected process to be terminated once, got %d", launcher.proc.terminations())
	}
}

func TestCreateHonoursCancellation(t *testing.T) {
	launcher := &fakeLauncher{}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, _, err := newProvider(launcher, 10*time.Second).Create(ctx, 3007)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestCreateReportsLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{launchFn: func() error { return errors.New("exec: not found") }}
	_, _, err := newProvider(launcher, time.Second).Create(context.Background(), 3008)
	if !errors.Is(err, faults.ErrTunnelUnavailable) {
		t.Fatalf("expected tunnel unavailable, got %v", err)
	}
}

func TestCreateWithRealProcessGroup(t *testing.T) {
	dir := t.TempDir()
	binary := testsupport.WriteStub(t, dir, "cloudflared",
		"echo 'INF |  https://stub-tunnel-host.trycloudflare.com  |' >&2\nsleep 300 &\nwait")

	provider := tunnel.NewCloudflared(tunnel.CloudflaredOptions{Binary: binary, Timeout: 5 * time.Second})
	if !provider.Available() {
		t.Fatal("expected stub binary to be available")
	}
	res, handle, err := provider.Create(context.Background(), 3009)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.URL != "https://stub-tunnel-host.trycloudflare.com" {
		t.Fatalf("unexpected URL %q", res.URL)
	}
	if err := handle.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("tunnel process group did not exit")
	}
	if err := handle.Terminate(); err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
}

func TestAvailableFalseForMissingBinary(t *testing.T) {
	provider := tunnel.NewCloudflared(tunnel.CloudflaredOptions{Binary: "/nonexistent/cloudflared"})
	if provider.Available() {
		t.Fatal("expected missing binary to be unavailable")
	}
}
