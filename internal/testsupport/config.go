package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sitehost/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Tunnels are disabled and the control API binds an ephemeral port unless an
// option says otherwise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "projects")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Deploy.ListenHost = "127.0.0.1"
	cfgVal.Deploy.PublicHost = "127.0.0.1"
	cfgVal.Tunnel.Enabled = false
	cfgVal.Tunnel.TimeoutSeconds = 2
	cfgVal.Tunnel.RetryDelaySeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPortRange pins project ports to a range known to be free.
func WithPortRange(floor, ceiling int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Deploy.BasePort = floor
		b.cfg.Deploy.MaxPort = ceiling
	}
}

// WithTunnel enables tunnels using binary with the given timeout and retries.
func WithTunnel(binary string, timeoutSeconds, retries int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tunnel.Enabled = true
		b.cfg.Tunnel.Binary = binary
		b.cfg.Tunnel.TimeoutSeconds = timeoutSeconds
		b.cfg.Tunnel.Retries = retries
	}
}

// WithStubbedBinaries writes stub executables that exit successfully for the
// provided names and prepends their directory to PATH. If names is empty,
// cloudflared is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"cloudflared"}
		}
		for _, name := range names {
			WriteStub(b.t, b.binDir(), name, "exit 0")
		}
		b.prependPath()
	}
}

// WithStubTunnel installs a cloudflared stand-in that prints lines to stderr
// and then stays alive until killed. The tunnel binary setting points at it.
func WithStubTunnel(lines ...string) ConfigOption {
	return func(b *configBuilder) {
		var body strings.Builder
		for _, line := range lines {
			body.WriteString("echo '")
			body.WriteString(strings.ReplaceAll(line, "'", `'\''`))
			body.WriteString("' >&2\n")
		}
		body.WriteString("exec sleep 300")
		target := WriteStub(b.t, b.binDir(), "cloudflared", body.String())
		b.cfg.Tunnel.Enabled = true
		b.cfg.Tunnel.Binary = target
	}
}

// WriteStub writes an executable shell script and returns its path.
func WriteStub(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

func (b *configBuilder) binDir() string {
	return filepath.Join(b.baseDir, "bin")
}

func (b *configBuilder) prependPath() {
	b.t.Setenv("PATH", b.binDir()+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceDir)
}
