package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"sitehost/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWorkspace := filepath.Join(tempHome, ".local", "share", "sitehost", "projects")
	if cfg.Paths.WorkspaceDir != wantWorkspace {
		t.Fatalf("unexpected workspace dir: got %q want %q", cfg.Paths.WorkspaceDir, wantWorkspace)
	}
	if cfg.Paths.APIBind != "127.0.0.1:3001" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Deploy.BasePort != 3003 {
		t.Fatalf("unexpected base port: %d", cfg.Deploy.BasePort)
	}
	if cfg.Deploy.EntryDocument != "index.html" {
		t.Fatalf("unexpected entry document: %q", cfg.Deploy.EntryDocument)
	}
	if cfg.Tunnel.Binary != "cloudflared" {
		t.Fatalf("unexpected tunnel binary: %q", cfg.Tunnel.Binary)
	}
	if got := cfg.TunnelTimeout().Seconds(); got != 15 {
		t.Fatalf("unexpected tunnel timeout: %v", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkspaceDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist", dir)
		}
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	custom := config.Default()
	custom.Paths.WorkspaceDir = "~/sites"
	custom.Deploy.BasePort = 4100
	custom.Deploy.MaxPort = 4200
	custom.Deploy.EntryDocument = "  INDEX.HTML "
	custom.Tunnel.Enabled = false
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.WorkspaceDir != filepath.Join(tempHome, "sites") {
		t.Fatalf("unexpected workspace dir: %q", cfg.Paths.WorkspaceDir)
	}
	if cfg.Deploy.BasePort != 4100 || cfg.Deploy.MaxPort != 4200 {
		t.Fatalf("unexpected port range: %d-%d", cfg.Deploy.BasePort, cfg.Deploy.MaxPort)
	}
	if cfg.Deploy.EntryDocument != "index.html" {
		t.Fatalf("expected entry document to be normalized, got %q", cfg.Deploy.EntryDocument)
	}
	if cfg.Tunnel.Enabled {
		t.Fatal("expected tunnel disabled")
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[deploy]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected parse error for unknown field")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)
	t.Setenv("SITEHOST_API_BIND", "127.0.0.1:9911")
	t.Setenv("SITEHOST_TUNNEL_BINARY", "/opt/bin/cloudflared")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIBind != "127.0.0.1:9911" {
		t.Fatalf("expected api bind override, got %q", cfg.Paths.APIBind)
	}
	if cfg.Tunnel.Binary != "/opt/bin/cloudflared" {
		t.Fatalf("expected tunnel binary override, got %q", cfg.Tunnel.Binary)
	}
	if cfg.APIBaseURL() != "http://127.0.0.1:9911" {
		t.Fatalf("unexpected api base url: %q", cfg.APIBaseURL())
	}
}

func TestValidateRejectsInvertedPortRange(t *testing.T) {
	cfg := config.Default()
	cfg.Deploy.BasePort = 5000
	cfg.Deploy.MaxPort = 4000
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "deploy.max_port") {
		t.Fatalf("expected max_port validation error, got %v", err)
	}
}

func TestValidateRejectsBadEntryDocument(t *testing.T) {
	cfg := config.Default()
	cfg.Deploy.EntryDocument = "../index.html"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected entry document validation error")
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected log level validation error")
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	target := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Deploy.BasePort != 3003 {
		t.Fatalf("unexpected base port from sample: %d", cfg.Deploy.BasePort)
	}
}
