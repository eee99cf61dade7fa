package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDeploy()
	c.normalizeTunnel()
	if c.Daemon.ShutdownTimeoutSeconds <= 0 {
		c.Daemon.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if value, ok := os.LookupEnv("SITEHOST_API_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIBind = value
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeDeploy() {
	if c.Deploy.BasePort <= 0 {
		c.Deploy.BasePort = defaultBasePort
	}
	if c.Deploy.MaxProbeAttempts <= 0 {
		c.Deploy.MaxProbeAttempts = defaultMaxProbeAttempts
	}
	if c.Deploy.BindRetries <= 0 {
		c.Deploy.BindRetries = defaultBindRetries
	}
	c.Deploy.EntryDocument = strings.ToLower(strings.TrimSpace(c.Deploy.EntryDocument))
	if c.Deploy.EntryDocument == "" {
		c.Deploy.EntryDocument = defaultEntryDocument
	}
	c.Deploy.PublicHost = strings.TrimSpace(c.Deploy.PublicHost)
	if c.Deploy.PublicHost == "" {
		c.Deploy.PublicHost = defaultPublicHost
	}
	c.Deploy.ListenHost = strings.TrimSpace(c.Deploy.ListenHost)
}

func (c *Config) normalizeTunnel() {
	if value, ok := os.LookupEnv("SITEHOST_TUNNEL_BINARY"); ok && strings.TrimSpace(value) != "" {
		c.Tunnel.Binary = value
	}
	c.Tunnel.Binary = strings.TrimSpace(c.Tunnel.Binary)
	if c.Tunnel.Binary == "" {
		c.Tunnel.Binary = defaultTunnelBinary
	}
	if c.Tunnel.TimeoutSeconds <= 0 {
		c.Tunnel.TimeoutSeconds = defaultTunnelTimeoutSeconds
	}
	if c.Tunnel.Retries < 0 {
		c.Tunnel.Retries = 0
	}
	if c.Tunnel.RetryDelaySeconds <= 0 {
		c.Tunnel.RetryDelaySeconds = defaultTunnelRetryDelay
	}
	if c.Tunnel.LaunchesPerMinute <= 0 {
		c.Tunnel.LaunchesPerMinute = defaultTunnelLaunchesPerMin
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
