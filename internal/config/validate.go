package config

import (
	"errors"
	"fmt"
	"net"
	"path"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDeploy(); err != nil {
		return err
	}
	if err := c.validateTunnel(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q must be host:port: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateDeploy() error {
	if err := ensurePositiveMap(map[string]int{
		"deploy.base_port":          c.Deploy.BasePort,
		"deploy.max_probe_attempts": c.Deploy.MaxProbeAttempts,
		"deploy.bind_retries":       c.Deploy.BindRetries,
	}); err != nil {
		return err
	}
	if c.Deploy.BasePort > 65535 {
		return errors.New("deploy.base_port must be <= 65535")
	}
	if c.Deploy.MaxPort != 0 {
		if c.Deploy.MaxPort < c.Deploy.BasePort {
			return errors.New("deploy.max_port must be >= deploy.base_port (or 0 for unbounded)")
		}
		if c.Deploy.MaxPort > 65535 {
			return errors.New("deploy.max_port must be <= 65535")
		}
	}
	entry := c.Deploy.EntryDocument
	if entry == "" || path.IsAbs(entry) || strings.Contains(entry, "..") {
		return fmt.Errorf("deploy.entry_document %q must be a relative file name", entry)
	}
	return nil
}

func (c *Config) validateTunnel() error {
	if !c.Tunnel.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Tunnel.Binary) == "" {
		return errors.New("tunnel.binary must be set when tunnel.enabled is true")
	}
	if c.Tunnel.TimeoutSeconds > 120 {
		return errors.New("tunnel.timeout_seconds must be <= 120")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
