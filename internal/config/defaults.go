package config

const (
	defaultConfigPath             = "~/.config/sitehost/config.toml"
	defaultWorkspaceDir           = "~/.local/share/sitehost/projects"
	defaultLogDir                 = "~/.local/share/sitehost/logs"
	defaultAPIBind                = "127.0.0.1:3001"
	defaultBasePort               = 3003
	defaultMaxPort                = 0
	defaultMaxProbeAttempts       = 1000
	defaultBindRetries            = 5
	defaultEntryDocument          = "index.html"
	defaultPublicHost             = "localhost"
	defaultListenHost             = ""
	defaultTunnelEnabled          = true
	defaultTunnelBinary           = "cloudflared"
	defaultTunnelTimeoutSeconds   = 15
	defaultTunnelRetries          = 2
	defaultTunnelRetryDelay       = 10
	defaultTunnelLaunchesPerMin   = 12
	defaultShutdownTimeoutSeconds = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Deploy: Deploy{
			BasePort:         defaultBasePort,
			MaxPort:          defaultMaxPort,
			MaxProbeAttempts: defaultMaxProbeAttempts,
			BindRetries:      defaultBindRetries,
			EntryDocument:    defaultEntryDocument,
			PublicHost:       defaultPublicHost,
			ListenHost:       defaultListenHost,
		},
		Tunnel: Tunnel{
			Enabled:           defaultTunnelEnabled,
			Binary:            defaultTunnelBinary,
			TimeoutSeconds:    defaultTunnelTimeoutSeconds,
			Retries:           defaultTunnelRetries,
			RetryDelaySeconds: defaultTunnelRetryDelay,
			LaunchesPerMinute: defaultTunnelLaunchesPerMin,
		},
		Daemon: Daemon{
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
