package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"sitehost/internal/faults"
	"sitehost/internal/logging"
)

const (
	defaultTimeout = 15 * time.Second
	// establishedGrace is how long to keep waiting for a hostname once the
	// tool reports a registered connection.
	establishedGrace = 1500 * time.Millisecond
)

// CloudflaredOptions configures a cloudflared provider.
type CloudflaredOptions struct {
	Binary            string
	Timeout           time.Duration
	LaunchesPerMinute int
	Logger            *slog.Logger
}

// Option customizes a Cloudflared provider.
type Option func(*Cloudflared)

// WithLauncher injects a custom process launcher (primarily for tests).
func WithLauncher(l Launcher) Option {
	return func(c *Cloudflared) {
		if l != nil {
			c.launcher = l
		}
	}
}

// WithNameGenerator overrides tunnel name generation.
func WithNameGenerator(fn func() string) Option {
	return func(c *Cloudflared) {
		if fn != nil {
			c.newName = fn
		}
	}
}

// Cloudflared launches cloudflared quick tunnels.
type Cloudflared struct {
	binary   string
	timeout  time.Duration
	limiter  *rate.Limiter
	launcher Launcher
	newName  func() string
	logger   *slog.Logger
}

// NewCloudflared constructs a provider. It does not check that the binary exists.
func NewCloudflared(opts CloudflaredOptions, options ...Option) *Cloudflared {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = "cloudflared"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	perMinute := opts.LaunchesPerMinute
	if perMinute <= 0 {
		perMinute = 12
	}
	c := &Cloudflared{
		binary:   binary,
		timeout:  timeout,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), min(perMinute, 4)),
		launcher: processLauncher{},
		newName:  defaultName,
		logger:   opts.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "tunnel")
	return c
}

func defaultName() string {
	return "sitehost-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Available reports whether the binary resolves on PATH or as a path.
func (c *Cloudflared) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Binary returns the configured executable.
func (c *Cloudflared) Binary() string { return c.binary }

// Create launches a quick tunnel for port and waits until a public URL is
// known, the process exits, or the timeout elapses. On failure the process
// group is already terminated.
func (c *Cloudflared) Create(ctx context.Context, port int) (Result, Handle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, nil, faults.New(faults.KindTunnelUnavailable, "launch rate limit", err).With("port", port)
	}

	name := c.newName()
	logger := c.logger.With(logging.Port(port), logging.String("tunnel", name))

	urls := make(chan string, 1)
	established := make(chan struct{}, 1)
	onLine := func(line string) {
		logger.Debug("tunnel output", logging.String("line", line))
		event, url := classifyLine(line)
		switch event {
		case eventURL:
			select {
			case urls <- url:
			default:
			}
		case eventEstablished:
			select {
			case established <- struct{}{}:
			default:
			}
		}
	}

	args := []string{"tunnel", "--url", "http://127.0.0.1:" + strconv.Itoa(port)}
	proc, err := c.launcher.Launch(c.binary, args, onLine)
	if err != nil {
		return Result{}, nil, faults.New(faults.KindTunnelUnavailable, "start tunnel process", err).With("binary", c.binary)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	var grace <-chan time.Time

	fail := func(message string, cause error) (Result, Handle, error) {
		if termErr := proc.Terminate(); termErr != nil {
			logger.Debug("terminate after failed launch", logging.Error(termErr))
		}
		return Result{}, nil, faults.New(faults.KindTunnelUnavailable, message, cause).
			With("port", port).
			With("tunnel", name)
	}

	inferred := func() (Result, Handle, error) {
		url := FallbackURL(name)
		logging.WarnWithContext(logger, "tunnel established without reported hostname", "tunnel_url_inferred",
			logging.String("public_url", url),
			logging.String(logging.FieldImpact, "public URL is a best guess and may not resolve"),
			logging.String(logging.FieldErrorHint, "check cloudflared version and output"),
		)
		return Result{URL: url, Inferred: true, Name: name}, proc, nil
	}

	for {
		select {
		case url := <-urls:
			logger.Info("tunnel ready", logging.String("public_url", url))
			return Result{URL: url, Name: name}, proc, nil
		case <-established:
			if grace == nil {
				grace = time.After(establishedGrace)
			}
		case <-grace:
			return inferred()
		case <-proc.Done():
			// Output is fully delivered before Done closes, so a URL or
			// established signal may still be queued.
			select {
			case url := <-urls:
				logger.Info("tunnel ready", logging.String("public_url", url))
				return Result{URL: url, Name: name}, proc, nil
			default:
			}
			select {
			case <-established:
				return inferred()
			default:
			}
			if grace != nil {
				return inferred()
			}
			return fail("tunnel process exited before reporting a URL", proc.Err())
		case <-timer.C:
			return fail(fmt.Sprintf("no public URL within %s", c.timeout), context.DeadlineExceeded)
		case <-ctx.Done():
			return fail("tunnel launch cancelled", ctx.Err())
		}
	}
}
