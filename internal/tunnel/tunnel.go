package tunnel

import (
	"context"
	"regexp"
	"strings"
)

// Result is the outcome of a successful tunnel launch.
type Result struct {
	URL string
	// Inferred is set when URL was synthesized rather than read from the tool.
	Inferred bool
	// Name identifies the tunnel in logs and in the synthetic fallback URL.
	Name string
}

// Handle controls a running tunnel.
type Handle interface {
	// Terminate stops the tunnel. It is safe to call more than once and after
	// the tunnel has already exited.
	Terminate() error
	// Done is closed once the tunnel process has exited.
	Done() <-chan struct{}
}

// Provider creates tunnels for local ports.
type Provider interface {
	Create(ctx context.Context, port int) (Result, Handle, error)
	// Available reports whether the provider can launch tunnels at all.
	Available() bool
}

var (
	publicURLPattern = regexp.MustCompile(`(?i)https://[a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:trycloudflare\.com|loca\.lt|ngrok-free\.app|ngrok\.io)\b`)
	establishedLine  = regexp.MustCompile(`(?i)registered tunnel connection|connection [0-9a-z-]+ registered|your url is`)
)

// reservedHosts are service endpoints that show up in tool diagnostics but
// never serve a project.
var reservedHosts = map[string]struct{}{
	"api.trycloudflare.com": {},
}

// lineEvent classifies one line of tool output.
type lineEvent int

const (
	eventNone lineEvent = iota
	eventURL
	eventEstablished
)

// classifyLine reports what a line of tool output means for tunnel readiness.
// A URL match takes precedence over an established signal on the same line.
func classifyLine(line string) (lineEvent, string) {
	for _, match := range publicURLPattern.FindAllString(line, -1) {
		host := strings.ToLower(strings.TrimPrefix(strings.ToLower(match), "https://"))
		if _, reserved := reservedHosts[host]; reserved {
			continue
		}
		return eventURL, strings.TrimRight(match, "/")
	}
	if establishedLine.MatchString(line) {
		return eventEstablished, ""
	}
	return eventNone, ""
}

// FallbackURL is the URL assumed for a quick tunnel named name when the tool
// never prints one.
func FallbackURL(name string) string {
	return "https://" + name + ".trycloudflare.com"
}
