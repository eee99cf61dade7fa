package main

import (
	"strings"
	"testing"

	"sitehost/internal/api"
)

func TestRenderStatusLineColorize(t *testing.T) {
	plain := renderStatusLine("Public URL", statusWarn, "pending", false)
	if strings.Contains(plain, "\x1b[") {
		t.Fatalf("expected no escape codes, got %q", plain)
	}
	if !strings.Contains(plain, "[WARN] pending") {
		t.Fatalf("unexpected line %q", plain)
	}
	colored := renderStatusLine("Public URL", statusWarn, "pending", true)
	if !strings.HasPrefix(colored, ansiYellow) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected yellow line, got %q", colored)
	}
}

func TestTunnelStatusKind(t *testing.T) {
	cases := map[string]statusKind{
		"ready":       statusOK,
		"inferred":    statusWarn,
		"pending":     statusWarn,
		"disabled":    statusInfo,
		"unavailable": statusError,
	}
	for state, want := range cases {
		if got := tunnelStatusKind(state); got != want {
			t.Fatalf("%s: got %v want %v", state, got, want)
		}
	}
}

func TestPublicSummary(t *testing.T) {
	p := api.Project{PublicURL: "https://a.trycloudflare.com", TunnelState: "inferred"}
	if got := publicSummary(p); got != "https://a.trycloudflare.com (inferred)" {
		t.Fatalf("unexpected summary %q", got)
	}
	p.TunnelState = "unavailable"
	p.PublicURL = ""
	if got := publicSummary(p); got != "unavailable" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestRenderProjectTable(t *testing.T) {
	out := renderProjectTable([]api.Project{{
		ProjectID:   "project_1_abc",
		Port:        3003,
		URL:         "http://localhost:3003",
		TunnelState: "disabled",
		Files:       []string{"index.html"},
	}})
	for _, want := range []string{"PROJECT", "project_1_abc", "3003", "http://localhost:3003", "disabled"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}
