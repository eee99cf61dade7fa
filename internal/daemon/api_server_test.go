package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"sitehost/internal/api"
	"sitehost/internal/faults"
	"sitehost/internal/workspace"
)

func TestAPIProjectLifecycle(t *testing.T) {
	_, client := startDaemon(t, testConfig(t))
	ctx := context.Background()

	deployed, err := client.Deploy(ctx, siteFiles())
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !deployed.Success || !strings.HasPrefix(deployed.ProjectID, "project_") {
		t.Fatalf("unexpected deploy response %+v", deployed)
	}
	if deployed.TunnelState != "disabled" {
		t.Fatalf("expected disabled tunnel state, got %q", deployed.TunnelState)
	}

	project, err := client.Status(ctx, deployed.ProjectID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if project.Port != deployed.Port || project.Status != "live" {
		t.Fatalf("unexpected project %+v", project)
	}
	if len(project.Files) != 2 {
		t.Fatalf("expected 2 files, got %v", project.Files)
	}

	projects, err := client.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(projects) != 1 || projects[0].ProjectID != deployed.ProjectID {
		t.Fatalf("unexpected list %+v", projects)
	}

	if err := client.Teardown(ctx, deployed.ProjectID); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if _, err := client.Status(ctx, deployed.ProjectID); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found after teardown, got %v", err)
	}
	if err := client.Teardown(ctx, deployed.ProjectID); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected second teardown to be not found, got %v", err)
	}
}

func TestAPIDeployRejectsMissingIndex(t *testing.T) {
	d, _ := startDaemon(t, testConfig(t))
	body := `{"files":[{"name":"app.js","content":"x","language":"javascript"}]}`
	resp, err := http.Post("http://"+d.APIAddress()+"/api/projects", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var failure api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if failure.Success || failure.Kind != "invalid_input" {
		t.Fatalf("unexpected failure body %+v", failure)
	}
	if len(failure.ReceivedFiles) != 1 || failure.ReceivedFiles[0] != "app.js" {
		t.Fatalf("expected received files echoed, got %v", failure.ReceivedFiles)
	}
	if failure.Debug == nil || !failure.Debug.FilesProvided || failure.Debug.FileCount != 1 {
		t.Fatalf("unexpected debug block %+v", failure.Debug)
	}
	if len(d.Manager().List()) != 0 {
		t.Fatal("expected no project registered after rejected deploy")
	}
}

func TestAPIDeployRejectsMalformedBodies(t *testing.T) {
	d, _ := startDaemon(t, testConfig(t))
	cases := map[string]string{
		"invalid json":  `{"files":`,
		"missing files": `{}`,
		"empty body":    ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post("http://"+d.APIAddress()+"/api/projects", "application/json", strings.NewReader(body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			var failure api.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if failure.Debug == nil || failure.Debug.FilesProvided {
				t.Fatalf("expected filesProvided=false, got %+v", failure.Debug)
			}
		})
	}
}

func TestAPIUnknownProjectIsNotFound(t *testing.T) {
	d, _ := startDaemon(t, testConfig(t))
	resp, err := http.Get("http://" + d.APIAddress() + "/api/projects/project_0_missing/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var failure api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if failure.Kind != "not_found" {
		t.Fatalf("expected not_found kind, got %q", failure.Kind)
	}
}

func TestAPICORSPreflight(t *testing.T) {
	d, _ := startDaemon(t, testConfig(t))
	req, err := http.NewRequest(http.MethodOptions, "http://"+d.APIAddress()+"/api/projects", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected successful preflight, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Fatalf("expected POST to be allowed, got %q", got)
	}
}

func TestAPICORSHeadersOnSimpleRequest(t *testing.T) {
	d, _ := startDaemon(t, testConfig(t))
	req, err := http.NewRequest(http.MethodGet, "http://"+d.APIAddress()+"/health", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Origin", "http://example.test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

func TestMetricsExposeRequestCounts(t *testing.T) {
	d, client := startDaemon(t, testConfig(t))
	ctx := context.Background()
	if _, err := client.Deploy(ctx, []workspace.File{{Name: "index.html", Content: "ok"}}); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if _, err := client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}

	resp, err := http.Get("http://" + d.APIAddress() + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`sitehost_api_http_requests_total{method="GET",route="/health",status="200"} 1`,
		`sitehost_deploy_results_total{outcome="success"} 1`,
		"sitehost_projects_live 1",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}
