package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sitehost/internal/api"
	"sitehost/internal/faults"
	"sitehost/internal/workspace"
)

func TestClientDeployRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/projects" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req api.DeployRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Files) != 1 || req.Files[0].Name != "index.html" {
			t.Errorf("unexpected files %+v", req.Files)
		}
		_ = json.NewEncoder(w).Encode(api.DeployResponse{Success: true, ProjectID: "project_1_x", Port: 3003, URL: "http://localhost:3003", TunnelState: "pending"})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL+"/", nil)
	resp, err := client.Deploy(context.Background(), []workspace.File{{Name: "index.html", Content: "x"}})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if resp.ProjectID != "project_1_x" || resp.Port != 3003 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestClientMapsErrorKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "project not found", Kind: "not_found"})
	}))
	defer srv.Close()

	err := api.NewClient(srv.URL, nil).Teardown(context.Background(), "project_missing")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected api error with 404, got %v", err)
	}
	if !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
	if api.IsUnreachable(err) {
		t.Fatal("a 404 is not an unreachable daemon")
	}
}

func TestClientReportsUnreachableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := api.NewClient(base, nil).Health(context.Background())
	if !api.IsUnreachable(err) {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}
