package api_test

import (
	"errors"
	"testing"
	"time"

	"sitehost/internal/api"
	"sitehost/internal/deploy"
	"sitehost/internal/faults"
	"sitehost/internal/registry"
	"sitehost/internal/workspace"
)

func TestDeployFailureEchoesReceivedFiles(t *testing.T) {
	err := faults.New(faults.KindInvalidInput, "index.html is required", nil)
	files := []workspace.File{{Name: "app.js", Content: "x"}, {Name: "style.css", Content: "y"}}

	body := api.DeployFailure(err, files, true)
	if body.Success || body.Kind != "invalid_input" {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(body.ReceivedFiles) != 2 || body.ReceivedFiles[1] != "style.css" {
		t.Fatalf("unexpected received files %v", body.ReceivedFiles)
	}
	if body.Debug == nil || body.Debug.FileCount != 2 || !body.Debug.FilesProvided {
		t.Fatalf("unexpected debug %+v", body.Debug)
	}
}

func TestDeployFailureClassifiesWrappedErrors(t *testing.T) {
	inner := faults.New(faults.KindExhaustedRange, "no free port", nil)
	body := api.DeployFailure(errors.Join(errors.New("deploy"), inner), nil, false)
	if body.Kind != "exhausted_range" {
		t.Fatalf("expected exhausted_range, got %q", body.Kind)
	}
	if body.Debug.FilesProvided || body.ReceivedFiles == nil {
		t.Fatalf("expected empty but non-nil echo, got %+v", body)
	}
}

func TestFromReportFormatsTimesAndFiles(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("x", 3600))
	project := api.FromReport(deploy.Report{
		ProjectID:   "project_1_a",
		Port:        3005,
		URL:         "http://localhost:3005",
		TunnelState: registry.TunnelInferred,
		Status:      registry.StatusLive,
		CreatedAt:   created,
	})
	if project.CreatedAt != "2026-03-01T11:30:00.000Z" {
		t.Fatalf("unexpected createdAt %q", project.CreatedAt)
	}
	if project.Files == nil {
		t.Fatal("expected files to encode as an empty list")
	}
	if project.TunnelState != "inferred" || project.Status != "live" {
		t.Fatalf("unexpected states %+v", project)
	}
	if api.FormatTime(time.Time{}) != "" {
		t.Fatal("expected zero time to format empty")
	}
}
