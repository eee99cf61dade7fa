package api

import (
	"time"

	"sitehost/internal/deploy"
	"sitehost/internal/deps"
	"sitehost/internal/workspace"
)

// FormatTime renders t the way every payload does. Zero renders empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromReport converts a deployment report.
func FromReport(r deploy.Report) Project {
	files := r.Files
	if files == nil {
		files = []string{}
	}
	return Project{
		ProjectID:   r.ProjectID,
		Port:        r.Port,
		URL:         r.URL,
		PublicURL:   r.PublicURL,
		TunnelState: string(r.TunnelState),
		Status:      string(r.Status),
		CreatedAt:   FormatTime(r.CreatedAt),
		Files:       files,
	}
}

// DeployResponseFrom converts a successful deploy report.
func DeployResponseFrom(r deploy.Report) DeployResponse {
	return DeployResponse{
		Success:     true,
		ProjectID:   r.ProjectID,
		Port:        r.Port,
		URL:         r.URL,
		PublicURL:   r.PublicURL,
		TunnelState: string(r.TunnelState),
	}
}

// DeploymentFrom converts a report into its health summary.
func DeploymentFrom(r deploy.Report) Deployment {
	return Deployment{
		ProjectID: r.ProjectID,
		Port:      r.Port,
		URL:       r.URL,
		PublicURL: r.PublicURL,
		CreatedAt: FormatTime(r.CreatedAt),
	}
}

// DeployFailure builds the error body for a failed deploy, echoing the
// received file names so clients can see what arrived.
func DeployFailure(err error, files []workspace.File, provided bool) ErrorResponse {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return ErrorResponse{
		Success:       false,
		Error:         err.Error(),
		Kind:          string(deploy.KindOf(err)),
		ReceivedFiles: names,
		Debug: &DeployDebug{
			FilesProvided: provided,
			FileCount:     len(files),
			FileNames:     names,
		},
	}
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, s := range statuses {
		out[i] = DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Version:     s.Version,
			Detail:      s.Detail,
		}
	}
	return out
}
