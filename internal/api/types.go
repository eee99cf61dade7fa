package api

import "sitehost/internal/workspace"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DeployRequest is the body of POST /api/projects.
type DeployRequest struct {
	Files []workspace.File `json:"files"`
}

// DeployResponse is returned by a successful deploy.
type DeployResponse struct {
	Success     bool   `json:"success"`
	ProjectID   string `json:"projectId"`
	Port        int    `json:"port"`
	URL         string `json:"url"`
	PublicURL   string `json:"publicUrl,omitempty"`
	TunnelState string `json:"tunnelState"`
}

// Project describes one hosted project.
type Project struct {
	ProjectID   string   `json:"projectId"`
	Port        int      `json:"port"`
	URL         string   `json:"url"`
	PublicURL   string   `json:"publicUrl,omitempty"`
	TunnelState string   `json:"tunnelState"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"createdAt"`
	Files       []string `json:"files"`
}

// ProjectListResponse wraps GET /api/projects.
type ProjectListResponse struct {
	Projects []Project `json:"projects"`
}

// TeardownResponse is returned by DELETE /api/projects/{id}.
type TeardownResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success       bool         `json:"success"`
	Error         string       `json:"error"`
	Kind          string       `json:"kind"`
	ReceivedFiles []string     `json:"receivedFiles,omitempty"`
	Debug         *DeployDebug `json:"debug,omitempty"`
}

// DeployDebug echoes what the daemon received on a failed deploy.
type DeployDebug struct {
	FilesProvided bool     `json:"filesProvided"`
	FileCount     int      `json:"fileCount"`
	FileNames     []string `json:"fileNames"`
}

// Deployment is the condensed health view of a project.
type Deployment struct {
	ProjectID string `json:"projectId"`
	Port      int    `json:"port"`
	URL       string `json:"url"`
	PublicURL string `json:"publicUrl,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status       string             `json:"status"`
	PID          int                `json:"pid"`
	StartedAt    string             `json:"startedAt,omitempty"`
	Tunnels      bool               `json:"tunnelsEnabled"`
	Deployments  []Deployment       `json:"deployments"`
	Dependencies []DependencyStatus `json:"dependencies"`
}
