package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sitehost/internal/api"
	"sitehost/internal/deploy"
	"sitehost/internal/faults"
	"sitehost/internal/logging"
	"sitehost/internal/workspace"
)

// maxDeployBody caps a deploy request body.
const maxDeployBody = 32 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(correlate)
	router.Use(s.instrument)
	router.Use(middleware.Recoverer)
	router.Use(corsHandler())

	router.Route("/api/projects", func(r chi.Router) {
		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleDeploy)
		r.Get("/{projectID}/status", s.handleProjectStatus)
		r.Delete("/{projectID}", s.handleTeardown)
	})
	router.Get("/health", s.handleHealth)
	router.Method(http.MethodGet, "/metrics", s.daemon.metrics.Handler())
	return router
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		_ = s.server.Close()
	}
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files *[]workspace.File `json:"files"`
	}
	body := http.MaxBytesReader(w, r.Body, maxDeployBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		failure := faults.New(faults.KindInvalidInput, "request body is not valid JSON", err)
		s.writeJSON(w, http.StatusBadRequest, api.DeployFailure(failure, nil, false))
		return
	}

	var files []workspace.File
	provided := req.Files != nil
	if provided {
		files = *req.Files
	}

	report, err := s.daemon.manager.Deploy(r.Context(), files)
	if err != nil {
		logging.WithContext(r.Context(), s.log()).Warn("deploy rejected",
			logging.String("kind", string(deploy.KindOf(err))),
			logging.Int("file_count", len(files)),
			logging.Error(err),
		)
		s.writeJSON(w, deployStatusCode(err), api.DeployFailure(err, files, provided))
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeployResponseFrom(report))
}

func (s *apiServer) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	reports := s.daemon.manager.List()
	projects := make([]api.Project, 0, len(reports))
	for _, report := range reports {
		projects = append(projects, api.FromReport(report))
	}
	s.writeJSON(w, http.StatusOK, api.ProjectListResponse{Projects: projects})
}

func (s *apiServer) handleProjectStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.manager.Status(chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromReport(report))
}

func (s *apiServer) handleTeardown(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.manager.Teardown(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TeardownResponse{Success: true})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	deployments := make([]api.Deployment, 0, len(status.Deployments))
	for _, report := range status.Deployments {
		deployments = append(deployments, api.DeploymentFrom(report))
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:       "ok",
		PID:          status.PID,
		StartedAt:    api.FormatTime(status.StartedAt),
		Tunnels:      status.Tunnels,
		Deployments:  deployments,
		Dependencies: api.FromDependencies(status.Dependencies),
	})
}

func deployStatusCode(err error) int {
	switch deploy.KindOf(err) {
	case deploy.KindInvalidInput:
		return http.StatusBadRequest
	case deploy.KindExhaustedRange:
		return http.StatusServiceUnavailable
	case deploy.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, deployStatusCode(err), api.ErrorResponse{
		Error: err.Error(),
		Kind:  string(deploy.KindOf(err)),
	})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
