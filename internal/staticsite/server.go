// Package staticsite serves one project directory over HTTP.
//
// Every response disables caching and allows embedding in any frame, since
// projects are previewed inside other pages and change on every deploy.
// Unknown paths fall back to the entry document so client-side routers work.
package staticsite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"sitehost/internal/faults"
	"sitehost/internal/logging"
)

// Options configures a project server.
type Options struct {
	Dir       string
	Port      int
	Host      string
	ProjectID string
	// EntryDocument is served for directory requests and unmatched paths.
	EntryDocument string
	Logger        *slog.Logger
}

// Server is a running project server bound to one port.
type Server struct {
	port     int
	dir      string
	root     *os.Root
	entry    string
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// Start binds the port synchronously and begins serving in the background.
// A port already in use yields a bind_error; any other failure a
// server_start_error.
func Start(opts Options) (*Server, error) {
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, faults.New(faults.KindServerStartError, "invalid port", nil).With("port", opts.Port)
	}
	entry := strings.TrimSpace(opts.EntryDocument)
	if entry == "" {
		entry = "index.html"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "staticsite").With(
		logging.ProjectID(opts.ProjectID),
		logging.Port(opts.Port),
	)

	root, err := os.OpenRoot(opts.Dir)
	if err != nil {
		return nil, faults.New(faults.KindServerStartError, "open project directory", err).With("dir", opts.Dir)
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		_ = root.Close()
		kind := faults.KindServerStartError
		if errors.Is(err, syscall.EADDRINUSE) {
			kind = faults.KindBindError
		}
		return nil, faults.New(kind, "listen", err).With("port", opts.Port)
	}

	s := &Server{
		port:     opts.Port,
		dir:      opts.Dir,
		root:     root,
		entry:    entry,
		listener: listener,
		logger:   logger,
		done:     make(chan struct{}),
	}
	s.server = &http.Server{
		Handler:           s.logRequests(withProjectHeaders(http.HandlerFunc(s.serveFile))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "project server stopped unexpectedly", "project_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "tear down and redeploy the project"),
			)
		}
	}()

	s.logger.Debug("project server listening", logging.String("addr", listener.Addr().String()))
	return s, nil
}

// Port returns the bound port.
func (s *Server) Port() int { return s.port }

// Dir returns the served directory.
func (s *Server) Dir() string { return s.dir }

// Stop shuts the server down gracefully, force-closing connections when ctx
// expires. Later calls return the first result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		err := s.server.Shutdown(ctx)
		if err != nil {
			if closeErr := s.server.Close(); closeErr != nil && !errors.Is(closeErr, http.ErrServerClosed) {
				err = errors.Join(err, closeErr)
			} else {
				err = nil
			}
		}
		<-s.done
		if rootErr := s.root.Close(); rootErr != nil {
			err = errors.Join(err, rootErr)
		}
		if err != nil {
			s.stopErr = fmt.Errorf("stop project server: %w", err)
		}
	})
	return s.stopErr
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = s.entry
	}

	for _, candidate := range s.candidates(name) {
		if s.serveIfFile(w, r, candidate) {
			return
		}
	}
	if s.serveIfFile(w, r, s.entry) {
		return
	}
	http.NotFound(w, r)
}

// candidates lists the on-disk names tried for a request path before the
// entry-document fallback. Files are stored lower-cased.
func (s *Server) candidates(name string) []string {
	out := []string{name}
	if lower := strings.ToLower(name); lower != name {
		out = append(out, lower)
	}
	for _, c := range append([]string(nil), out...) {
		out = append(out, path.Join(c, s.entry))
	}
	return out
}

func (s *Server) serveIfFile(w http.ResponseWriter, r *http.Request, name string) bool {
	file, err := s.root.Open(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("open failed", logging.String("path", name), logging.Error(err))
		}
		return false
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	// Zero modtime suppresses Last-Modified and conditional responses.
	http.ServeContent(w, r, info.Name(), time.Time{}, file)
	return true
}

func withProjectHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Set("Surrogate-Control", "no-store")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("X-Frame-Options", "ALLOWALL")
		h.Set("Content-Security-Policy", "frame-ancestors *")
		r.Header.Del("If-None-Match")
		r.Header.Del("If-Modified-Since")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}
