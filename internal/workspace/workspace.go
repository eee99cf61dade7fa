// Package workspace materializes project file sets on disk.
//
// Each project owns exactly one directory directly under the store root. The
// store validates a file set completely before touching the filesystem, so a
// rejected deploy leaves nothing behind.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sitehost/internal/faults"
	"sitehost/internal/logging"
)

// File is one generated file. Language is informational only.
type File struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// Store owns project directories under a common root.
type Store struct {
	root   string
	entry  string
	logger *slog.Logger
	lower  cases.Caser
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEntryDocument overrides the required root document (default index.html).
func WithEntryDocument(name string) Option {
	return func(s *Store) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			s.entry = trimmed
		}
	}
}

// New ensures the root exists and is writable.
func New(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	if err := unix.Access(abs, unix.W_OK|unix.X_OK); err != nil {
		return nil, fmt.Errorf("workspace root %s not writable: %w", abs, err)
	}
	s := &Store{
		root:   abs,
		entry:  "index.html",
		logger: logging.NewNop(),
		lower:  cases.Lower(language.Und),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.entry = s.CanonicalName(s.entry)
	s.logger = logging.NewComponentLogger(s.logger, "workspace")
	return s, nil
}

// Root returns the absolute store root.
func (s *Store) Root() string { return s.root }

// EntryDocument returns the canonical name of the required root document.
func (s *Store) EntryDocument() string { return s.entry }

// CanonicalName lower-cases a file name the way it will be written to disk.
func (s *Store) CanonicalName(name string) string {
	return s.lower.String(strings.TrimSpace(name))
}

// Normalize validates files and returns copies carrying canonical names.
// It performs no filesystem access.
func (s *Store) Normalize(files []File) ([]File, error) {
	if len(files) == 0 {
		return nil, faults.New(faults.KindInvalidInput, "no files provided", nil)
	}
	out := make([]File, 0, len(files))
	seen := make(map[string]int, len(files))
	hasEntry := false
	for i, file := range files {
		if strings.TrimSpace(file.Name) == "" || file.Content == "" {
			return nil, faults.New(faults.KindInvalidInput, "every file needs a name and content", nil).
				With("index", i).
				With("name", file.Name)
		}
		name := s.CanonicalName(file.Name)
		clean, err := safeRelative(name)
		if err != nil {
			return nil, faults.New(faults.KindInvalidInput, err.Error(), nil).With("name", file.Name)
		}
		if prev, dup := seen[clean]; dup {
			return nil, faults.New(faults.KindInvalidInput, "duplicate file name after case normalization", nil).
				With("name", clean).
				With("first_index", prev).
				With("index", i)
		}
		seen[clean] = i
		if clean == s.entry {
			hasEntry = true
		}
		out = append(out, File{Name: clean, Content: file.Content, Language: file.Language})
	}
	if !hasEntry {
		return nil, faults.New(faults.KindInvalidInput, s.entry+" is required", nil)
	}
	return out, nil
}

// Materialize creates a fresh directory for id and writes every file
// verbatim beneath it. files may be raw caller input or the output of
// Normalize; they are normalized here either way, and normalizing twice
// yields the same names. On a write failure the partial directory is removed
// before returning.
func (s *Store) Materialize(id string, files []File) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	normalized, err := s.Normalize(files)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create project directory: %w", err)
	}

	for _, file := range normalized {
		target := filepath.Join(dir, filepath.FromSlash(file.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			s.discard(dir)
			return "", fmt.Errorf("create directory for %s: %w", file.Name, err)
		}
		if err := os.WriteFile(target, []byte(file.Content), 0o644); err != nil {
			s.discard(dir)
			return "", fmt.Errorf("write %s: %w", file.Name, err)
		}
	}

	s.logger.Debug("project materialized",
		logging.ProjectID(id),
		logging.String("dir", dir),
		logging.Int("file_count", len(normalized)),
	)
	return dir, nil
}

// Release removes a project directory recursively. Releasing an absent
// directory succeeds. Paths outside the store root are refused.
func (s *Store) Release(dir string) error {
	if dir == "" {
		return nil
	}
	rel, err := filepath.Rel(s.root, dir)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return fmt.Errorf("refusing to release %q outside workspace root", dir)
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("project directory already absent", logging.String("dir", dir))
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove project directory: %w", err)
	}
	return nil
}

// DirFor returns the directory a project id maps to.
func (s *Store) DirFor(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) discard(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnWithContext(s.logger, "partial project directory not removed", "workspace_cleanup_failed",
			logging.String("dir", dir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale files remain under the workspace root"),
		)
	}
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid project id %q", id)
	}
	return nil
}

func safeRelative(name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(slashed) {
		return "", fmt.Errorf("file name %q must be relative", name)
	}
	clean := path.Clean(slashed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("file name %q escapes the project directory", name)
	}
	return clean, nil
}
