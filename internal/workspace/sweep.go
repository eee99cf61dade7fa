package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"sitehost/internal/logging"
)

// ProjectDirPrefix marks directories the store created. Sweeps never touch
// anything else under the root.
const ProjectDirPrefix = "project_"

// SweepResult contains the outcome of an orphan sweep.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a directory path with its removal error.
type SweepError struct {
	Path  string
	Error error
}

// SweepOrphans removes project directories whose id is not in active. A
// daemon that crashed leaves its workspaces behind; nothing is persisted, so
// at startup every one of them is an orphan.
func (s *Store) SweepOrphans(active map[string]struct{}) SweepResult {
	result := SweepResult{}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: s.root, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), ProjectDirPrefix) {
			continue
		}
		if _, ok := active[entry.Name()]; ok {
			continue
		}

		dirPath := filepath.Join(s.root, entry.Name())
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: dirPath, Error: err})
			s.logger.Warn("failed to remove orphaned project directory",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_sweep_failed"),
				logging.String(logging.FieldErrorHint, "check workspace_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		s.logger.Info("removed orphaned project directory",
			logging.String("path", dirPath),
			logging.String(logging.FieldEventType, "workspace_sweep"),
		)
	}

	return result
}
