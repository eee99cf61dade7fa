package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// IndexHTML is the entry document used by test sites.
const IndexHTML = "<!doctype html><html><body><h1>hello from sitehost</h1></body></html>"

// WriteTree writes name→content pairs beneath dir, creating parents.
func WriteTree(t testing.TB, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		target := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", target, err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", target, err)
		}
	}
}
