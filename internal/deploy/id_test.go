package deploy

import (
	"strings"
	"testing"
	"time"
)

func TestNewProjectIDFormatAndUniqueness(t *testing.T) {
	now := time.UnixMilli(1743274629516)
	seen := map[string]bool{}
	for range 1000 {
		id := newProjectID(now)
		if !strings.HasPrefix(id, "project_1743274629516_") {
			t.Fatalf("unexpected id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
