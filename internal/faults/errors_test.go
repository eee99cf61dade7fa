package faults_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"sitehost/internal/faults"
)

func TestErrorMatchesMarker(t *testing.T) {
	base := errors.New("address already in use")
	err := faults.New(faults.KindBindError, "listen", base).With("port", 3003)

	if !errors.Is(err, faults.ErrBind) {
		t.Fatalf("expected bind marker, got %v", err)
	}
	if errors.Is(err, faults.ErrNotFound) {
		t.Fatal("unexpected not-found match")
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected cause to be retained, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"bind_error", "listen", "port=3003", "already in use"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("deploy: %w", faults.New(faults.KindExhaustedRange, "no ports", nil))
	if got := faults.KindOf(wrapped); got != faults.KindExhaustedRange {
		t.Fatalf("expected exhausted_range, got %s", got)
	}
	if got := faults.KindOf(fmt.Errorf("lookup: %w", faults.ErrNotFound)); got != faults.KindNotFound {
		t.Fatalf("expected not_found from bare marker, got %s", got)
	}
	if got := faults.KindOf(errors.New("boom")); got != faults.KindInternal {
		t.Fatalf("expected internal, got %s", got)
	}
	if got := faults.KindOf(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %s", got)
	}
}
