// Package faults classifies deployment failures.
//
// Every layer tags its errors with one of the exported markers so callers can
// branch with errors.Is, and the control API maps kinds to status codes
// without parsing messages.
package faults

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is the stable, machine-readable failure class reported to clients.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindBindError         Kind = "bind_error"
	KindExhaustedRange    Kind = "exhausted_range"
	KindServerStartError  Kind = "server_start_error"
	KindTunnelUnavailable Kind = "tunnel_unavailable"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrBind              = errors.New("bind error")
	ErrExhaustedRange    = errors.New("port range exhausted")
	ErrServerStart       = errors.New("server start error")
	ErrTunnelUnavailable = errors.New("tunnel unavailable")
	ErrNotFound          = errors.New("not found")
)

var markers = map[Kind]error{
	KindInvalidInput:      ErrInvalidInput,
	KindBindError:         ErrBind,
	KindExhaustedRange:    ErrExhaustedRange,
	KindServerStartError:  ErrServerStart,
	KindTunnelUnavailable: ErrTunnelUnavailable,
	KindNotFound:          ErrNotFound,
}

// Error is a classified failure with optional diagnostic context.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteByte(')')
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the marker matching e.Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	marker, ok := markers[e.Kind]
	return ok && marker == target
}

// New builds a classified error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// With attaches a context key. It returns e for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf extracts the failure class of err. Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	for kind, marker := range markers {
		if errors.Is(err, marker) {
			return kind
		}
	}
	return KindInternal
}
