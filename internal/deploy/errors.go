package deploy

import "sitehost/internal/faults"

// Error is the classified failure returned by Manager operations.
type Error = faults.Error

// Kind is the machine-readable failure class of an Error.
type Kind = faults.Kind

const (
	KindInvalidInput      = faults.KindInvalidInput
	KindBindError         = faults.KindBindError
	KindExhaustedRange    = faults.KindExhaustedRange
	KindServerStartError  = faults.KindServerStartError
	KindTunnelUnavailable = faults.KindTunnelUnavailable
	KindNotFound          = faults.KindNotFound
)

// KindOf reports the failure class of err.
func KindOf(err error) Kind { return faults.KindOf(err) }
