// Package api defines the wire format of the control API and a client for it.
//
// DTOs use camelCase JSON tags so browser front ends can consume them
// directly. Timestamps are RFC3339 with milliseconds. Converters translate
// deployment reports and dependency checks into these types; the CLI talks to
// the daemon exclusively through Client.
package api
