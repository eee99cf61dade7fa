// Package daemon coordinates the long-running sitehost process.
//
// It wires configuration, the deployment manager, and the control API into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon owns the HTTP surface clients use to deploy, inspect, and tear
// down projects, and reports dependency health alongside live deployments.
//
// Keep orchestration logic here: deployment semantics live in the deploy
// package while the daemon focuses on startup, shutdown, and request routing.
package daemon
