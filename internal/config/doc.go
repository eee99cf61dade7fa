// Package config loads, normalizes, and validates sitehost configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// SITEHOST_API_BIND. The Config type centralizes every knob the daemon and CLI
// need, so the workspace root, the project port range, and the tunnel binary
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
