// Package logging assembles structured slog loggers used across sitehost.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so request handlers and deployment
// code tag lines with project and correlation identifiers. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
