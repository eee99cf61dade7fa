// Package deploy orchestrates the lifecycle of hosted projects.
//
// A deploy validates and writes the file set, binds a port, starts the
// project server, and records the project as live before returning. Public
// tunnels are resolved afterwards in the background and never fail a deploy.
// Teardown reverses every step, and TeardownAll does so for every project
// within a caller-supplied deadline when the daemon exits.
package deploy
