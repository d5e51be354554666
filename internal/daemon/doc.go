// Package daemon coordinates the long-running callaudit process.
//
// It wires configuration, the ledger store, the stage registry, the
// scheduler, and the reaper into a single lifecycle with flock-based locking
// to prevent multiple instances. Startup settles ledger entries orphaned by a
// crash before any new work is claimed. The daemon also serves the HTTP API
// used by the CLI and exposes call maintenance helpers.
//
// Keep orchestration logic here: individual pipeline stages live in their
// respective packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
