// Package main hosts the callaudit CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API, direct ledger maintenance operations,
// call submission, and configuration scaffolding. Commands that work
// either way go through a small facade that prefers the daemon and falls
// back to opening the ledger directly.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
