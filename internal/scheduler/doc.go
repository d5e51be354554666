// Package scheduler drives queued calls through the stage pipeline on a
// bounded worker pool, persisting every attempt to the ledger for crash
// recovery.
package scheduler
