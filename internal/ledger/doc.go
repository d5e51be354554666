// Package ledger persists the durable state of the call pipeline: calls,
// per-stage processing job entries, and batches, backed by SQLite.
//
// The ledger is the single source of truth for recovery. Every stage
// attempt is one processing job row; at most one row per call may be
// in_progress at any time (single-flight), enforced by an atomic
// check-and-insert in BeginStage plus a partial unique index. Call status
// transitions are derived from ledger activity and applied with
// compare-and-set updates so no two workers can ever drive the same call
// concurrently. Entries are never deleted; the reaper converts stale
// in_progress entries to failures.
package ledger
