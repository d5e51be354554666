// Package api defines wire-format types and converters for the HTTP API and
// CLI layers. It translates internal ledger models into transport-friendly
// DTOs so consumers never couple to internal types.
//
// # Key Types
//
// CallView: transport representation of a call with lifecycle timestamps and
// submission metadata. CallDetail adds the per-stage attempt history and the
// scoring evaluation.
//
// BatchView: aggregate batch with completion counters.
//
// DaemonStatus: daemon running state, call stats, stage health, and external
// dependency availability.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (ledger.Status) are exposed as
// lowercase strings. Timestamps use RFC3339 with milliseconds. Metadata and
// pillar scores are passed through as json.RawMessage to avoid double-encoding.
package api
