// Package preflight provides readiness checks for the external services
// and filesystem paths the scoring pipeline depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup. Failed checks are logged but do
//     not abort startup; a sidecar that comes up late recovers on its own.
//   - The CLI status command uses individual check functions
//     (CheckSidecar, CheckDirectoryAccess) to display service health.
//
// Checks for optional stages are gated by their config toggles.
package preflight
