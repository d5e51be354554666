// Package reaper settles abandoned stage attempts after crashes, enforces
// per-stage and whole-call time ceilings, and provides the operator-driven
// stuck-call cleanup.
package reaper
