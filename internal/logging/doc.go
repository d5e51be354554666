// Package logging configures slog-based structured logging for the daemon
// and CLI. It provides console and JSON handlers, typed attribute helpers,
// and context-derived fields (call ID, stage, correlation ID) so every
// component logs with the same vocabulary.
package logging
