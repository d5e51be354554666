// Package config loads, normalizes, and validates the TOML configuration
// used by the callaudit daemon and CLI. Paths are expanded to absolute
// form at load time and required directories can be created on demand.
package config
