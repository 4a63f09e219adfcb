// Package config loads runtime configuration for the logsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional YAML or JSON file given by --config or LOGSYNC_CONFIG.
//  3. LOGSYNC_* environment variables.
//  4. Command-line flags (see ApplyFlags), which override earlier values.
//
// # YAML schema
//
//	store:
//	  path: logsync.db
//	backend:
//	  dsn: postgres://logsync@localhost:5432/logsync?sslmode=disable
//	  access_token: eyJhbGciOi...
//	sync:
//	  retry_ceiling: 3
//	  base_delay: 1s
//	  item_delay: 100ms
//	connectivity:
//	  probe_interval: 30s
//	integrity:
//	  audit_mode: mismatch
//	api:
//	  addr: 127.0.0.1:8420
//	log:
//	  level: info
//	  format: text
//
// Durations in YAML and in the environment use time.ParseDuration syntax.
// JSON files must give durations in nanoseconds.
package config
