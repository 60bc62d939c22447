// Package config defines the settings of one export run.
//
// Configuration can be provided via:
//   - YAML configuration file (unknown keys are rejected)
//   - Environment variables (EXPORTER_ prefix)
//   - Command-line flags
//
// Later sources override earlier ones. After merging, Clamp pulls the
// tuning knobs into their supported ranges and Validate rejects settings
// that cannot run.
//
// # Ranges
//
//	concurrency   1..12        default 6
//	max_retries   0..10        default 5
//	backoff_base  100ms..5s    default 500ms
//	batch_size    1..200       default 20
package config
