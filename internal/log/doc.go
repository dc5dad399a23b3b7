// Package log provides simple leveled logging for split-tunnel.
//
// Split tunneling is pervasively best-effort: a cgroup write or routing
// command that fails is logged and skipped, never propagated. That makes the
// log the primary observability surface of the daemon, so every component
// logs through this package.
//
//   - DEBUG: detailed diagnostics (only shown in verbose mode)
//   - INFO: state transitions (connect, disconnect, app tracking changes)
//   - WARN: degraded side effects that were skipped or failed
//   - ERROR: failures that abort an operation
package log
