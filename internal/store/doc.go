// Package store provides SQLite-backed durable storage for recorded machine
// runs.
//
// A run is one execution of one machine definition. The store keeps:
//   - runs: definition (canonical JSON), its content hash, and versions
//   - names: the state and trigger name tables used by the run
//   - trace_events: every trace event, keyed by (run_id, seq)
//
// Writes are append-only and idempotent (ON CONFLICT DO NOTHING), so a
// recorder can be retried without duplicating events.
//
// # Ordering
//
// All queries order by seq, the logical sequence number, with id as a
// binary tie-break. at_ms is informational.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
