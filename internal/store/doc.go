// Package store provides the SQLite-backed object store behind a stack.
//
// The store holds committed entity state only. Contexts read from it and hand
// it change sets to commit; it never sees uncommitted edits.
//
// # Tables
//
//   - objects: one row per entity, keyed by (kind, id), attributes stored as
//     canonical JSON, with a per-entity version incremented on every commit
//   - commits: one row per successful commit, keyed by the logical sequence
//     number
//
// # Critical Patterns
//
// Serialized commits:
//   - Commit holds a mutex for the whole transaction and the pool has a single
//     connection, so commits are totally ordered by seq
//
// Logical time:
//   - Commit sequence numbers come from a monotonic clock resumed from
//     MAX(seq) on open, never from wall time
//
// Deterministic results:
//   - All fetches end their ORDER BY with "id COLLATE BINARY ASC"
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
