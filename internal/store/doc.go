// Package store provides the durable keyed storage tally persists into.
//
// Every backend exposes the same whole-value surface:
//   - Get: read the full value under a key
//   - Set: replace the full value under a key
//   - Commit: replace several keys atomically (all or nothing)
//   - Keys: list keys under a prefix in byte order
//
// There are no partial-value updates. The engine reads composites at the
// start of an execution and writes every dirty composite back in a single
// Commit, so a failed execution leaves the store untouched.
//
// # Backends
//
//   - Store: SQLite (WAL mode) holding one kv table
//   - Badger: embedded BadgerDB, on disk or in memory
//   - Memory: map-backed, for tests and ephemeral runs
//
// # SQLite configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
