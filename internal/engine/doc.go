// Package engine implements the tally storage engine.
//
// The engine keeps append-only record streams and derived aggregate
// ledgers in a keyed store whose only write primitive is a whole-value
// replace. Its parts, leaves first:
//
//   - Counter allocator: one counter per stream; ids start at 1 and are
//     contiguous. TotalCount always equals the length of the log.
//   - Record log: Tx.Append stamps a record with the next id and a
//     non-decreasing timestamp and pushes it to the end of the stream.
//   - Scan index: Tx.Scan walks a stream newest-first and stops after
//     limit matches. An id->position index backs point lookups.
//   - Aggregate ledger: Tx.Contribute and Tx.Spend keep per-actor (or
//     global) totals; the tier is always recomputed from the total.
//   - Mutation gate: Tx.Mutate checks authorization, then existence, then
//     entitlement, and lets an updater flip only the stream's mutable
//     flags.
//
// EXECUTIONS:
//
// Engine.Do runs a callback against a Tx that reads each composite at
// most once and stages every change in memory. On success the staged
// composites are written in one store commit; on failure nothing is
// written. Executions are serialized by a single-writer lock, so no two
// ever interleave.
//
// DETERMINISM:
//
// Scan order depends only on append order. Timestamps come from the
// injected Clock and are never used for ordering. Call ids are generated
// for logs only and never stored, so two engines fed the same calls by
// the same clock hold byte-identical state (see Engine.Digest).
package engine
