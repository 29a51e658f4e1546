// Package store provides SQLite-backed durable storage for indexed
// registry entities.
//
// The store holds three things:
//   - Entities: one immutable row per observed log entry
//   - Indexed blocks: number, hash, and parent hash of each finished block
//   - Checkpoint: the last finished block and the source it came from
//
// # Critical Patterns
//
// Idempotent insert
//   - INSERT ... ON CONFLICT(id) DO NOTHING, then compare on conflict
//   - Re-delivery of an identical entity is a no-op; a different entity
//     under the same id is ErrConflict
//
// Deterministic query results
//   - Every list query orders by
//     block_number, tx_index, log_index, id COLLATE BINARY
//
// Retraction
//   - Retract removes entities and indexed blocks from a height upward and
//     moves the checkpoint back, in one transaction
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Schema changes are golang-migrate migrations embedded from migrations/.
package store
