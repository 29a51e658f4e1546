// Package projector folds an ordered block source into the entity store.
//
// A Projector is a single-writer consume loop. For each block after the
// store's checkpoint it:
//
//  1. retracts entities left at or above the block by an apply that
//     stopped before recording,
//  2. sorts the block's logs by (TxIndex, LogIndex),
//  3. inserts one entity per log (identical re-delivery is a no-op),
//  4. records the block hash and advances the checkpoint.
//
// Before applying a block the projector checks that it extends the indexed
// chain. When it does not, the projector walks back over stored block
// hashes to the last block the source still agrees with and retracts every
// entity above it. Failing to retract, or finding a different entity under
// an existing id, halts the projector: it never skips ahead.
//
// Store operations are retried with exponential backoff. Exhausting the
// retry budget makes Sync return UNAVAILABLE; Run pauses and tries again.
package projector
