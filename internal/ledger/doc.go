// Package ledger is the in-process event log the registry writes to.
//
// A Ledger owns one registry.Registry and is its only writer. Accepted
// calls are sealed into blocks; each block's transactions carry the events
// the registry emitted, stamped with their log positions. Blocks persist
// in BadgerDB and are replayed through the registry on reopen, so the
// authoritative state is always a pure function of the stored log.
//
// Rewind drops blocks above a height and rebuilds state from the survivors.
// It exists to exercise consumers' reorg handling.
//
// Thread-safety: one writer at a time (Submit, SubmitBatch, Rewind hold the
// write lock); readers take the read lock.
package ledger
