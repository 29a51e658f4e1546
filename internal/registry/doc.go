// Package registry implements the S01L registry state machine.
//
// The authoritative state (owner, trusted set, counters, contract records,
// lineage edges) is an explicit State value. Transition is a pure function
// that validates a call against a State and returns the Delta to apply plus
// the events the call emits; it never mutates its input. Registry wraps a
// State with a mutex so each call commits all of its writes or none.
//
// Key invariants:
//   - Counters increase by exactly one per accepted creation; ids start at 1
//   - (kind, id) -> address and address -> record are write-once
//   - Each child has exactly one parent, set at creation
//   - Rejected calls change nothing and emit nothing
//   - Renounced ownership is terminal
package registry
