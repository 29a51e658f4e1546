// Package harness runs conformance scenarios end to end.
//
// A scenario is a YAML file: a list of registry calls (with the caller and
// an optional expected rejection), ledger rewinds, and projector syncs,
// followed by assertions over the indexed entities and the registry's
// accessors. Scenario files are checked against an embedded CUE schema
// before they are decoded.
//
// Run executes a scenario against a fresh in-memory ledger and entity
// store with a deterministic block clock, so traces are reproducible and
// can be compared against golden files with RunWithGolden.
//
// Addresses in a scenario are hex ("0xAAA") or a name bound by an earlier
// step ("$sprout1"). In traces, contracts created by the registry appear
// as "$s33d:<id>" or "$sprout:<id>".
package harness
