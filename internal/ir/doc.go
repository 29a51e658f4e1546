// Package ir provides the canonical types shared by every s01l package:
// addresses, hashes, log positions, registry events, blocks, and the
// canonical JSON used for content-addressed identity.
//
// This package imports nothing internal. All other internal packages
// import ir, which keeps it the foundational layer.
//
// Key constraints:
//   - NO float types anywhere; counters and ids are uint64
//   - Event payload fields are strings (hex addresses, decimal ids)
//   - All JSON tags use snake_case
package ir
