// Package query is the read side of the entity store.
//
// Service answers point lookups, ordered lists, lineage walks, and a full
// reconstruction of registry state from indexed history. It never writes;
// results may lag the event log, and every list response carries the
// indexed head so callers can tell how far behind it is.
//
// NewRouter exposes the Service over HTTP with gin.
package query
