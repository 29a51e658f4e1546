// Package logfile moves the event log between processes as an NDJSON file.
//
// The first line is a header carrying the source id; every following line
// is one block in order. Export rewrites the file atomically (temp file +
// rename), so a reader sees either the old log or the new one, never a mix.
// A rewound ledger exports a shorter or diverging file, which a Source
// surfaces to its consumer as a reorg.
//
// Source tails such a file: it watches the directory with fsnotify,
// debounces bursts of events, and reloads the whole file on change.
package logfile
