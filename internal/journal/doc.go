// Package journal records fleet activity in an append-only SQLite log.
//
// Every spawn attempt, connection outcome, disconnect, session fault and
// dispatched console command becomes one Event tagged with the process run
// ID. The journal is write-mostly: the fleet never reads it back to restore
// state; it exists so an operator can inspect what happened during a run
// with `coven-fleet journal`.
//
// SQLiteJournal uses modernc.org/sqlite (pure Go, no cgo) in WAL mode and
// creates its schema on open. Nop discards everything and is used when no
// journal path is configured.
package journal
