// Package cache persists per-URL processing state in SQLite so repeat runs
// skip completed stages. Entries are keyed by a canonical form of the URL and
// move through pending, downloaded, transcribed, and summarized, with failed
// recorded off the ladder. The store is single-writer, guarded by a lock
// file, and verifies database integrity on open.
package cache
