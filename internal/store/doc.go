// Package store persists shelfscan's local records in SQLite.
//
// The Store keeps API keys, the per-scope permissions of each key, group
// titles and scanned items awaiting upload. It implements access.Store so the
// permission model can persist itself without knowing about SQL. A file lock
// next to the database keeps two processes from writing at once.
package store
