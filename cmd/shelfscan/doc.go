// Package main hosts the shelfscan CLI.
//
// Each command opens the record store, starts a dispatch queue with the
// Zotero and Google Books handlers bound to a session, issues its requests and
// waits on session events for the results. Status and configuration commands
// work without opening the store.
package main
