// Package zotero talks to the remote library API: it fetches key permissions
// and group titles, uploads item batches and creates collections.
//
// Like the lookup client, every call only enqueues a request. Results reach
// the bound Consumer through the handler built by NewHandler, which also
// persists fetched permissions and group titles to the record store.
package zotero
