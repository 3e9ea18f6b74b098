// Package googlebooks resolves ISBNs to bibliographic records through the
// volumes search API.
//
// Lookups are not performed inline: Client.Lookup enqueues a request on the
// dispatch queue, and the handler returned by NewHandler translates the
// response and posts it to whatever Consumer is bound at delivery time.
package googlebooks
