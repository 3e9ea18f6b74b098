// Package session holds the live state of one scanning session: the key's
// access, the upload targets, lookups in flight and the items waiting for
// upload.
//
// A Session is the consumer that the lookup and remote library handlers
// deliver to. Its owner binds it to both handlers while it is live and
// unbinds it when it goes away; results produced in between are buffered by
// the handlers, not by the session. Callers observe progress through
// Events.
package session
