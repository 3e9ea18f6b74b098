// Package dispatch runs outbound requests on a small worker pool and delivers
// their classified outcomes to handlers that may be bound to a live consumer
// or temporarily unbound.
//
// A Queue owns pending requests from Enqueue until their terminal outcome has
// been handed to the owning Handler. Handlers buffer events while unbound and
// flush them in enqueue order when a consumer binds again, so a consumer that
// comes and goes never misses a result and never sees one twice. Routes map
// correlation identifiers to domain callbacks.
package dispatch
