// Package preflight provides readiness checks for the filesystem paths and
// remote services shelfscan depends on.
//
// The CLI "shelfscan status" command runs RunAll and renders the results.
// Remote checks issue one direct request each with a short timeout; they do
// not go through the dispatch queue, so a tripped circuit breaker cannot hide
// a service that has recovered.
package preflight
