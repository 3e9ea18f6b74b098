// Package services defines shared utilities consumed by the dispatch pipeline
// and the remote service integrations.
//
// Key responsibilities:
//   - Context helpers that stamp request IDs, correlation IDs, and handler names
//     for logging.
//   - Structured error markers plus the Wrap helper so transport, protocol,
//     parse, and authorization failures are classified the same way everywhere.
//   - StatusError, the concrete form of a non-2xx response.
//
// Use these helpers when wiring new clients so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services
