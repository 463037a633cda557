// Package internal contains helpers that are intentionally private to
// authgate, including secure random generation for attempt IDs and one-time
// codes.
//
// # Sub-packages
//
//   - httpapi: the HTTP layer over the engine (JSON endpoints, browser UI,
//     health probes, metrics)
//   - ids: ULID request identifiers for audit correlation
//
// Nothing here is importable from outside the module.
package internal
