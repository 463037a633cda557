// Package authgate implements an authentication and session-lifecycle engine:
// credential verification, a mandatory delivered one-time-code second factor,
// JWT bearer token issuance and validation, and token revocation.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore] and [CodeSink] collaborator interfaces, and value
// types (LoginResult, Identity, MetricsSnapshot). Token signing lives in the
// token subpackage, hashing in password, and durable credential storage in
// postgres.
//
// # Error surface
//
// Every failure an Engine method returns is one of the coarse sentinels in
// errors.go. Fine-grained store failures (not-found vs. expired vs. consumed,
// backend outages) never cross the Engine boundary; they are collapsed so a
// caller cannot distinguish which validation step rejected a request.
//
// # What this package must NOT do
//
//   - Expose Redis clients, store internals, or record encodings in its
//     public API.
//   - Report a two-factor code through a Login return value. Codes reach the
//     user only through the configured [CodeSink].
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
package authgate
