// Package password provides one-way password hashing with Argon2id and
// constant-time verification.
//
// Hashes are emitted in PHC string format, so every hash carries its own
// algorithm version and cost parameters. Verification reads the parameters
// from the hash, not from the current config, which keeps old hashes
// verifiable after a parameter upgrade; NeedsUpgrade reports when a stored
// hash is weaker than the configured policy.
package password
