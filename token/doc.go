// Package token signs, verifies, and decodes the bearer tokens issued after
// a completed two-factor login.
//
// Tokens are JWTs carrying the subject email, issued-at, expiry, and a unique
// token identifier (jti). The identifier is what the revocation store keys
// by, so logout never needs to compare raw token strings. The signing key is
// injected through Config at construction and immutable afterwards; the kid
// header field is populated when Config.KeyID is set, leaving room for key
// rotation without a claims format change.
package token
