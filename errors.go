package authgate

import "errors"

// Coarse boundary errors. These are the only failures Engine methods return;
// each collapses several internal causes so the external surface stays
// constant regardless of which validation step rejected a request.
var (
	// ErrDuplicateUser is returned by Signup when the normalized email is
	// already registered. Safe to disclose.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrInvalidCredentials collapses "unknown user" and "wrong password".
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidOrExpiredCode collapses every two-factor challenge failure:
	// unknown attempt, expired, already consumed, code mismatch, and attempt
	// cap exceeded.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")

	// ErrInvalidToken collapses malformed, expired, and revoked tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidInput is returned for requests rejected before any store is
	// consulted: empty or malformed email, password below policy length.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal covers any store or backend failure. Detail is emitted to
	// the audit sink only.
	ErrInternal = errors.New("internal error")

	// ErrEngineNotReady is returned when an Engine method is called on an
	// engine that was not constructed through Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrUserNotFound is the sentinel CredentialStore implementations return
	// from Lookup for an unknown email. The Engine never surfaces it; Login
	// folds it into ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")
)
