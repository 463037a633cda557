package authgate

import (
	"context"
	"strings"
	"time"
)

// Credential is the stored identity record for one user: the normalized email
// that keys it and the PHC-encoded password hash. The plaintext password is
// never stored.
type Credential struct {
	Email        string
	PasswordHash string
	CreatedAt    int64
}

// CredentialStore holds user identities. Implementations must treat the
// normalized email (see [NormalizeEmail]) as the primary key, return
// [ErrDuplicateUser] from Register when it already exists, and
// [ErrUserNotFound] from Lookup when it does not.
//
// The package ships a Redis-backed implementation (the Builder default) and a
// PostgreSQL one in the postgres subpackage.
type CredentialStore interface {
	Register(ctx context.Context, email, passwordHash string) error
	Lookup(ctx context.Context, email string) (Credential, error)
}

// CodeSink receives generated two-factor codes for out-of-band delivery
// (email, SMS). Delivery is outside this package; a Deliver error aborts the
// login attempt so a client never holds an attempt ID whose code was lost.
type CodeSink interface {
	Deliver(ctx context.Context, email, code string) error
}

// CodeSinkFunc adapts a function to the [CodeSink] interface.
type CodeSinkFunc func(ctx context.Context, email, code string) error

// Deliver calls f.
func (f CodeSinkFunc) Deliver(ctx context.Context, email, code string) error {
	return f(ctx, email, code)
}

// LoginResult is returned by [Engine.Login] after the password step succeeds.
// The attempt ID correlates the password step with the Verify2FA step; the
// one-time code itself travels only through the [CodeSink].
type LoginResult struct {
	AttemptID string
}

// Identity is returned by [Engine.VerifyToken] for a structurally valid,
// unexpired, unrevoked token. Downstream services rely on Email as the
// authenticated subject.
type Identity struct {
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

// NormalizeEmail lowercases and trims an email address so equivalent
// addresses map to one credential record. All stores and the Engine key by
// the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// looksLikeEmail is the minimal structural check applied at signup. Anything
// stricter belongs to the delivery collaborator, which is what actually
// proves an address exists.
func looksLikeEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1
}
