package authgate

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/authgate/authgate/internal"
	"github.com/authgate/authgate/password"
	"github.com/authgate/authgate/token"
)

// Engine is the authentication core. Construct it through Builder.Build; the
// zero value is not usable. All methods are safe for concurrent use.
type Engine struct {
	config       Config
	credentials  CredentialStore
	challenges   *challengeStore
	revocations  *revocationStore
	codeSink     CodeSink
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	codec        *token.Codec
}

// credentialRehasher is the optional CredentialStore extension used to
// persist upgraded password hashes after a successful login.
type credentialRehasher interface {
	UpdateHash(ctx context.Context, email, passwordHash string) error
}

// Close shuts the audit dispatcher down after draining accepted events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics exposes the engine's counter set for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, email, attemptID, tokenID string, failure error) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Email:     email,
		AttemptID: attemptID,
		TokenID:   tokenID,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}

	e.audit.Emit(ctx, event)
}

// Signup registers a new user. The email is normalized before any store is
// consulted; a duplicate registration returns ErrDuplicateUser regardless of
// the casing or whitespace the second caller used.
func (e *Engine) Signup(ctx context.Context, email, pass string) error {
	if e == nil || e.credentials == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if !looksLikeEmail(email) {
		e.emitAudit(ctx, AuditSignup, false, email, "", "", ErrInvalidInput)
		return ErrInvalidInput
	}
	if len(pass) < e.config.Signup.MinPasswordLength {
		e.emitAudit(ctx, AuditSignup, false, email, "", "", ErrInvalidInput)
		return ErrInvalidInput
	}

	hash, err := e.passwordHash.Hash(pass)
	if err != nil {
		e.emitAudit(ctx, AuditSignup, false, email, "", "", ErrInternal)
		return ErrInternal
	}
	pass = ""

	if err := e.credentials.Register(ctx, email, hash); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, AuditSignup, false, email, "", "", ErrDuplicateUser)
			return ErrDuplicateUser
		}
		e.emitAudit(ctx, AuditSignup, false, email, "", "", ErrInternal)
		return ErrInternal
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, AuditSignup, true, email, "", "", nil)
	return nil
}

// Login verifies the password and, on success, opens a two-factor challenge:
// a one-time code goes out through the CodeSink and the attempt ID comes back
// to the caller. Unknown email and wrong password are indistinguishable in
// both the returned error and observable behavior. A CodeSink delivery
// failure aborts the attempt; the caller never receives an attempt ID whose
// code was lost.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if e == nil || e.credentials == nil || e.passwordHash == nil || e.challenges == nil || e.codeSink == nil {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, false, email, "", "", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	cred, err := e.credentials.Lookup(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditLogin, false, email, "", "", ErrInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		e.emitAudit(ctx, AuditLogin, false, email, "", "", ErrInternal)
		return nil, ErrInternal
	}

	ok, err := e.passwordHash.Verify(pass, cred.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, false, email, "", "", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	e.maybeUpgradeHash(ctx, email, pass, cred.PasswordHash)
	pass = ""

	code, err := internal.NewOTP(e.config.TwoFactor.CodeDigits)
	if err != nil {
		e.emitAudit(ctx, AuditLogin, false, email, "", "", ErrInternal)
		return nil, ErrInternal
	}

	attempt, err := internal.NewAttemptID()
	if err != nil {
		e.emitAudit(ctx, AuditLogin, false, email, "", "", ErrInternal)
		return nil, ErrInternal
	}
	attemptID := attempt.String()

	ttl := e.config.TwoFactor.ChallengeTTL
	record := &challengeRecord{
		Email:     email,
		Code:      code,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	if err := e.challenges.Save(ctx, attemptID, record, ttl); err != nil {
		e.emitAudit(ctx, AuditLogin, false, email, attemptID, "", ErrInternal)
		return nil, ErrInternal
	}

	if err := e.codeSink.Deliver(ctx, email, code); err != nil {
		// The challenge must not stay verifiable when the code never reached
		// the user.
		if _, delErr := e.challenges.Delete(ctx, attemptID); delErr != nil {
			log.Print("authgate: challenge cleanup after delivery failure failed")
		}
		e.emitAudit(ctx, AuditLogin, false, email, attemptID, "", ErrInternal)
		return nil, ErrInternal
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, AuditLogin, true, email, attemptID, "", nil)

	return &LoginResult{AttemptID: attemptID}, nil
}

// maybeUpgradeHash rehashes with current parameters when the stored hash is
// weaker. Best effort: a failure never blocks the login.
func (e *Engine) maybeUpgradeHash(ctx context.Context, email, pass, storedHash string) {
	rehasher, ok := e.credentials.(credentialRehasher)
	if !ok {
		return
	}

	needs, err := e.passwordHash.NeedsUpgrade(storedHash)
	if err != nil || !needs {
		return
	}

	upgraded, err := e.passwordHash.Hash(pass)
	if err != nil {
		log.Print("authgate: password hash upgrade generation failed")
		return
	}
	if err := rehasher.UpdateHash(ctx, email, upgraded); err != nil {
		log.Print("authgate: password hash upgrade update failed")
	}
}

// Verify2FA completes the two-factor step. A correct code consumes the
// challenge and yields a signed bearer token; at most one caller per attempt
// ID ever receives a token, no matter how the calls interleave. Every failure
// mode surfaces as ErrInvalidOrExpiredCode.
func (e *Engine) Verify2FA(ctx context.Context, attemptID, code string) (string, error) {
	if e == nil || e.challenges == nil || e.codec == nil {
		return "", ErrEngineNotReady
	}

	if _, err := internal.ParseAttemptID(attemptID); err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, AuditTwoFactor, false, "", attemptID, "", ErrInvalidOrExpiredCode)
		return "", ErrInvalidOrExpiredCode
	}
	if code == "" {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, AuditTwoFactor, false, "", attemptID, "", ErrInvalidOrExpiredCode)
		return "", ErrInvalidOrExpiredCode
	}

	email, err := e.challenges.VerifyAndConsume(ctx, attemptID, code, e.config.TwoFactor.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, errChallengeConsumed):
			e.metricInc(MetricTwoFactorReplay)
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, AuditTwoFactor, false, "", attemptID, "", ErrInvalidOrExpiredCode)
			return "", ErrInvalidOrExpiredCode
		case errors.Is(err, errChallengeNotFound),
			errors.Is(err, errChallengeExpired),
			errors.Is(err, errChallengeMismatch),
			errors.Is(err, errChallengeExceeded):
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, AuditTwoFactor, false, "", attemptID, "", ErrInvalidOrExpiredCode)
			return "", ErrInvalidOrExpiredCode
		default:
			e.emitAudit(ctx, AuditTwoFactor, false, "", attemptID, "", ErrInternal)
			return "", ErrInternal
		}
	}

	raw, claims, err := e.codec.Issue(email, time.Now(), 0)
	if err != nil {
		e.emitAudit(ctx, AuditTwoFactor, false, email, attemptID, "", ErrInternal)
		return "", ErrInternal
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, AuditTwoFactor, true, email, attemptID, claims.ID, nil)

	return raw, nil
}

// VerifyToken checks signature, expiry, and revocation and returns the
// authenticated identity. Malformed, expired, and revoked tokens are
// indistinguishable to the caller.
func (e *Engine) VerifyToken(ctx context.Context, raw string) (*Identity, error) {
	if e == nil || e.codec == nil || e.revocations == nil {
		return nil, ErrEngineNotReady
	}

	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()
	}

	claims, err := e.codec.Decode(raw)
	if err != nil {
		e.metricInc(MetricTokenVerifyFailure)
		e.emitAudit(ctx, AuditTokenVerify, false, "", "", "", ErrInvalidToken)
		return nil, ErrInvalidToken
	}

	revoked, err := e.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		e.emitAudit(ctx, AuditTokenVerify, false, claims.Subject, "", claims.ID, ErrInternal)
		return nil, ErrInternal
	}
	if revoked {
		e.metricInc(MetricTokenVerifyFailure)
		e.emitAudit(ctx, AuditTokenVerify, false, claims.Subject, "", claims.ID, ErrInvalidToken)
		return nil, ErrInvalidToken
	}

	e.metricInc(MetricTokenVerifySuccess)
	e.emitAudit(ctx, AuditTokenVerify, true, claims.Subject, "", claims.ID, nil)

	return &Identity{
		Email:     claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the token until its natural expiry. It is idempotent:
// revoking a token twice, or one that has already expired, succeeds without
// effect. Only structurally invalid tokens are rejected.
func (e *Engine) Logout(ctx context.Context, raw string) error {
	if e == nil || e.codec == nil || e.revocations == nil {
		return ErrEngineNotReady
	}

	claims, err := e.codec.DecodeIgnoringExpiry(raw)
	if err != nil {
		e.emitAudit(ctx, AuditLogout, false, "", "", "", ErrInvalidToken)
		return ErrInvalidToken
	}

	expiresAt := claims.ExpiresAt.Time
	if !expiresAt.After(time.Now()) {
		// Nothing to revoke; verification already rejects it on expiry alone.
		e.emitAudit(ctx, AuditLogout, true, claims.Subject, "", claims.ID, nil)
		return nil
	}

	if err := e.revocations.Revoke(ctx, claims.ID, expiresAt); err != nil {
		e.emitAudit(ctx, AuditLogout, false, claims.Subject, "", claims.ID, ErrInternal)
		return ErrInternal
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, AuditLogout, true, claims.Subject, "", claims.ID, nil)
	return nil
}
