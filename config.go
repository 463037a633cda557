package authgate

import (
	"errors"
	"time"
)

// Config groups every tunable of the engine. Populate it before Build; the
// engine clones it and never reads the caller's copy again.
type Config struct {
	Token     TokenConfig
	TwoFactor TwoFactorConfig
	Password  PasswordConfig
	Signup    SignupConfig
	Stores    StoreConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls bearer token issuance. Keys are loaded once at build
// time and injected into the codec; there is no ambient key state, so tests
// can supply deterministic keys.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls the delivered one-time-code challenge issued after
// a successful password check.
type TwoFactorConfig struct {
	CodeDigits   int
	ChallengeTTL time.Duration
	// MaxAttempts destroys a challenge after this many code mismatches.
	// Zero disables the cap.
	MaxAttempts int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries Argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SignupConfig controls boundary validation of new registrations.
type SignupConfig struct {
	MinPasswordLength int
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig sets the Redis key prefixes of the three engine-owned stores.
type StoreConfig struct {
	CredentialPrefix string
	ChallengePrefix  string
	RevocationPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking request goroutines when
	// the buffer is saturated. Dropped counts are observable via
	// Engine.AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the engine's internal counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. Token keys are deliberately
// absent; Validate rejects a config without them.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:           15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		TwoFactor: TwoFactorConfig{
			CodeDigits:   6,
			ChallengeTTL: 5 * time.Minute,
			MaxAttempts:  5,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Signup: SignupConfig{
			MinPasswordLength: 8,
		},
		Stores: StoreConfig{
			CredentialPrefix: "acr",
			ChallengePrefix:  "a2f",
			RevocationPrefix: "arv",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Token.TTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	switch c.Token.SigningMethod {
	case "ed25519", "hs256":
	default:
		return errors.New("unsupported token signing method")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("token private key required")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("ed25519 requires a public key")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("invalid token leeway")
	}
	if c.TwoFactor.CodeDigits < 4 || c.TwoFactor.CodeDigits > 10 {
		return errors.New("two-factor code digits must be between 4 and 10")
	}
	if c.TwoFactor.ChallengeTTL <= 0 {
		return errors.New("two-factor challenge TTL must be positive")
	}
	if c.TwoFactor.MaxAttempts < 0 {
		return errors.New("two-factor max attempts must not be negative")
	}
	if c.Signup.MinPasswordLength < 1 {
		return errors.New("minimum password length must be at least 1")
	}
	if c.Stores.CredentialPrefix == "" || c.Stores.ChallengePrefix == "" || c.Stores.RevocationPrefix == "" {
		return errors.New("store key prefixes must not be empty")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must not be negative")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
