package authgate

import (
	"errors"

	"github.com/authgate/authgate/password"
	"github.com/authgate/authgate/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single-use; Build fails on the
// second call so a half-configured builder cannot leak two engines sharing
// state.
type Builder struct {
	config Config
	redis  *redis.Client

	credentials CredentialStore
	codeSink    CodeSink
	auditSink   AuditSink

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the challenge and revocation stores, and
// the default credential store when none is supplied.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore overrides the default Redis-backed credential store,
// for example with the postgres subpackage implementation.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithCodeSink sets the required out-of-band code delivery collaborator.
func (b *Builder) WithCodeSink(sink CodeSink) *Builder {
	b.codeSink = sink
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns an
// immutable Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.codeSink == nil {
		return nil, errors.New("code sink required")
	}

	engine := &Engine{
		config:      cfg,
		challenges:  newChallengeStore(b.redis, cfg.Stores.ChallengePrefix),
		revocations: newRevocationStore(b.redis, cfg.Stores.RevocationPrefix),
		codeSink:    b.codeSink,
	}

	engine.credentials = b.credentials
	if engine.credentials == nil {
		engine.credentials = newRedisCredentialStore(b.redis, cfg.Stores.CredentialPrefix)
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	codec, err := token.NewCodec(token.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	b.built = true

	return engine, nil
}
