package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrMalformed covers every decode failure except expiry: bad structure,
	// bad signature, wrong algorithm, missing required claims.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned for a structurally valid, correctly signed token
	// whose expiry has passed.
	ErrExpired = errors.New("token expired")
)

// Config carries the signing material and validation policy of a Codec.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	KeyID         string
}

// Claims is the payload of an issued bearer token. Subject holds the
// authenticated email, ID the unique token identifier used by revocation.
type Claims struct {
	jwt.RegisteredClaims
}

// Codec issues and decodes bearer tokens. Safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates the key material for the selected method and returns an
// immutable codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Codec{config: cfg}, nil
}

// Issue signs a token for email valid from now until now+ttl. A ttl of zero
// falls back to the configured TTL; the expiry is always strictly after the
// issue time. The returned claims carry the generated token identifier.
func (c *Codec) Issue(email string, now time.Time, ttl time.Duration) (string, *Claims, error) {
	if email == "" {
		return "", nil, errors.New("empty subject")
	}
	if ttl == 0 {
		ttl = c.config.TTL
	}
	if ttl <= 0 {
		return "", nil, errors.New("invalid token ttl")
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    c.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(c.method(), claims)
	if c.config.KeyID != "" {
		tok.Header["kid"] = c.config.KeyID
	}

	signKey, err := c.signKey()
	if err != nil {
		return "", nil, err
	}

	raw, err := tok.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}

	return raw, claims, nil
}

// Decode verifies signature, algorithm, and expiry and returns the claims.
// The only error distinction exposed is expired vs malformed; everything a
// caller should not learn from a probe collapses into ErrMalformed.
func (c *Codec) Decode(raw string) (*Claims, error) {
	claims, err := c.parse(raw, false)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	return claims, nil
}

// DecodeIgnoringExpiry verifies signature and structure but skips time
// validation, so the claims of an expired token remain readable. Logout uses
// this to resolve the token identifier of tokens past their expiry.
func (c *Codec) DecodeIgnoringExpiry(raw string) (*Claims, error) {
	claims, err := c.parse(raw, true)
	if err != nil {
		return nil, ErrMalformed
	}

	return claims, nil
}

func (c *Codec) parse(raw string, ignoreExpiry bool) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if ignoreExpiry {
		options = []jwt.ParserOption{
			jwt.WithValidMethods([]string{c.method().Alg()}),
			jwt.WithoutClaimsValidation(),
		}
	} else {
		if c.config.Leeway > 0 {
			options = append(options, jwt.WithLeeway(c.config.Leeway))
		}
		if c.config.Issuer != "" {
			options = append(options, jwt.WithIssuer(c.config.Issuer))
		}
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if c.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != c.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return c.verifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || (!ignoreExpiry && !tok.Valid) {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}
	if claims.ExpiresAt == nil {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}

	return claims, nil
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (c *Codec) signKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(c.config.PrivateKey)
	}
}

func (c *Codec) verifyKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPublicKey(c.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
