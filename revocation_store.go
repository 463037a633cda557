package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errRevocationBackend = errors.New("revocation backend unavailable")

// revocationStore keeps the identifiers of revoked tokens until their natural
// expiry. Entries carry a TTL equal to the remaining token lifetime, so the
// set never needs sweeping: once a token could no longer pass verification
// anyway, its marker disappears on its own.
type revocationStore struct {
	redis  *redis.Client
	prefix string
}

func newRevocationStore(redisClient *redis.Client, prefix string) *revocationStore {
	return &revocationStore{redis: redisClient, prefix: prefix}
}

func (s *revocationStore) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

// Revoke marks tokenID revoked until expiresAt. Revoking an already revoked
// or already expired token is a no-op, never an error.
func (s *revocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.SetNX(ctx, s.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRevocationBackend, err)
	}
	return nil
}

func (s *revocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errRevocationBackend, err)
	}
	return n > 0, nil
}
