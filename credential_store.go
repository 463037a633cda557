package authgate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const credentialRecordVersion1 = 1

var errCredentialBackend = errors.New("credential backend unavailable")

// redisCredentialStore is the default CredentialStore. Records are keyed by
// normalized email and never expire. Atomicity of Register comes from SETNX,
// so two concurrent signups for the same email resolve to exactly one winner.
type redisCredentialStore struct {
	redis  *redis.Client
	prefix string
}

func newRedisCredentialStore(redisClient *redis.Client, prefix string) *redisCredentialStore {
	return &redisCredentialStore{redis: redisClient, prefix: prefix}
}

func (s *redisCredentialStore) key(email string) string {
	return s.prefix + ":" + email
}

func (s *redisCredentialStore) Register(ctx context.Context, email, passwordHash string) error {
	encoded, err := encodeCredentialRecord(&Credential{
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(email), encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errCredentialBackend, err)
	}
	if !ok {
		return ErrDuplicateUser
	}
	return nil
}

func (s *redisCredentialStore) Lookup(ctx context.Context, email string) (Credential, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, ErrUserNotFound
		}
		return Credential{}, fmt.Errorf("%w: %v", errCredentialBackend, err)
	}

	cred, err := decodeCredentialRecord(data)
	if err != nil {
		return Credential{}, err
	}
	cred.Email = email
	return cred, nil
}

// UpdateHash replaces the stored password hash of an existing user. Used when
// a login verifies against a hash produced with weaker cost parameters.
func (s *redisCredentialStore) UpdateHash(ctx context.Context, email, passwordHash string) error {
	cred, err := s.Lookup(ctx, email)
	if err != nil {
		return err
	}
	cred.PasswordHash = passwordHash

	encoded, err := encodeCredentialRecord(&cred)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetXX(ctx, s.key(email), encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errCredentialBackend, err)
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func encodeCredentialRecord(cred *Credential) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(credentialRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, cred.CreatedAt); err != nil {
		return nil, err
	}

	if len(cred.PasswordHash) > 65535 {
		return nil, errors.New("credential hash length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(cred.PasswordHash))); err != nil {
		return nil, err
	}
	buf.WriteString(cred.PasswordHash)

	return buf.Bytes(), nil
}

func decodeCredentialRecord(data []byte) (Credential, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Credential{}, err
	}
	if version != credentialRecordVersion1 {
		return Credential{}, errors.New("invalid credential record version")
	}

	var cred Credential
	if err := binary.Read(reader, binary.BigEndian, &cred.CreatedAt); err != nil {
		return Credential{}, err
	}

	var hashLen uint16
	if err := binary.Read(reader, binary.BigEndian, &hashLen); err != nil {
		return Credential{}, err
	}
	hash := make([]byte, hashLen)
	if _, err := io.ReadFull(reader, hash); err != nil {
		return Credential{}, err
	}
	cred.PasswordHash = string(hash)

	return cred, nil
}
