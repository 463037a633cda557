package authgate

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersion1 = 1

var (
	errChallengeNotFound = errors.New("two-factor challenge not found")
	errChallengeExpired  = errors.New("two-factor challenge expired")
	errChallengeConsumed = errors.New("two-factor challenge already consumed")
	errChallengeMismatch = errors.New("two-factor code mismatch")
	errChallengeExceeded = errors.New("two-factor challenge attempts exceeded")
	errChallengeBackend  = errors.New("two-factor challenge backend unavailable")
)

// challengeRecord is the state of one pending login between the password step
// and the code step. Consumed stays set for the remainder of the original TTL
// so a replayed code is distinguishable from an unknown attempt id in audit.
type challengeRecord struct {
	Email     string
	Code      string
	ExpiresAt int64
	Attempts  uint16
	Consumed  bool
}

type challengeStore struct {
	redis  *redis.Client
	prefix string
}

func newChallengeStore(redisClient *redis.Client, prefix string) *challengeStore {
	return &challengeStore{redis: redisClient, prefix: prefix}
}

func (s *challengeStore) key(attemptID string) string {
	return s.prefix + ":" + attemptID
}

func (s *challengeStore) Save(
	ctx context.Context,
	attemptID string,
	record *challengeRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(attemptID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}

func (s *challengeStore) Delete(ctx context.Context, attemptID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(attemptID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return n > 0, nil
}

// VerifyAndConsume checks code against the pending challenge and, on a match,
// marks the challenge consumed in the same transaction. At most one concurrent
// caller can observe a match; every later caller with the same attempt id gets
// errChallengeConsumed. A mismatch increments the attempt counter and destroys
// the challenge once maxAttempts is reached (zero disables the cap).
func (s *challengeStore) VerifyAndConsume(
	ctx context.Context,
	attemptID string,
	code string,
	maxAttempts int,
) (string, error) {
	const maxRetries = 4
	key := s.key(attemptID)

	for i := 0; i < maxRetries; i++ {
		var email string
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}
			if record.Consumed {
				return errChallengeConsumed
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			if subtle.ConstantTimeCompare([]byte(code), []byte(record.Code)) != 1 {
				record.Attempts++
				if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errChallengeExceeded
				}

				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeMismatch
			}

			record.Consumed = true
			updated, err := encodeChallengeRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			email = record.Email
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return "", errChallengeNotFound
			}
			if errors.Is(err, errChallengeExpired) ||
				errors.Is(err, errChallengeConsumed) ||
				errors.Is(err, errChallengeMismatch) ||
				errors.Is(err, errChallengeExceeded) {
				return "", err
			}
			return "", fmt.Errorf("%w: %v", errChallengeBackend, err)
		}
		return email, nil
	}

	return "", errChallengeNotFound
}

func encodeChallengeRecord(record *challengeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	var consumed uint8
	if record.Consumed {
		consumed = 1
	}
	buf.WriteByte(consumed)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.Email) > 65535 || len(record.Code) > 65535 {
		return nil, errors.New("challenge field length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Code))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Code)

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*challengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid challenge record version")
	}

	consumed, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &challengeRecord{Consumed: consumed == 1}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	record.Email = string(email)

	var codeLen uint16
	if err := binary.Read(reader, binary.BigEndian, &codeLen); err != nil {
		return nil, err
	}
	codeBytes := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, codeBytes); err != nil {
		return nil, err
	}
	record.Code = string(codeBytes)

	return record, nil
}
