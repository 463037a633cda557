package authgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newChallengeTestStore(t *testing.T) (*challengeStore, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	return newChallengeStore(rdb, "a2f"), func() { mr.Close() }
}

func saveTestChallenge(t *testing.T, store *challengeStore, attemptID, email, code string, ttl time.Duration) {
	t.Helper()

	record := &challengeRecord{
		Email:     email,
		Code:      code,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	if err := store.Save(context.Background(), attemptID, record, ttl); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestChallengeVerifyAndConsume(t *testing.T) {
	store, done := newChallengeTestStore(t)
	defer done()

	ctx := context.Background()
	saveTestChallenge(t, store, "attempt-1", "user@example.com", "123456", time.Minute)

	email, err := store.VerifyAndConsume(ctx, "attempt-1", "123456", 5)
	if err != nil {
		t.Fatalf("VerifyAndConsume failed: %v", err)
	}
	if email != "user@example.com" {
		t.Fatalf("email = %q", email)
	}

	// The consumed marker survives, so a replay is not "not found".
	if _, err := store.VerifyAndConsume(ctx, "attempt-1", "123456", 5); !errors.Is(err, errChallengeConsumed) {
		t.Fatalf("expected errChallengeConsumed, got %v", err)
	}
}

func TestChallengeMismatchCountsAttempts(t *testing.T) {
	store, done := newChallengeTestStore(t)
	defer done()

	ctx := context.Background()
	saveTestChallenge(t, store, "attempt-1", "user@example.com", "123456", time.Minute)

	if _, err := store.VerifyAndConsume(ctx, "attempt-1", "999999", 3); !errors.Is(err, errChallengeMismatch) {
		t.Fatalf("expected errChallengeMismatch, got %v", err)
	}
	if _, err := store.VerifyAndConsume(ctx, "attempt-1", "999999", 3); !errors.Is(err, errChallengeMismatch) {
		t.Fatalf("expected errChallengeMismatch, got %v", err)
	}
	if _, err := store.VerifyAndConsume(ctx, "attempt-1", "999999", 3); !errors.Is(err, errChallengeExceeded) {
		t.Fatalf("expected errChallengeExceeded, got %v", err)
	}

	// The cap destroyed the record.
	if _, err := store.VerifyAndConsume(ctx, "attempt-1", "123456", 3); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected errChallengeNotFound, got %v", err)
	}
}

func TestChallengeUnknownAttempt(t *testing.T) {
	store, done := newChallengeTestStore(t)
	defer done()

	if _, err := store.VerifyAndConsume(context.Background(), "missing", "123456", 5); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected errChallengeNotFound, got %v", err)
	}
}

func TestChallengeExpiredRecord(t *testing.T) {
	store, done := newChallengeTestStore(t)
	defer done()

	ctx := context.Background()

	// Redis TTL still pending but the record's own clock has passed.
	record := &challengeRecord{
		Email:     "user@example.com",
		Code:      "123456",
		ExpiresAt: time.Now().Add(-time.Second).Unix(),
	}
	if err := store.Save(ctx, "attempt-1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.VerifyAndConsume(ctx, "attempt-1", "123456", 5); !errors.Is(err, errChallengeExpired) {
		t.Fatalf("expected errChallengeExpired, got %v", err)
	}
	if _, err := store.VerifyAndConsume(ctx, "attempt-1", "123456", 5); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected errChallengeNotFound after cleanup, got %v", err)
	}
}

func TestChallengeRecordRoundTrip(t *testing.T) {
	record := &challengeRecord{
		Email:     "user@example.com",
		Code:      "004211",
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
		Attempts:  3,
		Consumed:  true,
	}

	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeChallengeRecord(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if *decoded != *record {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, record)
	}

	if _, err := decodeChallengeRecord([]byte{99}); err == nil {
		t.Fatal("expected error for unknown version")
	}
	if _, err := decodeChallengeRecord(encoded[:4]); err == nil {
		t.Fatal("expected error for truncated record")
	}
}
