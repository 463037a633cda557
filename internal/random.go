package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// AttemptID is the opaque handle correlating the password step and the
// two-factor step of one login flow.
type AttemptID [16]byte

func NewAttemptID() (AttemptID, error) {
	var id AttemptID
	_, err := rand.Read(id[:])
	return id, err
}

func (a AttemptID) Bytes() []byte {
	return a[:]
}

func (a AttemptID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(a[:])
}

func ParseAttemptID(attemptID string) (AttemptID, error) {
	var id AttemptID

	raw, err := base64.RawURLEncoding.DecodeString(attemptID)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid attempt id size")
	}

	copy(id[:], raw)
	return id, nil
}

// NewOTP returns a fixed-length numeric one-time code drawn digit by digit
// from crypto/rand, so no digit position is biased.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}
