package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

type TokenGenerator interface {
	New() (token string, hash string, err error)
}

type DefaultTokenGenerator struct{}

func (DefaultTokenGenerator) New() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	tok := base64.RawURLEncoding.EncodeToString(buf)
	return tok, HashToken(tok), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewNumericCode returns an n-digit code for email verification and
// phone OTP challenges. Leading zeros are allowed.
func NewNumericCode(n int) (string, error) {
	const digits = "0123456789"
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		out[i] = digits[idx.Int64()]
	}
	return string(out), nil
}
