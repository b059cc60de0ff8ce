package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// NewVerificationCode returns a random 6 digit code.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// NormalizeCode strips the separators the verification form may submit ("1,2,3,4,5,6").
func NormalizeCode(code string) string {
	return strings.NewReplacer(",", "", " ", "").Replace(code)
}
