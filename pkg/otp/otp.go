// Package otp generates numeric one-time codes and one-way commitments of
// them. Only the commitment is ever stored; the plaintext code travels to the
// receiver out of band and is discarded.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// codeMin and codeMax bound the 6-digit code space. The lower bound
	// keeps every code at exactly six digits.
	codeMin = 100000
	codeMax = 999999
)

// Generate returns a uniformly random 6-digit numeric code.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// Commit returns the hex-encoded SHA-256 commitment of code.
func Commit(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether code commits to commitment. Comparison is
// constant-time; code format is irrelevant since only the commitment is
// compared.
func Matches(commitment, code string) bool {
	return subtle.ConstantTimeCompare([]byte(commitment), []byte(Commit(code))) == 1
}
