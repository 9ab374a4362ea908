package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the default bcrypt cost
	DefaultCost = 12
	// OperatorKeyBytes is the entropy of a generated operator key
	OperatorKeyBytes = 32
)

var (
	bcryptGenerateFromPassword = bcrypt.GenerateFromPassword
	randomRead                 = rand.Read
)

// HashOperatorKey hashes an operator API key using bcrypt
func HashOperatorKey(key string) (string, error) {
	bytes, err := bcryptGenerateFromPassword([]byte(key), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash operator key: %w", err)
	}
	return string(bytes), nil
}

// CheckOperatorKey compares a presented key with its stored hash
func CheckOperatorKey(key, hash string) bool {
	if key == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// GenerateOperatorKey returns a new random hex-encoded operator key
func GenerateOperatorKey() (string, error) {
	bytes := make([]byte, OperatorKeyBytes)
	if _, err := randomRead(bytes); err != nil {
		return "", fmt.Errorf("failed to generate operator key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
