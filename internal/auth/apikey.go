// ABOUTME: Static admin API key check against a bcrypt hash from config
// ABOUTME: Keeps the plaintext key out of the config file

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAPIKey is returned when a presented key does not match.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyVerifier compares presented keys with a bcrypt hash.
type APIKeyVerifier struct {
	hash []byte
}

// NewAPIKeyVerifier validates the hash format up front.
func NewAPIKeyVerifier(hash string) (*APIKeyVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parsing api key hash: %w", err)
	}
	return &APIKeyVerifier{hash: []byte(hash)}, nil
}

// Verify checks key against the stored hash.
func (v *APIKeyVerifier) Verify(key string) error {
	if key == "" {
		return ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}

// HashAPIKey produces the hash to put in config for key.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}
	return string(hash), nil
}
