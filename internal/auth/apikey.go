// Package auth provides the administrative API key primitives. Administrators
// authenticate with a single long-lived key whose bcrypt hash is held in
// configuration (admin.api_key_hash); the raw key is never stored.
// See internal/middleware/admin.go for the request-time check.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// AdminKeyPrefix prefixes every generated admin key so leaked keys are recognisable.
	AdminKeyPrefix = "iaos"

	// APIKeyLength is the length of the random part of the key in bytes
	APIKeyLength = 32

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// ErrNoAdminKey is returned when no admin key hash is configured.
var ErrNoAdminKey = errors.New("admin API key is not configured")

// GenerateAPIKey creates a new random key with the given prefix.
// Returns the full key (shown once) and its bcrypt hash (stored in config).
func GenerateAPIKey(prefix string) (key string, hash string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := fmt.Sprintf("%s_%s", prefix, base64.RawURLEncoding.EncodeToString(randomBytes))

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return fullKey, string(hashBytes), nil
}

// ValidateAPIKey checks if a provided key matches the stored hash
func ValidateAPIKey(providedKey, storedHash string) bool {
	if providedKey == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey)) == nil
}

// ExtractAPIKeyFromHeader extracts the key from an Authorization header.
// Expected format: "Bearer iaos_abc123xyz..."
func ExtractAPIKeyFromHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if key == "" {
		return "", errors.New("API key is empty after Bearer prefix")
	}
	return key, nil
}

// AdminVerifier checks presented keys against the configured admin key hash.
type AdminVerifier struct {
	hash string
}

// NewAdminVerifier creates a verifier. An empty hash disables admin access.
func NewAdminVerifier(hash string) *AdminVerifier {
	return &AdminVerifier{hash: strings.TrimSpace(hash)}
}

// Enabled reports whether an admin key is configured.
func (v *AdminVerifier) Enabled() bool { return v.hash != "" }

// Verify validates an Authorization header value.
func (v *AdminVerifier) Verify(header string) error {
	if !v.Enabled() {
		return ErrNoAdminKey
	}
	key, err := ExtractAPIKeyFromHeader(header)
	if err != nil {
		return err
	}
	if !ValidateAPIKey(key, v.hash) {
		return errors.New("invalid API key")
	}
	return nil
}
