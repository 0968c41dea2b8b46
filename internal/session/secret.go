package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
)

// minSecretLength is the recommended minimum secret length in bytes.
const minSecretLength = 32

// IsDevMode reports whether the process runs in development mode.
func IsDevMode() bool {
	devMode := os.Getenv("IAOS_DEV_MODE")
	return devMode == "true" || devMode == "1" || os.Getenv("GIN_MODE") == "debug"
}

// ResolveSecret returns the signing secret to use. In development an empty secret is
// replaced by a random one; otherwise it is an error.
func ResolveSecret(configured string, devMode bool) (string, error) {
	if configured == "" {
		if !devMode {
			return "", errors.New("session.secret (IAOS_SESSION_SECRET) is required; generate one with: openssl rand -hex 32")
		}
		b := make([]byte, minSecretLength)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		slog.Warn("IAOS_SESSION_SECRET not set; using a random secret, sessions will not survive a restart")
		return hex.EncodeToString(b), nil
	}
	if len(configured) < minSecretLength {
		slog.Warn("session secret is shorter than the recommended 32 characters")
	}
	return configured, nil
}
