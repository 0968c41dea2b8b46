// Package crypto provides AES-256-GCM authenticated encryption for questionnaire answers
// that carry Controlled Unclassified Information. Ciphertexts are bound to the row they
// belong to through GCM additional data, so a sealed answer copied onto another
// (assignment, question) pair fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a master key is not exactly 32 bytes.
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrCiphertextCorrupted is returned when the ciphertext fails base64 decoding or is too short to contain a nonce.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when GCM authentication fails: tampering, a wrong key, or mismatched binding.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
	// ErrSaltTooShort is returned when a PBKDF2 salt is shorter than 16 bytes.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
)

// AnswerCipher seals and opens answer payloads.
type AnswerCipher struct {
	aead cipher.AEAD
}

// NewAnswerCipher creates a cipher from a 32-byte master key.
func NewAnswerCipher(masterKey []byte) (*AnswerCipher, error) {
	if len(masterKey) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AnswerCipher{aead: aead}, nil
}

// DeriveAnswerCipher derives the master key from a passphrase with PBKDF2-SHA256.
func DeriveAnswerCipher(passphrase string, salt []byte, iterations int) (*AnswerCipher, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = 100000
	}
	return NewAnswerCipher(pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New))
}

// ParseKey accepts a 32-byte key encoded as 64 hex characters or standard base64.
func ParseKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, ErrKeyLengthInvalid
}

// Seal encrypts plaintext bound to the given context (for example assignmentID+questionID)
// and returns URL-safe base64 of nonce||ciphertext.
func (c *AnswerCipher) Seal(plaintext []byte, binding string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, []byte(binding))
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. The binding must match the one used when sealing.
func (c *AnswerCipher) Open(encoded string, binding string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrCiphertextCorrupted
	}
	n := c.aead.NonceSize()
	if len(raw) < n {
		return nil, ErrCiphertextCorrupted
	}
	plaintext, err := c.aead.Open(nil, raw[:n], raw[n:], []byte(binding))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// GenerateKey creates a random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
