// Package storage defines the Storage interface for files uploaded as questionnaire
// answers, and the registry that maps backend names to constructors.
//
// Backends register themselves from an init() function in their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// cmd/server blank-imports each backend to trigger registration.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Download when the key does not exist.
var ErrNotFound = errors.New("file not found")

// Storage stores uploaded answer files by key.
type Storage interface {
	// Upload stores the content under key and returns its size and checksum.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*UploadResult, error)

	// Download returns a reader for the content. The caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) (bool, error)
}

// UploadResult describes a stored file
type UploadResult struct {
	Key string

	// Size is the file size in bytes
	Size int64

	// Checksum is the hex SHA256 of the file contents
	Checksum string
}

// AnswerKey builds the storage key for a file answer. The random segment keeps
// re-uploads of the same file name from overwriting each other.
func AnswerKey(assignmentID, questionID, filename string) string {
	return path.Join("answers", assignmentID, questionID, uuid.New().String()+"-"+SanitizeFilename(filename))
}

// SanitizeFilename strips directory components and characters outside a
// conservative set. An empty result becomes "upload".
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}

// ValidateKey rejects keys that could escape the storage root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return fmt.Errorf("invalid storage key %q", key)
		}
	}
	return nil
}
