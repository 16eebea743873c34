// Package blobstore defines the storage behind the blob data handler: opaque
// byte values addressed by string keys.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxKeyLength bounds keys so they map onto every backend (S3 allows 1024
// bytes).
const MaxKeyLength = 1024

var (
	// ErrNotFound indicates the key does not exist.
	ErrNotFound = errors.New("blobstore: key not found")

	// ErrInvalidKey indicates a key that no backend can store.
	ErrInvalidKey = errors.New("blobstore: invalid key")
)

// Store holds blobs by key.
//
// Keys are slash-separated paths without empty, "." or ".." segments.
// Implementations must be safe for concurrent use and must wrap ErrNotFound
// when Get or Delete address a missing key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	// List returns every key starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Healthcheck reports whether the backend is reachable.
	Healthcheck(ctx context.Context) error

	Close() error
}

// ValidateKey rejects keys that would escape a filesystem root or that no
// backend accepts.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidKey, len(key), MaxKeyLength)
	case strings.ContainsRune(key, 0):
		return fmt.Errorf("%w: contains NUL", ErrInvalidKey)
	case strings.ContainsRune(key, '\\'):
		return fmt.Errorf("%w: contains backslash", ErrInvalidKey)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: absolute path %q", ErrInvalidKey, key)
	}

	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: bad path segment in %q", ErrInvalidKey, key)
		}
	}
	return nil
}
