// Package storage keeps uploaded PDF sources so a session can reload them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("object not found")

// Store persists opaque blobs by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewKey derives a fresh object key for a session's upload.
func NewKey(sessionID string) string {
	return path.Join(sessionID, uuid.NewString()+".pdf")
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean(strings.TrimPrefix(key, "/"))
	if k == "." || k == "" || strings.HasPrefix(k, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return k, nil
}
