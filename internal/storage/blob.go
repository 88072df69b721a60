// Package storage holds the content-addressed blob stores used for question
// images.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrBlobNotFound is returned by Load for an unknown id.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore stores immutable byte blobs under an id derived from their
// content. Storing identical bytes twice yields the same id and one blob.
type BlobStore interface {
	Store(ctx context.Context, data []byte) (string, error)
	Load(ctx context.Context, id string) ([]byte, error)
	Count(ctx context.Context) (int64, error)
}

// ContentID is the hex sha256 of data.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsValidID reports whether id looks like a ContentID value.
func IsValidID(id string) bool {
	if len(id) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
