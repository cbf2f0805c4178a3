// Package blobstore holds the opaque ciphertext of shared files. Stores never
// see keys or plaintext; a blob is just bytes under a storage key.
package blobstore

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by Get and Delete for unknown keys.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is the object storage port.
type BlobStore interface {
	Put(ctx context.Context, key string, blob []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}
