// Package cryptox implements the client-side cipher of zkshare: 256-bit key
// material, AES-256-GCM with internally generated IVs, password based key
// derivation and a sequential streaming GCM context for large payloads.
package cryptox

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"

	"github.com/dmitrijs2005/zkshare/internal/common"
)

const (
	// KeySize is the size in bytes of every symmetric key.
	KeySize = 32
	// IVSize is the GCM nonce size. It is public but never repeats for a key.
	IVSize = 12
	// TagSize is the size of the authentication tag appended to ciphertext.
	TagSize = 16
	// SaltSize is the size of salts generated for password derivation.
	SaltSize = 16
	// Algorithm is the only algorithm identifier the system emits.
	Algorithm = "AES-256-GCM"
)

// ErrKeyDisposed is returned when a disposed key is used.
var ErrKeyDisposed = errors.New("key has been disposed")

// Key holds 32 bytes of key material. It is zeroed by Dispose and must not be
// copied after creation; pass *Key around.
type Key struct {
	mu       sync.Mutex
	b        []byte
	disposed bool
}

// GenerateKey returns a fresh random key from crypto/rand.
func GenerateKey() *Key {
	return &Key{b: common.GenerateRandByteArray(KeySize)}
}

// KeyFromBytes copies b into a new Key. The caller keeps ownership of b.
func KeyFromBytes(b []byte) (*Key, error) {
	if len(b) != KeySize {
		return nil, common.NewValidationError("key", "must be %d bytes, got %d", KeySize, len(b))
	}
	k := &Key{b: make([]byte, KeySize)}
	copy(k.b, b)
	return k, nil
}

// keyOwning wraps b without copying; b must not be used by the caller after.
func keyOwning(b []byte) *Key {
	return &Key{b: b}
}

// Bytes returns a copy of the key bytes. The caller should wipe the copy when
// done. Returns ErrKeyDisposed after Dispose.
func (k *Key) Bytes() ([]byte, error) {
	var out []byte
	err := k.use(func(b []byte) error {
		out = make([]byte, len(b))
		copy(out, b)
		return nil
	})
	return out, err
}

// use runs fn with the live key bytes while holding the key lock.
func (k *Key) use(fn func([]byte) error) error {
	if k == nil {
		return ErrKeyDisposed
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.disposed {
		return ErrKeyDisposed
	}
	return fn(k.b)
}

// Clone returns an independent copy of the key.
func (k *Key) Clone() (*Key, error) {
	b, err := k.Bytes()
	if err != nil {
		return nil, err
	}
	return keyOwning(b), nil
}

// Equal compares two keys in constant time. Disposed or nil keys are never
// equal to anything.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return false
	}
	a, err := k.Bytes()
	if err != nil {
		return false
	}
	defer common.WipeByteArray(a)
	b, err := other.Bytes()
	if err != nil {
		return false
	}
	defer common.WipeByteArray(b)
	return ConstantTimeEqual(a, b)
}

// Dispose overwrites the key with zeros. It is idempotent.
func (k *Key) Dispose() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.disposed {
		return
	}
	common.WipeByteArray(k.b)
	k.disposed = true
}

// Disposed reports whether Dispose has been called.
func (k *Key) Disposed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.disposed
}

func (k *Key) String() string   { return "Key([REDACTED])" }
func (k *Key) GoString() string { return k.String() }

// LogValue keeps key bytes out of structured logs.
func (k *Key) LogValue() slog.Value { return slog.StringValue("[REDACTED]") }

// ConstantTimeEqual compares a and b without an early exit. Slices of
// different length are scanned to the longer length and compare unequal; the
// missing bytes of the shorter one read as zero.
func ConstantTimeEqual(a, b []byte) bool {
	n := max(len(a), len(b))
	var diff byte
	for i := 0; i < n; i++ {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		diff |= x ^ y
	}
	return subtle.ConstantTimeByteEq(diff, 0) == 1 && len(a) == len(b)
}
