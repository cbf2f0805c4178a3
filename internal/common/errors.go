// Package common defines shared constants and errors used across the client
// and server layers of zkshare. Callers should use errors.Is / errors.As to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")

	// ErrInvalidToken is returned for malformed or forged manage tokens.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Categories of the typed errors below.
	ErrValidation       = errors.New("validation error")
	ErrPrivacyViolation = errors.New("privacy violation")
	ErrStorage          = errors.New("storage error")

	// ErrAuthentication is returned on any AEAD tag mismatch. The message is
	// generic on purpose: it never says whether the key, the IV or the
	// ciphertext was wrong.
	ErrAuthentication = errors.New("authentication failed")

	// Lifecycle errors.
	ErrFileExpired             = errors.New("file has expired")
	ErrFileDeleted             = errors.New("file has been deleted")
	ErrDownloadLimitExceeded   = errors.New("download limit exceeded")
	ErrCannotExtendDeletedFile = errors.New("cannot extend a deleted file")
)

// ValidationError reports input rejected before any cryptographic work runs.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PrivacyViolationError is returned when an operation would expose plaintext
// without a key, or a client-only operation runs outside the client.
type PrivacyViolationError struct {
	Op     string
	Reason string
}

func (e *PrivacyViolationError) Error() string {
	return fmt.Sprintf("privacy violation in %s: %s", e.Op, e.Reason)
}

func (e *PrivacyViolationError) Unwrap() error { return ErrPrivacyViolation }

// LifecycleError wraps one of ErrFileExpired, ErrFileDeleted,
// ErrDownloadLimitExceeded or ErrCannotExtendDeletedFile together with the
// file it concerns. These are user-facing and never retried.
type LifecycleError struct {
	FileID string
	Err    error
}

func (e *LifecycleError) Error() string {
	if e.FileID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("file %s: %s", e.FileID, e.Err.Error())
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// StorageError wraps a repository or blob store failure with the operation
// that failed. It must never carry ciphertext or key material.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// WrapStorage returns nil for a nil err, the err itself if it already is a
// StorageError, and a new StorageError otherwise.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsLifecycle reports whether err is one of the lifecycle errors.
func IsLifecycle(err error) bool {
	return errors.Is(err, ErrFileExpired) ||
		errors.Is(err, ErrFileDeleted) ||
		errors.Is(err, ErrDownloadLimitExceeded) ||
		errors.Is(err, ErrCannotExtendDeletedFile)
}
