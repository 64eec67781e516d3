// Package storeerr defines the fixed error taxonomy BlobDock surfaces to
// callers, independent of the backend's native error types.
//
// Only two backend conditions are ever remapped: "key does not exist" and
// "digest mismatch / malformed checksum". Transport and auth failures from
// the backend propagate opaquely, wrapped but untranslated.
package storeerr

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when the requested object key is absent for a
// download, chunk, or streaming operation. Delete and existence checks never
// return it: absence is a normal outcome there.
type NotFoundError struct {
	// Key is the object key that was requested.
	Key string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s", e.Key)
}

// IntegrityError is returned when a checksum does not match, either because
// the backend rejected an upload (digest mismatch or malformed checksum
// header) or because post-download verification failed locally.
type IntegrityError struct {
	// Key is the object key involved in the failed operation.
	Key string
	// Expected is the checksum the caller supplied, if any.
	Expected string
	// Actual is the locally recomputed checksum, when verification ran
	// client-side. Empty for server-side rejections.
	Actual string
	// Cause is the underlying backend error for server-side rejections.
	Cause error
}

// Error implements the error interface for IntegrityError.
func (e *IntegrityError) Error() string {
	if e.Actual != "" {
		return fmt.Sprintf("integrity check failed for %s: expected checksum %s, got %s", e.Key, e.Expected, e.Actual)
	}
	if e.Cause != nil {
		return fmt.Sprintf("integrity check failed for %s: %v", e.Key, e.Cause)
	}
	return fmt.Sprintf("integrity check failed for %s", e.Key)
}

// Unwrap exposes the underlying backend error, if any.
func (e *IntegrityError) Unwrap() error {
	return e.Cause
}

// UnsupportedChecksumError is returned when a checksum algorithm outside the
// supported set is configured or requested. It is raised eagerly, before any
// network call.
type UnsupportedChecksumError struct {
	// Algorithm is the rejected algorithm name.
	Algorithm string
}

// Error implements the error interface for UnsupportedChecksumError.
func (e *UnsupportedChecksumError) Error() string {
	return fmt.Sprintf("unsupported checksum algorithm: %s", e.Algorithm)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsIntegrity reports whether err is (or wraps) an IntegrityError.
func IsIntegrity(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}

// IsUnsupportedChecksum reports whether err is (or wraps) an
// UnsupportedChecksumError.
func IsUnsupportedChecksum(err error) bool {
	var target *UnsupportedChecksumError
	return errors.As(err, &target)
}
