package sealbox

import (
	"errors"
	"fmt"
)

// Error types represent different categories of errors

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ManifestError represents a structurally invalid or internally inconsistent
// manifest. It wraps ErrManifestCorrupt, or ErrUnsupportedVersion when the
// container format version is unknown.
type ManifestError struct {
	Field   string // The manifest field that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *ManifestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("manifest error: %s", e.Message)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// KeyError represents a failure to obtain or use key material. It wraps
// ErrKeyUnavailable when no matching key exists and ErrWrongKey when the
// presented material is rejected.
type KeyError struct {
	RecipientID string // Recipient identifier, if applicable
	Message     string // Human-readable error message
	Err         error  // Underlying error
}

func (e *KeyError) Error() string {
	if e.RecipientID != "" {
		return fmt.Sprintf("key error: recipient %q: %s", e.RecipientID, e.Message)
	}
	return fmt.Sprintf("key error: %s", e.Message)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// IntegrityError represents an authentication failure or length mismatch in
// stored container data. It wraps ErrIntegrityMismatch, or ErrTruncatedChunk
// when the stored bytes do not match the declared length.
type IntegrityError struct {
	Section string // The container section affected, e.g. "chunk 3" or "filename"
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *IntegrityError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("integrity error: %s: %s", e.Section, e.Message)
	}
	return fmt.Sprintf("integrity error: %s", e.Message)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IOError represents a file system I/O error
type IOError struct {
	Operation string // "read", "write", "rename", "open", "close", etc.
	Path      string // File path
	Offset    int64  // File offset, if applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" && e.Offset >= 0 {
		return fmt.Sprintf("io error: %s %s at offset %d: %s", e.Operation, e.Path, e.Offset, e.Message)
	} else if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrManifestCorrupt    = errors.New("manifest failed validation")
	ErrUnsupportedVersion = errors.New("unsupported container format version")
	ErrUnsupportedCipher  = errors.New("unsupported cipher suite")
	ErrKeyUnavailable     = errors.New("no matching key material available")
	ErrWrongKey           = errors.New("wrong password or recipient key")
	ErrIntegrityMismatch  = errors.New("integrity check failed - data may be corrupted or tampered")
	ErrTruncatedChunk     = errors.New("chunk data truncated")
	ErrNilConfig          = errors.New("config cannot be nil")
	ErrNilFileSystem      = errors.New("filesystem cannot be nil")
	ErrManifestFinalized  = errors.New("manifest already finalized")
)

// Helper functions for creating structured errors

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewManifestError creates a new manifest error wrapping ErrManifestCorrupt
func NewManifestError(field, message string) error {
	return &ManifestError{
		Field:   field,
		Message: message,
		Err:     ErrManifestCorrupt,
	}
}

// NewKeyError creates a new key error wrapping the given cause, which should
// be ErrKeyUnavailable or ErrWrongKey
func NewKeyError(recipientID, message string, cause error) error {
	return &KeyError{
		RecipientID: recipientID,
		Message:     message,
		Err:         cause,
	}
}

// NewIntegrityError creates a new integrity error wrapping ErrIntegrityMismatch
func NewIntegrityError(section, message string) error {
	return &IntegrityError{
		Section: section,
		Message: message,
		Err:     ErrIntegrityMismatch,
	}
}

// NewTruncatedError creates a new integrity error wrapping ErrTruncatedChunk
func NewTruncatedError(section string, want, got int) error {
	return &IntegrityError{
		Section: section,
		Message: fmt.Sprintf("expected %d bytes, got %d", want, got),
		Err:     ErrTruncatedChunk,
	}
}

// NewIOError creates a new I/O error
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Offset:    -1,
		Message:   err.Error(),
		Err:       err,
	}
}

// chunkSection names a chunk for IntegrityError sections
func chunkSection(index uint32) string {
	return fmt.Sprintf("chunk %d", index)
}

// Error checking helpers

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsManifestError checks if an error is a manifest error
func IsManifestError(err error) bool {
	var me *ManifestError
	return errors.As(err, &me)
}

// IsKeyError checks if an error is a key error
func IsKeyError(err error) bool {
	var ke *KeyError
	return errors.As(err, &ke)
}

// IsIntegrityError checks if an error is an integrity error
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
