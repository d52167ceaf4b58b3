package sealbox

import (
	"fmt"
	"strings"
)

// Input validation helpers shared across the package

// ValidateBuffer checks if a buffer is valid (non-nil and has expected size)
func ValidateBuffer(buf []byte, name string, minSize int) error {
	if buf == nil {
		return &ValidationError{
			Field:   name,
			Message: "buffer cannot be nil",
		}
	}
	if minSize > 0 && len(buf) < minSize {
		return &ValidationError{
			Field:   name,
			Value:   len(buf),
			Message: fmt.Sprintf("buffer too small: got %d bytes, need at least %d bytes", len(buf), minSize),
		}
	}
	return nil
}

// ValidateKey checks if a key has the correct size
func ValidateKey(key []byte, expectedSize int) error {
	if key == nil {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot be nil",
		}
	}

	if len(key) != expectedSize {
		return &ValidationError{
			Field:   "key",
			Value:   len(key),
			Message: fmt.Sprintf("invalid key size: got %d bytes, expected %d bytes", len(key), expectedSize),
		}
	}

	return nil
}

// ValidateNonce checks if a nonce has the correct size for a cipher
func ValidateNonce(nonce []byte, cipher CipherSuite) error {
	if nonce == nil {
		return &ValidationError{
			Field:   "nonce",
			Message: "nonce cannot be nil",
		}
	}

	expectedSize, err := nonceSizeFor(cipher)
	if err != nil {
		return &ValidationError{
			Field:   "cipher",
			Value:   cipher,
			Message: "unsupported cipher suite for nonce validation",
			Err:     err,
		}
	}

	if len(nonce) != expectedSize {
		return &ValidationError{
			Field:   "nonce",
			Value:   len(nonce),
			Message: fmt.Sprintf("invalid nonce size: got %d bytes, expected %d bytes for %s", len(nonce), expectedSize, cipher.String()),
		}
	}

	return nil
}

// ValidateFilePath checks if a file path is valid (not empty)
func ValidateFilePath(path string) error {
	if path == "" {
		return &ValidationError{
			Field:   "path",
			Message: "file path cannot be empty",
		}
	}
	return nil
}

// ValidatePassword checks if a password is usable for key derivation
func ValidatePassword(password []byte) error {
	if len(password) == 0 {
		return &ValidationError{
			Field:   "password",
			Message: "password cannot be empty",
		}
	}
	return nil
}

// ValidateRecipientID checks if a recipient identifier is usable as a
// manifest map key
func ValidateRecipientID(id string) error {
	if id == "" {
		return &ValidationError{
			Field:   "recipient",
			Message: "recipient identifier cannot be empty",
		}
	}
	if strings.ContainsRune(id, 0) {
		return &ValidationError{
			Field:   "recipient",
			Value:   id,
			Message: "recipient identifier contains a null byte",
		}
	}
	return nil
}

// ValidateStorageReference checks that a chunk storage reference is a flat
// name that cannot escape the container directory
func ValidateStorageReference(ref string) error {
	if ref == "" {
		return &ValidationError{
			Field:   "storage_reference",
			Message: "storage reference cannot be empty",
		}
	}
	if strings.ContainsAny(ref, "/\\") {
		return &ValidationError{
			Field:   "storage_reference",
			Value:   ref,
			Message: "storage reference must not contain path separators",
		}
	}
	if ref == "." || ref == ".." {
		return &ValidationError{
			Field:   "storage_reference",
			Value:   ref,
			Message: "storage reference must not be a directory reference",
		}
	}
	return nil
}

// ValidateFilename checks that an original filename can be stored in the
// manifest. Empty filenames are allowed.
func ValidateFilename(name string) error {
	if len(name) > MaxFilenameLength {
		return &ValidationError{
			Field:   "filename",
			Value:   len(name),
			Message: fmt.Sprintf("filename too long: %d bytes, maximum is %d", len(name), MaxFilenameLength),
		}
	}
	return nil
}
