package sealbox

import (
	"io"

	"github.com/google/uuid"
)

// MaxFilenameLength caps the original filename stored in a manifest
const MaxFilenameLength = 4096

// Original filenames never appear in a container in cleartext. The name is
// sealed as its own AEAD message under the container key, with a random
// nonce recorded in the manifest and associated data that ties the
// ciphertext to this container's file ID. A filename ciphertext copied from
// another container, or swapped with a chunk, fails authentication.

// encryptFilename seals an original filename for storage in the manifest
func encryptFilename(rnd io.Reader, engine CipherEngine, suite CipherSuite, fileID uuid.UUID, name string) (ciphertext, nonce []byte, err error) {
	if err := ValidateFilename(name); err != nil {
		return nil, nil, err
	}

	nonce, err = GenerateNonce(rnd, suite)
	if err != nil {
		return nil, nil, err
	}

	ciphertext, err = engine.Encrypt(nonce, filenameAssociatedData(fileID), []byte(name))
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, nonce, nil
}

// decryptFilename recovers and verifies the original filename from its
// manifest fields
func decryptFilename(engine CipherEngine, fileID uuid.UUID, ciphertext, nonce []byte) (string, error) {
	plaintext, err := engine.Decrypt(nonce, filenameAssociatedData(fileID), ciphertext)
	if err != nil {
		return "", &IntegrityError{
			Section: "filename",
			Message: "filename failed authentication",
			Err:     err,
		}
	}
	return string(plaintext), nil
}
