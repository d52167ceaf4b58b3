package sealbox

import (
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"
)

// WrapAlgorithmRSAOAEP identifies RSA-OAEP with SHA-256 and MGF1-SHA-256,
// the only wrap algorithm written by this package
const WrapAlgorithmRSAOAEP = "rsa-oaep-sha256"

// MinRSAKeyBits is the smallest recipient key size accepted for wrapping
const MinRSAKeyBits = 2048

// generateSessionKey creates a new random content encryption key
func generateSessionKey(rnd io.Reader) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rnd, key); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	return key, nil
}

// wrapSessionKey encrypts a session key with a recipient's public key
func wrapSessionKey(rnd io.Reader, recipientID string, pub *rsa.PublicKey, sessionKey []byte) ([]byte, error) {
	if pub == nil {
		return nil, NewKeyError(recipientID, "public key is nil", ErrKeyUnavailable)
	}
	if bits := pub.N.BitLen(); bits < MinRSAKeyBits {
		return nil, NewValidationError("recipient", recipientID,
			fmt.Sprintf("RSA key too small: %d bits, minimum is %d", bits, MinRSAKeyBits))
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rnd, pub, sessionKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap session key for %q: %w", recipientID, err)
	}
	return wrapped, nil
}

// unwrapSessionKey decrypts a wrapped session key with a recipient's private
// key. A padding or size failure means the key does not match the wrapping.
func unwrapSessionKey(rnd io.Reader, recipientID string, priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	if priv == nil {
		return nil, NewKeyError(recipientID, "private key is nil", ErrKeyUnavailable)
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rnd, priv, wrapped, nil)
	if err != nil {
		return nil, NewKeyError(recipientID, "failed to unwrap session key", ErrWrongKey)
	}
	if len(key) != KeySize {
		zeroBytes(key)
		return nil, NewKeyError(recipientID,
			fmt.Sprintf("unwrapped key has %d bytes, expected %d", len(key), KeySize), ErrWrongKey)
	}
	return key, nil
}

// zeroBytes overwrites key material before it is released
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
