package sealbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the symmetric key size in bytes. AES-256 and both ChaCha20
// variants all take 32-byte keys.
const KeySize = 32

// aeadOverhead is the authentication tag size shared by every supported
// suite. Manifest validation depends on it before any key is recovered.
const aeadOverhead = 16

// nonceInfo is the HKDF info string for deriving a container's nonce base
const nonceInfo = "sealbox/v1/chunk-nonce"

// Associated data domain tags. Chunk and filename ciphertexts carry
// different tags so one can never be presented as the other.
const (
	aadDomainChunk    byte = 0x00
	aadDomainFilename byte = 0x01
)

// CipherEngine provides AEAD encryption/decryption
type CipherEngine interface {
	// Encrypt seals plaintext with the given nonce and associated data
	Encrypt(nonce, associatedData, plaintext []byte) ([]byte, error)

	// Decrypt opens ciphertext with the given nonce and associated data
	Decrypt(nonce, associatedData, ciphertext []byte) ([]byte, error)

	// NonceSize returns the size of nonces in bytes
	NonceSize() int

	// Overhead returns the authentication tag size
	Overhead() int
}

// AESGCMEngine implements CipherEngine using AES-256-GCM
type AESGCMEngine struct {
	aead cipher.AEAD
}

// NewAESGCMEngine creates a new AES-256-GCM cipher engine
func NewAESGCMEngine(key []byte) (*AESGCMEngine, error) {
	if err := ValidateKey(key, KeySize); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMEngine{aead: aead}, nil
}

// Encrypt encrypts plaintext using AES-256-GCM
func (e *AESGCMEngine) Encrypt(nonce, associatedData, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}

	return e.aead.Seal(nil, nonce, plaintext, associatedData), nil
}

// Decrypt decrypts ciphertext using AES-256-GCM
func (e *AESGCMEngine) Decrypt(nonce, associatedData, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	if err := ValidateBuffer(ciphertext, "ciphertext", e.Overhead()); err != nil {
		return nil, err
	}

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrIntegrityMismatch
	}

	return plaintext, nil
}

// NonceSize returns the nonce size for AES-GCM (12 bytes)
func (e *AESGCMEngine) NonceSize() int {
	return e.aead.NonceSize()
}

// Overhead returns the authentication tag size (16 bytes)
func (e *AESGCMEngine) Overhead() int {
	return e.aead.Overhead()
}

// ChaCha20Poly1305Engine implements CipherEngine using ChaCha20-Poly1305
type ChaCha20Poly1305Engine struct {
	aead cipher.AEAD
}

// NewChaCha20Poly1305Engine creates a new ChaCha20-Poly1305 cipher engine
func NewChaCha20Poly1305Engine(key []byte) (*ChaCha20Poly1305Engine, error) {
	if err := ValidateKey(key, chacha20poly1305.KeySize); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &ChaCha20Poly1305Engine{aead: aead}, nil
}

// Encrypt encrypts plaintext using ChaCha20-Poly1305
func (e *ChaCha20Poly1305Engine) Encrypt(nonce, associatedData, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}

	return e.aead.Seal(nil, nonce, plaintext, associatedData), nil
}

// Decrypt decrypts ciphertext using ChaCha20-Poly1305
func (e *ChaCha20Poly1305Engine) Decrypt(nonce, associatedData, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	if err := ValidateBuffer(ciphertext, "ciphertext", e.Overhead()); err != nil {
		return nil, err
	}

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrIntegrityMismatch
	}

	return plaintext, nil
}

// NonceSize returns the nonce size for ChaCha20-Poly1305 (12 bytes)
func (e *ChaCha20Poly1305Engine) NonceSize() int {
	return e.aead.NonceSize()
}

// Overhead returns the authentication tag size (16 bytes)
func (e *ChaCha20Poly1305Engine) Overhead() int {
	return e.aead.Overhead()
}

// XChaCha20Poly1305Engine implements CipherEngine using XChaCha20-Poly1305
type XChaCha20Poly1305Engine struct {
	aead cipher.AEAD
}

// NewXChaCha20Poly1305Engine creates a new XChaCha20-Poly1305 cipher engine
func NewXChaCha20Poly1305Engine(key []byte) (*XChaCha20Poly1305Engine, error) {
	if err := ValidateKey(key, chacha20poly1305.KeySize); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create XChaCha20-Poly1305 cipher: %w", err)
	}

	return &XChaCha20Poly1305Engine{aead: aead}, nil
}

// Encrypt encrypts plaintext using XChaCha20-Poly1305
func (e *XChaCha20Poly1305Engine) Encrypt(nonce, associatedData, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}

	return e.aead.Seal(nil, nonce, plaintext, associatedData), nil
}

// Decrypt decrypts ciphertext using XChaCha20-Poly1305
func (e *XChaCha20Poly1305Engine) Decrypt(nonce, associatedData, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	if err := ValidateBuffer(ciphertext, "ciphertext", e.Overhead()); err != nil {
		return nil, err
	}

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrIntegrityMismatch
	}

	return plaintext, nil
}

// NonceSize returns the nonce size for XChaCha20-Poly1305 (24 bytes)
func (e *XChaCha20Poly1305Engine) NonceSize() int {
	return e.aead.NonceSize()
}

// Overhead returns the authentication tag size (16 bytes)
func (e *XChaCha20Poly1305Engine) Overhead() int {
	return e.aead.Overhead()
}

// NewCipherEngine creates a new cipher engine based on the cipher suite
func NewCipherEngine(cipher CipherSuite, key []byte) (CipherEngine, error) {
	switch cipher {
	case CipherAES256GCM:
		return NewAESGCMEngine(key)
	case CipherChaCha20Poly1305:
		return NewChaCha20Poly1305Engine(key)
	case CipherXChaCha20Poly1305:
		return NewXChaCha20Poly1305Engine(key)
	case CipherAuto:
		// Auto resolves to AES-256-GCM
		return NewAESGCMEngine(key)
	default:
		return nil, ErrUnsupportedCipher
	}
}

// nonceSizeFor returns the nonce size in bytes for a cipher suite
func nonceSizeFor(cipher CipherSuite) (int, error) {
	switch cipher {
	case CipherAES256GCM, CipherChaCha20Poly1305, CipherAuto:
		return chacha20poly1305.NonceSize, nil
	case CipherXChaCha20Poly1305:
		return chacha20poly1305.NonceSizeX, nil
	default:
		return 0, ErrUnsupportedCipher
	}
}

// GenerateNonce generates a random nonce for the given cipher
func GenerateNonce(rnd io.Reader, cipher CipherSuite) ([]byte, error) {
	if rnd == nil {
		rnd = rand.Reader
	}

	nonceSize, err := nonceSizeFor(cipher)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rnd, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return nonce, nil
}

// deriveNonceBase derives a container's chunk nonce base from its file ID.
// The base is a pure function of the file ID, so a validator can recompute
// every expected chunk nonce without any key material.
func deriveNonceBase(fileID uuid.UUID, size int) ([]byte, error) {
	r := hkdf.New(sha256.New, fileID[:], nil, []byte(nonceInfo))
	base := make([]byte, size)
	if _, err := io.ReadFull(r, base); err != nil {
		return nil, fmt.Errorf("failed to derive nonce base: %w", err)
	}
	return base, nil
}

// chunkNonce builds the nonce for one chunk by folding the big-endian chunk
// index into the low eight bytes of the nonce base
func chunkNonce(base []byte, index uint32) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)

	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(index))
	for i := 0; i < 8; i++ {
		nonce[len(nonce)-8+i] ^= idx[i]
	}
	return nonce
}

// chunkAssociatedData binds a chunk ciphertext to its container and index
func chunkAssociatedData(fileID uuid.UUID, index uint32) []byte {
	ad := make([]byte, 0, len(fileID)+1+8)
	ad = append(ad, fileID[:]...)
	ad = append(ad, aadDomainChunk)

	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(index))
	return append(ad, idx[:]...)
}

// filenameAssociatedData binds the filename ciphertext to its container
func filenameAssociatedData(fileID uuid.UUID) []byte {
	ad := make([]byte, 0, len(fileID)+1)
	ad = append(ad, fileID[:]...)
	return append(ad, aadDomainFilename)
}
