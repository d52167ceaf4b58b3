package sealbox

import (
	"fmt"
	"io"
)

// CipherSuite represents the authenticated encryption algorithm used for
// chunk and filename encryption
type CipherSuite uint8

const (
	// CipherAuto selects the default cipher suite (AES-256-GCM)
	CipherAuto CipherSuite = iota
	// CipherAES256GCM uses AES-256 with Galois/Counter Mode
	CipherAES256GCM
	// CipherChaCha20Poly1305 uses ChaCha20 stream cipher with Poly1305 MAC
	CipherChaCha20Poly1305
	// CipherXChaCha20Poly1305 uses the extended-nonce ChaCha20-Poly1305 variant
	CipherXChaCha20Poly1305
)

// String returns the string representation of the cipher suite
func (c CipherSuite) String() string {
	switch c {
	case CipherAuto:
		return "auto"
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherChaCha20Poly1305:
		return "chacha20-poly1305"
	case CipherXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return "unknown"
	}
}

// ParseCipherSuite maps a manifest cipher name back to its CipherSuite
func ParseCipherSuite(name string) (CipherSuite, error) {
	switch name {
	case "aes-256-gcm":
		return CipherAES256GCM, nil
	case "chacha20-poly1305":
		return CipherChaCha20Poly1305, nil
	case "xchacha20-poly1305":
		return CipherXChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCipher, name)
	}
}

// Container protection modes as they appear in the manifest "mode" field.
const (
	ModeSymmetric = "symmetric"
	ModeHybrid    = "hybrid"
)

// Mode selects how a container's encryption key is protected. Exactly two
// implementations exist: Symmetric and Hybrid.
type Mode interface {
	modeName() string
}

// Symmetric protects a container with a key derived from a password.
// No wrapped session keys are stored; the manifest records the derivation
// parameters and salt instead.
type Symmetric struct {
	Password []byte
}

func (Symmetric) modeName() string { return ModeSymmetric }

// Hybrid protects a container with a random session key wrapped separately
// for each named recipient. Recipients are resolved through the configured
// Keyring at encryption time.
type Hybrid struct {
	Recipients []string
}

func (Hybrid) modeName() string { return ModeHybrid }

// KeyMaterial identifies the credential presented to recover a container's
// encryption key. Exactly two implementations exist: PasswordMaterial for
// symmetric containers and RecipientMaterial for hybrid containers.
type KeyMaterial interface {
	materialName() string
}

// PasswordMaterial recovers the key of a symmetric container by re-running
// the recorded derivation with the given password.
type PasswordMaterial struct {
	Password []byte
}

func (PasswordMaterial) materialName() string { return "password" }

// RecipientMaterial recovers the key of a hybrid container by unwrapping
// the named recipient's session key with their private key.
type RecipientMaterial struct {
	RecipientID string
}

func (RecipientMaterial) materialName() string { return "recipient" }

// Key derivation algorithm names as they appear in the manifest
// "key_derivation.algorithm" field.
const (
	KDFArgon2id     = "argon2id"
	KDFPBKDF2SHA256 = "pbkdf2-sha256"
	KDFPBKDF2SHA512 = "pbkdf2-sha512"
)

// HashFunc represents hash function types for PBKDF2
type HashFunc uint8

const (
	// SHA256 hash function
	SHA256 HashFunc = iota
	// SHA512 hash function
	SHA512
)

// PBKDF2Params contains parameters for PBKDF2 key derivation
type PBKDF2Params struct {
	Iterations int      // Number of iterations (default 480,000)
	HashFunc   HashFunc // Hash function to use
	SaltSize   int      // Salt size in bytes (default 32)
	KeySize    int      // Derived key size in bytes (default 32 for AES-256)
}

// Argon2idParams contains parameters for Argon2id key derivation
type Argon2idParams struct {
	Memory      uint32 // Memory in KiB (e.g., 64*1024 for 64MB)
	Iterations  uint32 // Number of iterations (time parameter)
	Parallelism uint8  // Degree of parallelism
	SaltSize    int    // Salt size in bytes (default 32)
	KeySize     int    // Derived key size in bytes (default 32 for AES-256)
}

// KDFConfig selects the key derivation algorithm and work factors used for
// new symmetric containers. Zero-value fields fall back to the documented
// defaults when the key provider is built.
type KDFConfig struct {
	// Algorithm is one of KDFArgon2id, KDFPBKDF2SHA256 or KDFPBKDF2SHA512.
	// Empty means KDFArgon2id.
	Algorithm string

	// Argon2id work factors, used when Algorithm is KDFArgon2id
	Argon2id Argon2idParams

	// PBKDF2 work factors, used when Algorithm is a PBKDF2 variant
	PBKDF2 PBKDF2Params
}

// Config contains configuration for an encryption Engine
type Config struct {
	// Cipher suite to use for new containers
	Cipher CipherSuite

	// ChunkSize is the plaintext chunk size in bytes for new containers.
	// Zero means DefaultChunkSize.
	ChunkSize uint32

	// KDF selects derivation parameters for symmetric containers
	KDF KDFConfig

	// Keyring resolves recipient identifiers to RSA keys. Required for
	// hybrid containers, ignored otherwise.
	Keyring Keyring

	// Parallel controls the chunk worker pool. The zero value enables the
	// defaults from DefaultParallelConfig.
	Parallel ParallelConfig

	// Rand is the source of randomness for file IDs, salts, session keys
	// and filename nonces. Nil means crypto/rand.Reader.
	Rand io.Reader
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	switch c.Cipher {
	case CipherAuto, CipherAES256GCM, CipherChaCha20Poly1305, CipherXChaCha20Poly1305:
	default:
		return ErrUnsupportedCipher
	}
	if c.ChunkSize != 0 {
		if err := ValidateChunkSize(c.ChunkSize); err != nil {
			return err
		}
	}
	switch c.KDF.Algorithm {
	case "", KDFArgon2id, KDFPBKDF2SHA256, KDFPBKDF2SHA512:
	default:
		return NewValidationError("kdf", c.KDF.Algorithm, "unsupported key derivation algorithm")
	}
	if c.Parallel != (ParallelConfig{}) {
		if err := c.Parallel.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// KeyProvider is an interface for deriving encryption keys from a
// password-class secret
type KeyProvider interface {
	// DeriveKey derives an encryption key from the given salt
	DeriveKey(salt []byte) ([]byte, error)

	// GenerateSalt generates a new random salt
	GenerateSalt() ([]byte, error)

	// Derivation reports the parameters a manifest must record so the
	// key can be re-derived later. The salt is filled in by the caller.
	Derivation() KeyDerivation
}
