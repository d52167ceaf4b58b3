package sealbox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// PasswordKeyProvider implements KeyProvider using password-based key derivation
type PasswordKeyProvider struct {
	password     []byte
	useArgon2id  bool
	pbkdf2Params PBKDF2Params
	argon2Params Argon2idParams
	rand         io.Reader
}

// NewPasswordKeyProviderPBKDF2 creates a new password-based key provider using PBKDF2
func NewPasswordKeyProviderPBKDF2(password []byte, params PBKDF2Params) *PasswordKeyProvider {
	// Set defaults
	if params.Iterations == 0 {
		params.Iterations = 480000
	}
	if params.SaltSize == 0 {
		params.SaltSize = 32
	}
	if params.KeySize == 0 {
		params.KeySize = KeySize
	}

	return &PasswordKeyProvider{
		password:     password,
		useArgon2id:  false,
		pbkdf2Params: params,
		rand:         rand.Reader,
	}
}

// NewPasswordKeyProvider creates a new password-based key provider using Argon2id (recommended)
func NewPasswordKeyProvider(password []byte, params Argon2idParams) *PasswordKeyProvider {
	// Set defaults
	if params.Memory == 0 {
		params.Memory = 64 * 1024 // 64 MB
	}
	if params.Iterations == 0 {
		params.Iterations = 3
	}
	if params.Parallelism == 0 {
		params.Parallelism = 4
	}
	if params.SaltSize == 0 {
		params.SaltSize = 32
	}
	if params.KeySize == 0 {
		params.KeySize = KeySize
	}

	return &PasswordKeyProvider{
		password:     password,
		useArgon2id:  true,
		argon2Params: params,
		rand:         rand.Reader,
	}
}

// DeriveKey derives an encryption key from the password and salt
func (p *PasswordKeyProvider) DeriveKey(salt []byte) ([]byte, error) {
	if len(p.password) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, errors.New("salt cannot be empty")
	}

	if p.useArgon2id {
		key := argon2.IDKey(
			p.password,
			salt,
			p.argon2Params.Iterations,
			p.argon2Params.Memory,
			p.argon2Params.Parallelism,
			uint32(p.argon2Params.KeySize),
		)
		return key, nil
	}

	var hashFunc func() hash.Hash
	switch p.pbkdf2Params.HashFunc {
	case SHA256:
		hashFunc = sha256.New
	case SHA512:
		hashFunc = sha512.New
	default:
		return nil, fmt.Errorf("unsupported hash function: %v", p.pbkdf2Params.HashFunc)
	}

	key := pbkdf2.Key(
		p.password,
		salt,
		p.pbkdf2Params.Iterations,
		p.pbkdf2Params.KeySize,
		hashFunc,
	)
	return key, nil
}

// GenerateSalt generates a new random salt
func (p *PasswordKeyProvider) GenerateSalt() ([]byte, error) {
	var saltSize int
	if p.useArgon2id {
		saltSize = p.argon2Params.SaltSize
	} else {
		saltSize = p.pbkdf2Params.SaltSize
	}

	rnd := p.rand
	if rnd == nil {
		rnd = rand.Reader
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rnd, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Derivation reports the parameters a manifest records for this provider.
// The caller fills in the salt.
func (p *PasswordKeyProvider) Derivation() KeyDerivation {
	if p.useArgon2id {
		return KeyDerivation{
			Algorithm:   KDFArgon2id,
			MemoryKiB:   p.argon2Params.Memory,
			Iterations:  p.argon2Params.Iterations,
			Parallelism: p.argon2Params.Parallelism,
		}
	}

	algorithm := KDFPBKDF2SHA256
	if p.pbkdf2Params.HashFunc == SHA512 {
		algorithm = KDFPBKDF2SHA512
	}
	return KeyDerivation{
		Algorithm:  algorithm,
		Iterations: uint32(p.pbkdf2Params.Iterations),
	}
}

// providerFromConfig builds the key provider used for a new symmetric
// container from engine configuration
func providerFromConfig(password []byte, kdf KDFConfig, rnd io.Reader) (*PasswordKeyProvider, error) {
	var p *PasswordKeyProvider
	switch kdf.Algorithm {
	case "", KDFArgon2id:
		p = NewPasswordKeyProvider(password, kdf.Argon2id)
	case KDFPBKDF2SHA256:
		params := kdf.PBKDF2
		params.HashFunc = SHA256
		p = NewPasswordKeyProviderPBKDF2(password, params)
	case KDFPBKDF2SHA512:
		params := kdf.PBKDF2
		params.HashFunc = SHA512
		p = NewPasswordKeyProviderPBKDF2(password, params)
	default:
		return nil, NewValidationError("kdf", kdf.Algorithm, "unsupported key derivation algorithm")
	}
	if rnd != nil {
		p.rand = rnd
	}
	return p, nil
}

// providerFromDerivation rebuilds the key provider recorded in a manifest
// so the same key can be re-derived during decryption. The derivation
// parameters have already passed manifest validation.
func providerFromDerivation(password []byte, kd *KeyDerivation) (*PasswordKeyProvider, error) {
	switch kd.Algorithm {
	case KDFArgon2id:
		return &PasswordKeyProvider{
			password:    password,
			useArgon2id: true,
			argon2Params: Argon2idParams{
				Memory:      kd.MemoryKiB,
				Iterations:  kd.Iterations,
				Parallelism: kd.Parallelism,
				SaltSize:    len(kd.Salt),
				KeySize:     KeySize,
			},
			rand: rand.Reader,
		}, nil
	case KDFPBKDF2SHA256, KDFPBKDF2SHA512:
		hf := SHA256
		if kd.Algorithm == KDFPBKDF2SHA512 {
			hf = SHA512
		}
		return &PasswordKeyProvider{
			password: password,
			pbkdf2Params: PBKDF2Params{
				Iterations: int(kd.Iterations),
				HashFunc:   hf,
				SaltSize:   len(kd.Salt),
				KeySize:    KeySize,
			},
			rand: rand.Reader,
		}, nil
	default:
		return nil, NewManifestError("key_derivation.algorithm", fmt.Sprintf("unknown algorithm %q", kd.Algorithm))
	}
}
