package sealbox

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
)

// Engine converts files into encrypted chunk containers and back over an
// abstract filesystem. An Engine is safe for concurrent use; every call
// runs an independent job with its own key material and handles.
type Engine struct {
	fs        absfs.FileSystem
	config    *Config
	cipher    CipherSuite
	chunkSize uint32
	parallel  ParallelConfig
	rand      io.Reader
}

// New creates an encryption engine on top of a filesystem
func New(fs absfs.FileSystem, config *Config) (*Engine, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}
	if config == nil {
		return nil, ErrNilConfig
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		fs:        fs,
		config:    config,
		cipher:    config.Cipher,
		chunkSize: config.ChunkSize,
		parallel:  config.Parallel,
		rand:      config.Rand,
	}
	if e.cipher == CipherAuto {
		e.cipher = CipherAES256GCM
	}
	if e.chunkSize == 0 {
		e.chunkSize = DefaultChunkSize
	}
	if e.parallel == (ParallelConfig{}) {
		e.parallel = DefaultParallelConfig()
	}
	if e.rand == nil {
		e.rand = rand.Reader
	}
	return e, nil
}

// Encrypt reads a source stream and writes a new encrypted container
// directory at containerPath, returning its finalized manifest. The
// manifest is written last; if any step fails the partial container is
// removed and no manifest exists.
func (e *Engine) Encrypt(ctx context.Context, src io.Reader, filename string, mode Mode, containerPath string) (man *Manifest, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if src == nil {
		return nil, NewValidationError("source", nil, "source reader cannot be nil")
	}
	if err := ValidateFilePath(containerPath); err != nil {
		return nil, err
	}
	if mode == nil {
		return nil, NewValidationError("mode", nil, "mode cannot be nil")
	}

	sessionKey, kd, wrapped, err := e.prepareMode(mode)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(sessionKey)

	fileID, err := uuid.NewRandomFromReader(e.rand)
	if err != nil {
		return nil, fmt.Errorf("failed to generate file identifier: %w", err)
	}

	engine, err := NewCipherEngine(e.cipher, sessionKey)
	if err != nil {
		return nil, err
	}

	man = newManifest(fileID, mode.modeName(), e.cipher.String(), e.chunkSize, time.Now().UTC())
	man.KeyDerivation = kd
	man.RecipientKeys = wrapped

	man.FilenameCiphertext, man.FilenameNonce, err = encryptFilename(e.rand, engine, e.cipher, fileID, filename)
	if err != nil {
		return nil, err
	}

	if _, serr := e.fs.Stat(containerPath); serr == nil {
		return nil, NewValidationError("container", containerPath, "container path already exists")
	} else if !os.IsNotExist(serr) {
		return nil, NewIOError("stat", containerPath, serr)
	}
	if err := e.fs.MkdirAll(containerPath, 0700); err != nil {
		return nil, NewIOError("mkdir", containerPath, err)
	}
	defer func() {
		if err != nil {
			e.fs.RemoveAll(containerPath)
		}
	}()

	total, err := e.encryptChunks(ctx, src, man, engine, containerPath)
	if err != nil {
		return nil, err
	}

	if err = man.finalize(total); err != nil {
		return nil, err
	}
	if err = man.Store(e.fs, containerPath); err != nil {
		return nil, err
	}
	return man, nil
}

// prepareMode resolves a protection mode into the session key and the
// manifest fields that record how to recover it
func (e *Engine) prepareMode(mode Mode) ([]byte, *KeyDerivation, map[string]*WrappedKey, error) {
	switch m := mode.(type) {
	case Symmetric:
		if err := ValidatePassword(m.Password); err != nil {
			return nil, nil, nil, err
		}
		provider, err := providerFromConfig(m.Password, e.config.KDF, e.rand)
		if err != nil {
			return nil, nil, nil, err
		}
		salt, err := provider.GenerateSalt()
		if err != nil {
			return nil, nil, nil, err
		}
		key, err := provider.DeriveKey(salt)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to derive key: %w", err)
		}
		kd := provider.Derivation()
		kd.Salt = salt
		return key, &kd, nil, nil

	case Hybrid:
		if len(m.Recipients) == 0 {
			return nil, nil, nil, NewValidationError("recipients", nil, "hybrid mode requires at least one recipient")
		}
		if e.config.Keyring == nil {
			return nil, nil, nil, NewValidationError("keyring", nil, "hybrid mode requires a keyring")
		}

		key, err := generateSessionKey(e.rand)
		if err != nil {
			return nil, nil, nil, err
		}

		wrapped := make(map[string]*WrappedKey, len(m.Recipients))
		for _, id := range m.Recipients {
			if err := ValidateRecipientID(id); err != nil {
				zeroBytes(key)
				return nil, nil, nil, err
			}
			if _, dup := wrapped[id]; dup {
				zeroBytes(key)
				return nil, nil, nil, NewValidationError("recipients", id, "recipient listed more than once")
			}
			pub, err := e.config.Keyring.PublicKey(id)
			if err != nil {
				zeroBytes(key)
				return nil, nil, nil, err
			}
			wk, err := wrapSessionKey(e.rand, id, pub, key)
			if err != nil {
				zeroBytes(key)
				return nil, nil, nil, err
			}
			wrapped[id] = &WrappedKey{
				RecipientID:       id,
				WrappedSessionKey: wk,
				WrapAlgorithm:     WrapAlgorithmRSAOAEP,
			}
		}
		return key, nil, wrapped, nil

	default:
		return nil, nil, nil, NewValidationError("mode", fmt.Sprintf("%T", mode), "unknown protection mode")
	}
}

// recoverSessionKey turns presented key material into the container's
// encryption key
func (e *Engine) recoverSessionKey(man *Manifest, km KeyMaterial) ([]byte, error) {
	switch k := km.(type) {
	case PasswordMaterial:
		if man.Mode != ModeSymmetric {
			return nil, NewValidationError("key_material", k.materialName(),
				fmt.Sprintf("password material cannot open a %s container", man.Mode))
		}
		if err := ValidatePassword(k.Password); err != nil {
			return nil, err
		}
		provider, err := providerFromDerivation(k.Password, man.KeyDerivation)
		if err != nil {
			return nil, err
		}
		key, err := provider.DeriveKey(man.KeyDerivation.Salt)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key: %w", err)
		}
		return key, nil

	case RecipientMaterial:
		if man.Mode != ModeHybrid {
			return nil, NewValidationError("key_material", k.materialName(),
				fmt.Sprintf("recipient material cannot open a %s container", man.Mode))
		}
		if err := ValidateRecipientID(k.RecipientID); err != nil {
			return nil, err
		}
		if e.config.Keyring == nil {
			return nil, NewValidationError("keyring", nil, "recipient material requires a keyring")
		}
		wk, err := man.WrappedKeyFor(k.RecipientID)
		if err != nil {
			return nil, err
		}
		priv, err := e.config.Keyring.PrivateKey(k.RecipientID)
		if err != nil {
			return nil, err
		}
		return unwrapSessionKey(e.rand, k.RecipientID, priv, wk.WrappedSessionKey)

	default:
		return nil, NewValidationError("key_material", fmt.Sprintf("%T", km), "unknown key material")
	}
}

// Decrypt verifies a container and writes its plaintext to destPath,
// returning the recovered original filename. The destination file appears
// only after every chunk and the filename have verified; a failed job
// leaves no partial plaintext.
func (e *Engine) Decrypt(ctx context.Context, containerPath string, km KeyMaterial, destPath string) (name string, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ValidateFilePath(containerPath); err != nil {
		return "", err
	}
	if err := ValidateFilePath(destPath); err != nil {
		return "", err
	}
	if km == nil {
		return "", NewValidationError("key_material", nil, "key material cannot be nil")
	}

	man, err := LoadManifest(e.fs, containerPath)
	if err != nil {
		return "", err
	}

	sessionKey, err := e.recoverSessionKey(man, km)
	if err != nil {
		return "", err
	}
	defer zeroBytes(sessionKey)

	suite, err := ParseCipherSuite(man.Cipher)
	if err != nil {
		return "", err
	}
	engine, err := NewCipherEngine(suite, sessionKey)
	if err != nil {
		return "", err
	}

	staged, err := newStagedFile(e.fs, e.rand, destPath)
	if err != nil {
		return "", err
	}
	defer staged.CleanupOnError(&err)

	chunkSize := int64(man.ChunkSize)
	err = e.decryptChunks(ctx, man, engine, containerPath, func(index uint32, plaintext []byte) error {
		if _, werr := staged.file.WriteAt(plaintext, int64(index)*chunkSize); werr != nil {
			return &IOError{
				Operation: "write",
				Path:      staged.tmpPath,
				Offset:    int64(index) * chunkSize,
				Message:   werr.Error(),
				Err:       werr,
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	name, err = decryptFilename(engine, man.FileID, man.FilenameCiphertext, man.FilenameNonce)
	if err != nil {
		return "", err
	}

	if err = staged.Promote(); err != nil {
		return "", err
	}
	return name, nil
}

// Open returns a streaming reader over a container's plaintext. The
// filename is verified at open time, so a wrong password or key fails
// here; chunks verify one at a time as the stream is read.
func (e *Engine) Open(ctx context.Context, containerPath string, km KeyMaterial) (*Reader, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ValidateFilePath(containerPath); err != nil {
		return nil, err
	}
	if km == nil {
		return nil, NewValidationError("key_material", nil, "key material cannot be nil")
	}

	man, err := LoadManifest(e.fs, containerPath)
	if err != nil {
		return nil, err
	}

	sessionKey, err := e.recoverSessionKey(man, km)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(sessionKey)

	suite, err := ParseCipherSuite(man.Cipher)
	if err != nil {
		return nil, err
	}
	engine, err := NewCipherEngine(suite, sessionKey)
	if err != nil {
		return nil, err
	}

	name, err := decryptFilename(engine, man.FileID, man.FilenameCiphertext, man.FilenameNonce)
	if err != nil {
		return nil, err
	}

	nonceBase, err := deriveNonceBase(man.FileID, engine.NonceSize())
	if err != nil {
		return nil, err
	}

	return &Reader{
		fs:        e.fs,
		dir:       containerPath,
		manifest:  man,
		engine:    engine,
		nonceBase: nonceBase,
		filename:  name,
		chunks:    man.orderedChunks(),
		ctx:       ctx,
	}, nil
}

// Verify authenticates every chunk and the filename without writing any
// plaintext. A nil return means the container decrypts fully with the
// presented key material.
func (e *Engine) Verify(ctx context.Context, containerPath string, km KeyMaterial) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ValidateFilePath(containerPath); err != nil {
		return err
	}
	if km == nil {
		return NewValidationError("key_material", nil, "key material cannot be nil")
	}

	man, err := LoadManifest(e.fs, containerPath)
	if err != nil {
		return err
	}

	sessionKey, err := e.recoverSessionKey(man, km)
	if err != nil {
		return err
	}
	defer zeroBytes(sessionKey)

	suite, err := ParseCipherSuite(man.Cipher)
	if err != nil {
		return err
	}
	engine, err := NewCipherEngine(suite, sessionKey)
	if err != nil {
		return err
	}

	err = e.decryptChunks(ctx, man, engine, containerPath, func(uint32, []byte) error {
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := decryptFilename(engine, man.FileID, man.FilenameCiphertext, man.FilenameNonce); err != nil {
		return err
	}
	return nil
}

// Inspect loads and validates a container manifest without key material.
// It proves the manifest is structurally sound; chunk contents are not
// authenticated.
func (e *Engine) Inspect(containerPath string) (*Manifest, error) {
	if err := ValidateFilePath(containerPath); err != nil {
		return nil, err
	}
	return LoadManifest(e.fs, containerPath)
}
