package sealbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
)

const (
	// ManifestVersion is the container format version written by this package
	ManifestVersion = 1

	// ManifestFilename is the manifest document name inside a container
	ManifestFilename = "manifest.json"
)

// KeyDerivation records the algorithm and work factors needed to re-derive
// a symmetric container's key from its password
type KeyDerivation struct {
	Algorithm   string `json:"algorithm"`
	Salt        []byte `json:"salt"`
	Iterations  uint32 `json:"iterations"`
	MemoryKiB   uint32 `json:"memory_kib,omitempty"`
	Parallelism uint8  `json:"parallelism,omitempty"`
}

// WrappedKey holds one recipient's copy of a hybrid container's session key
type WrappedKey struct {
	RecipientID       string `json:"recipient_id"`
	WrappedSessionKey []byte `json:"wrapped_session_key"`
	WrapAlgorithm     string `json:"wrap_algorithm"`
}

// ChunkRecord describes one encrypted chunk. The index is authoritative for
// plaintext ordering; position within the manifest sequence is not trusted.
type ChunkRecord struct {
	Index            uint32 `json:"index"`
	Nonce            []byte `json:"nonce"`
	CiphertextLength uint32 `json:"ciphertext_length"`
	StorageReference string `json:"storage_reference"`
}

// Manifest is the authoritative description of an encrypted container. A
// container without a valid manifest is unreadable, so manifests are always
// written last and replaced atomically.
type Manifest struct {
	FileID             uuid.UUID              `json:"file_id"`
	Version            int                    `json:"version"`
	Mode               string                 `json:"mode"`
	Cipher             string                 `json:"cipher"`
	ChunkSize          uint32                 `json:"chunk_size"`
	TotalSize          int64                  `json:"total_size"`
	ChunkCount         uint32                 `json:"chunk_count"`
	Chunks             []ChunkRecord          `json:"chunks"`
	FilenameCiphertext []byte                 `json:"filename_ciphertext"`
	FilenameNonce      []byte                 `json:"filename_nonce"`
	KeyDerivation      *KeyDerivation         `json:"key_derivation,omitempty"`
	RecipientKeys      map[string]*WrappedKey `json:"recipient_keys,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`

	finalized bool
}

// newManifest starts an in-progress manifest for a new container
func newManifest(fileID uuid.UUID, mode, cipherName string, chunkSize uint32, createdAt time.Time) *Manifest {
	return &Manifest{
		FileID:    fileID,
		Version:   ManifestVersion,
		Mode:      mode,
		Cipher:    cipherName,
		ChunkSize: chunkSize,
		Chunks:    []ChunkRecord{},
		CreatedAt: createdAt,
	}
}

// addChunk appends the next chunk record. Records are appended strictly in
// index order while the manifest is being built.
func (m *Manifest) addChunk(rec ChunkRecord) error {
	if m.finalized {
		return ErrManifestFinalized
	}
	if rec.Index != uint32(len(m.Chunks)) {
		return fmt.Errorf("chunk %d recorded out of order, %d chunks present", rec.Index, len(m.Chunks))
	}
	m.Chunks = append(m.Chunks, rec)
	return nil
}

// finalize seals the manifest once all chunks are recorded and runs a full
// validation pass over the result
func (m *Manifest) finalize(totalSize int64) error {
	if m.finalized {
		return ErrManifestFinalized
	}
	m.TotalSize = totalSize
	m.ChunkCount = uint32(len(m.Chunks))
	m.finalized = true

	if err := m.Validate(); err != nil {
		return fmt.Errorf("finalized manifest failed validation: %w", err)
	}
	return nil
}

// Validate checks every structural invariant of the manifest. It uses no
// key material, so it runs before any password or private key is touched.
func (m *Manifest) Validate() error {
	if m.Version != ManifestVersion {
		return &ManifestError{
			Field:   "version",
			Message: fmt.Sprintf("version %d is not supported", m.Version),
			Err:     ErrUnsupportedVersion,
		}
	}
	if m.FileID == uuid.Nil {
		return NewManifestError("file_id", "file identifier is missing")
	}
	if m.Mode != ModeSymmetric && m.Mode != ModeHybrid {
		return NewManifestError("mode", fmt.Sprintf("unknown mode %q", m.Mode))
	}

	suite, err := ParseCipherSuite(m.Cipher)
	if err != nil {
		return &ManifestError{
			Field:   "cipher",
			Message: fmt.Sprintf("unknown cipher %q", m.Cipher),
			Err:     ErrManifestCorrupt,
		}
	}
	nonceSize, err := nonceSizeFor(suite)
	if err != nil {
		return NewManifestError("cipher", fmt.Sprintf("no nonce size for cipher %q", m.Cipher))
	}

	if err := ValidateChunkSize(m.ChunkSize); err != nil {
		return NewManifestError("chunk_size", err.Error())
	}
	if m.TotalSize < 0 {
		return NewManifestError("total_size", "total size cannot be negative")
	}

	if want := CalculateChunkCount(m.TotalSize, m.ChunkSize); m.ChunkCount != want {
		return NewManifestError("chunk_count",
			fmt.Sprintf("chunk count %d does not match total size (expected %d)", m.ChunkCount, want))
	}
	if uint32(len(m.Chunks)) != m.ChunkCount {
		return NewManifestError("chunks",
			fmt.Sprintf("manifest lists %d chunks, chunk count is %d", len(m.Chunks), m.ChunkCount))
	}

	base, err := deriveNonceBase(m.FileID, nonceSize)
	if err != nil {
		return NewManifestError("file_id", err.Error())
	}

	seen := make([]bool, m.ChunkCount)
	refs := make(map[string]struct{}, m.ChunkCount)
	for _, rec := range m.Chunks {
		if rec.Index >= m.ChunkCount {
			return NewManifestError("chunks",
				fmt.Sprintf("chunk index %d out of range, chunk count is %d", rec.Index, m.ChunkCount))
		}
		if seen[rec.Index] {
			return NewManifestError("chunks", fmt.Sprintf("duplicate chunk index %d", rec.Index))
		}
		seen[rec.Index] = true

		if len(rec.Nonce) != nonceSize {
			return NewManifestError("chunks",
				fmt.Sprintf("chunk %d nonce has %d bytes, expected %d", rec.Index, len(rec.Nonce), nonceSize))
		}
		if !bytes.Equal(rec.Nonce, chunkNonce(base, rec.Index)) {
			return NewManifestError("chunks",
				fmt.Sprintf("chunk %d nonce does not match derivation", rec.Index))
		}

		plainSize := chunkPlaintextSize(m.TotalSize, m.ChunkSize, rec.Index, m.ChunkCount)
		if want := plainSize + aeadOverhead; rec.CiphertextLength != want {
			return NewManifestError("chunks",
				fmt.Sprintf("chunk %d ciphertext length %d does not match expected %d", rec.Index, rec.CiphertextLength, want))
		}

		if err := ValidateStorageReference(rec.StorageReference); err != nil {
			return NewManifestError("chunks", err.Error())
		}
		if _, dup := refs[rec.StorageReference]; dup {
			return NewManifestError("chunks",
				fmt.Sprintf("storage reference %q used by more than one chunk", rec.StorageReference))
		}
		refs[rec.StorageReference] = struct{}{}
	}

	if len(m.FilenameNonce) != nonceSize {
		return NewManifestError("filename_nonce",
			fmt.Sprintf("nonce has %d bytes, expected %d", len(m.FilenameNonce), nonceSize))
	}
	if len(m.FilenameCiphertext) < aeadOverhead {
		return NewManifestError("filename_ciphertext", "ciphertext shorter than authentication tag")
	}

	switch m.Mode {
	case ModeSymmetric:
		if len(m.RecipientKeys) != 0 {
			return NewManifestError("recipient_keys", "symmetric containers must not list recipients")
		}
		if m.KeyDerivation == nil {
			return NewManifestError("key_derivation", "symmetric containers require derivation parameters")
		}
		if err := m.KeyDerivation.validate(); err != nil {
			return err
		}
	case ModeHybrid:
		if m.KeyDerivation != nil {
			return NewManifestError("key_derivation", "hybrid containers must not carry derivation parameters")
		}
		if len(m.RecipientKeys) == 0 {
			return NewManifestError("recipient_keys", "hybrid containers require at least one recipient")
		}
		for id, wk := range m.RecipientKeys {
			if wk == nil {
				return NewManifestError("recipient_keys", fmt.Sprintf("recipient %q entry is empty", id))
			}
			if err := ValidateRecipientID(id); err != nil {
				return NewManifestError("recipient_keys", err.Error())
			}
			if wk.RecipientID != id {
				return NewManifestError("recipient_keys",
					fmt.Sprintf("entry %q names recipient %q", id, wk.RecipientID))
			}
			if wk.WrapAlgorithm != WrapAlgorithmRSAOAEP {
				return NewManifestError("recipient_keys",
					fmt.Sprintf("recipient %q uses unknown wrap algorithm %q", id, wk.WrapAlgorithm))
			}
			if len(wk.WrappedSessionKey) == 0 {
				return NewManifestError("recipient_keys",
					fmt.Sprintf("recipient %q has no wrapped session key", id))
			}
		}
	}

	if m.CreatedAt.IsZero() {
		return NewManifestError("created_at", "creation time is missing")
	}

	return nil
}

// validate checks derivation parameters without deriving anything
func (kd *KeyDerivation) validate() error {
	switch kd.Algorithm {
	case KDFArgon2id:
		if kd.MemoryKiB == 0 || kd.Parallelism == 0 {
			return NewManifestError("key_derivation", "argon2id parameters are incomplete")
		}
	case KDFPBKDF2SHA256, KDFPBKDF2SHA512:
		// Iterations check below covers PBKDF2
	default:
		return NewManifestError("key_derivation", fmt.Sprintf("unknown algorithm %q", kd.Algorithm))
	}
	if kd.Iterations == 0 {
		return NewManifestError("key_derivation", "iteration count is missing")
	}
	if len(kd.Salt) == 0 {
		return NewManifestError("key_derivation", "salt is missing")
	}
	return nil
}

// orderedChunks returns chunk records arranged by index. The manifest must
// already have passed Validate.
func (m *Manifest) orderedChunks() []ChunkRecord {
	ordered := make([]ChunkRecord, len(m.Chunks))
	for _, rec := range m.Chunks {
		if int(rec.Index) < len(ordered) {
			ordered[rec.Index] = rec
		}
	}
	return ordered
}

// WrappedKeyFor returns the wrapped session key entry for a recipient
func (m *Manifest) WrappedKeyFor(recipientID string) (*WrappedKey, error) {
	wk, ok := m.RecipientKeys[recipientID]
	if !ok || wk == nil {
		return nil, NewKeyError(recipientID, "recipient is not listed in the manifest", ErrKeyUnavailable)
	}
	return wk, nil
}

// Recipients lists the recipient identifiers in the manifest, if any
func (m *Manifest) Recipients() []string {
	if len(m.RecipientKeys) == 0 {
		return nil
	}
	ids := make([]string, 0, len(m.RecipientKeys))
	for id := range m.RecipientKeys {
		ids = append(ids, id)
	}
	return ids
}

// Store writes the manifest into a container directory. The document is
// written to a temporary name and renamed into place, so a crash can leave
// a stale temporary file but never a partial manifest.
func (m *Manifest) Store(fs absfs.FileSystem, dir string) error {
	if !m.finalized {
		return fmt.Errorf("cannot store a manifest that is not finalized")
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmpPath := path.Join(dir, ManifestFilename+".tmp")
	f, err := fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return NewIOError("open", tmpPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		fs.Remove(tmpPath)
		return NewIOError("write", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		fs.Remove(tmpPath)
		return NewIOError("close", tmpPath, err)
	}

	finalPath := path.Join(dir, ManifestFilename)
	if err := fs.Rename(tmpPath, finalPath); err != nil {
		fs.Remove(tmpPath)
		return NewIOError("rename", finalPath, err)
	}
	return nil
}

// LoadManifest reads and validates the manifest of an existing container
func LoadManifest(fs absfs.FileSystem, dir string) (*Manifest, error) {
	p := path.Join(dir, ManifestFilename)
	f, err := fs.Open(p)
	if err != nil {
		return nil, NewIOError("open", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, NewIOError("read", p, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{
			Field:   "",
			Message: fmt.Sprintf("failed to parse manifest: %v", err),
			Err:     ErrManifestCorrupt,
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.finalized = true
	return &m, nil
}
