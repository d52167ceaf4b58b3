package sealbox

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/absfs/absfs"
)

const (
	// PartMagic identifies chunk part files (ASCII: "SBOX")
	PartMagic = uint32(0x53424F58)

	// PartVersion is the current part framing version
	PartVersion = uint8(1)

	// partHeaderSize is the fixed size of the part header:
	// 4 bytes (magic) + 1 byte (version) + 4 bytes (index) + 4 bytes (length)
	partHeaderSize = 13
)

// PartHeader precedes the ciphertext inside each part file. It repeats the
// chunk index and length from the manifest so a misplaced or renamed part
// is caught before its ciphertext is touched.
type PartHeader struct {
	Magic   uint32 // Magic bytes to identify part files
	Version uint8  // Part framing version
	Index   uint32 // Chunk index this part holds
	Length  uint32 // Ciphertext length in bytes
}

// NewPartHeader creates a part header for one chunk
func NewPartHeader(index, length uint32) *PartHeader {
	return &PartHeader{
		Magic:   PartMagic,
		Version: PartVersion,
		Index:   index,
		Length:  length,
	}
}

// WriteTo writes the header to the given writer
func (h *PartHeader) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, h.Magic); err != nil {
		return 0, fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, h.Version); err != nil {
		return 0, fmt.Errorf("failed to write version: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, h.Index); err != nil {
		return 0, fmt.Errorf("failed to write index: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, h.Length); err != nil {
		return 0, fmt.Errorf("failed to write length: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadFrom reads the header from the given reader
func (h *PartHeader) ReadFrom(r io.Reader) (int64, error) {
	var totalRead int64

	if err := binary.Read(r, binary.LittleEndian, &h.Magic); err != nil {
		return totalRead, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	totalRead += 4

	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return totalRead, fmt.Errorf("failed to read version: %w", err)
	}
	totalRead++

	if err := binary.Read(r, binary.LittleEndian, &h.Index); err != nil {
		return totalRead, fmt.Errorf("failed to read index: %w", err)
	}
	totalRead += 4

	if err := binary.Read(r, binary.LittleEndian, &h.Length); err != nil {
		return totalRead, fmt.Errorf("failed to read length: %w", err)
	}
	totalRead += 4

	return totalRead, nil
}

// Validate checks the header against the manifest record it must match
func (h *PartHeader) Validate(index, length uint32) error {
	section := chunkSection(index)
	if h.Magic != PartMagic {
		return NewIntegrityError(section, "part has wrong magic bytes")
	}
	if h.Version != PartVersion {
		return NewIntegrityError(section, fmt.Sprintf("part framing version %d is not supported", h.Version))
	}
	if h.Index != index {
		return NewIntegrityError(section, fmt.Sprintf("part holds chunk %d", h.Index))
	}
	if h.Length != length {
		return NewIntegrityError(section,
			fmt.Sprintf("part declares %d ciphertext bytes, manifest records %d", h.Length, length))
	}
	return nil
}

// partFileName returns the storage reference for a chunk index
func partFileName(index uint32) string {
	return fmt.Sprintf("part-%06d.bin", index)
}

// writePart creates one part file inside the container directory. Part files
// are never overwritten; a name collision means the container is corrupt.
func writePart(fs absfs.FileSystem, dir, ref string, index uint32, ciphertext []byte) error {
	p := path.Join(dir, ref)
	f, err := fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return NewIOError("create", p, err)
	}

	header := NewPartHeader(index, uint32(len(ciphertext)))
	if _, err := header.WriteTo(f); err != nil {
		f.Close()
		return NewIOError("write", p, err)
	}
	if _, err := f.Write(ciphertext); err != nil {
		f.Close()
		return NewIOError("write", p, err)
	}
	if err := f.Close(); err != nil {
		return NewIOError("close", p, err)
	}
	return nil
}

// readPart reads one chunk's ciphertext and checks the part framing against
// the manifest record. The returned bytes are exactly the stored ciphertext;
// authentication happens when the chunk is opened.
func readPart(fs absfs.FileSystem, dir string, rec ChunkRecord) ([]byte, error) {
	p := path.Join(dir, rec.StorageReference)
	f, err := fs.Open(p)
	if err != nil {
		return nil, NewIOError("open", p, err)
	}
	defer f.Close()

	var header PartHeader
	if n, err := header.ReadFrom(f); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, NewTruncatedError(chunkSection(rec.Index), partHeaderSize, int(n))
		}
		return nil, NewIOError("read", p, err)
	}
	if err := header.Validate(rec.Index, rec.CiphertextLength); err != nil {
		return nil, err
	}

	ciphertext := make([]byte, rec.CiphertextLength)
	if n, err := io.ReadFull(f, ciphertext); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, NewTruncatedError(chunkSection(rec.Index), int(rec.CiphertextLength), n)
		}
		return nil, NewIOError("read", p, err)
	}

	var trailing [1]byte
	if _, err := io.ReadFull(f, trailing[:]); err == nil {
		return nil, &IntegrityError{
			Section: chunkSection(rec.Index),
			Message: "part contains data past the declared ciphertext",
			Err:     ErrTruncatedChunk,
		}
	} else if !errors.Is(err, io.EOF) {
		return nil, NewIOError("read", p, err)
	}

	return ciphertext, nil
}

// Reader streams the verified plaintext of a container. Chunks are read,
// authenticated and buffered one at a time, so a Reader never holds more
// than one chunk of plaintext.
type Reader struct {
	fs        absfs.FileSystem
	dir       string
	manifest  *Manifest
	engine    CipherEngine
	nonceBase []byte
	filename  string
	chunks    []ChunkRecord
	ctx       context.Context

	current int
	buf     []byte
	off     int
	closed  bool
}

// Filename returns the decrypted original filename of the container
func (r *Reader) Filename() string {
	return r.filename
}

// Read fills p with verified plaintext. A chunk that fails authentication
// ends the stream with an IntegrityError before any of its bytes are
// returned.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, os.ErrClosed
	}

	var n int
	for n < len(p) {
		if r.off == len(r.buf) {
			if r.current >= len(r.chunks) {
				if n > 0 {
					return n, nil
				}
				return 0, io.EOF
			}
			if err := r.loadChunk(r.chunks[r.current]); err != nil {
				return n, err
			}
			r.current++
			continue
		}

		c := copy(p[n:], r.buf[r.off:])
		n += c
		r.off += c
	}
	return n, nil
}

// loadChunk reads, authenticates and buffers one chunk
func (r *Reader) loadChunk(rec ChunkRecord) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}

	ciphertext, err := readPart(r.fs, r.dir, rec)
	if err != nil {
		return err
	}

	plaintext, err := openChunk(r.engine, r.manifest.FileID, r.nonceBase, chunkJob{
		index:      rec.Index,
		ciphertext: ciphertext,
	})
	if err != nil {
		return err
	}

	expect := chunkPlaintextSize(r.manifest.TotalSize, r.manifest.ChunkSize, rec.Index, r.manifest.ChunkCount)
	if uint32(len(plaintext)) != expect {
		return &IntegrityError{
			Section: chunkSection(rec.Index),
			Message: fmt.Sprintf("decrypted to %d bytes, expected %d", len(plaintext), expect),
			Err:     ErrTruncatedChunk,
		}
	}

	r.buf = plaintext
	r.off = 0
	return nil
}

// Close releases the reader. Reads after Close fail with os.ErrClosed.
func (r *Reader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}
