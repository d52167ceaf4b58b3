package sealbox

import (
	"bytes"
	"errors"
	"testing"
)

func TestPartHeaderRoundTrip(t *testing.T) {
	header := NewPartHeader(42, 1040)

	var buf bytes.Buffer
	n, err := header.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if n != partHeaderSize {
		t.Errorf("WriteTo wrote %d bytes, want %d", n, partHeaderSize)
	}

	var read PartHeader
	m, err := read.ReadFrom(&buf)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if m != partHeaderSize {
		t.Errorf("ReadFrom read %d bytes, want %d", m, partHeaderSize)
	}

	if read != *header {
		t.Errorf("Round trip changed the header: got %+v, want %+v", read, *header)
	}
}

func TestPartHeaderValidate(t *testing.T) {
	tests := []struct {
		name   string
		header PartHeader
	}{
		{"wrong magic", PartHeader{Magic: 0xDEADBEEF, Version: PartVersion, Index: 3, Length: 100}},
		{"wrong version", PartHeader{Magic: PartMagic, Version: 9, Index: 3, Length: 100}},
		{"wrong index", PartHeader{Magic: PartMagic, Version: PartVersion, Index: 4, Length: 100}},
		{"wrong length", PartHeader{Magic: PartMagic, Version: PartVersion, Index: 3, Length: 99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.header.Validate(3, 100)
			if err == nil {
				t.Fatal("Validate() should have failed")
			}
			if !errors.Is(err, ErrIntegrityMismatch) {
				t.Errorf("Validate() error = %v, want ErrIntegrityMismatch", err)
			}
		})
	}

	good := NewPartHeader(3, 100)
	if err := good.Validate(3, 100); err != nil {
		t.Errorf("Valid header rejected: %v", err)
	}
}

func TestPartFileName(t *testing.T) {
	tests := []struct {
		index uint32
		want  string
	}{
		{0, "part-000000.bin"},
		{42, "part-000042.bin"},
		{999999, "part-999999.bin"},
	}

	for _, tt := range tests {
		if got := partFileName(tt.index); got != tt.want {
			t.Errorf("partFileName(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestWriteReadPart(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.MkdirAll("/vault/doc", 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	ciphertext := testPattern(1040)
	rec := ChunkRecord{
		Index:            5,
		CiphertextLength: uint32(len(ciphertext)),
		StorageReference: partFileName(5),
	}

	if err := writePart(fs, "/vault/doc", rec.StorageReference, rec.Index, ciphertext); err != nil {
		t.Fatalf("writePart failed: %v", err)
	}

	info, err := fs.Stat(partPath("/vault/doc", 5))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != int64(partHeaderSize+len(ciphertext)) {
		t.Errorf("Part file is %d bytes, want %d", info.Size(), partHeaderSize+len(ciphertext))
	}

	got, err := readPart(fs, "/vault/doc", rec)
	if err != nil {
		t.Fatalf("readPart failed: %v", err)
	}
	if !bytes.Equal(got, ciphertext) {
		t.Error("readPart returned different ciphertext")
	}

	// Part files are never overwritten.
	if err := writePart(fs, "/vault/doc", rec.StorageReference, rec.Index, ciphertext); !IsIOError(err) {
		t.Errorf("Overwrite error = %v, want an I/O error", err)
	}
}

func TestReadPartRejectsMismatches(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.MkdirAll("/vault/doc", 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	ciphertext := testPattern(200)
	rec := ChunkRecord{
		Index:            0,
		CiphertextLength: uint32(len(ciphertext)),
		StorageReference: partFileName(0),
	}
	if err := writePart(fs, "/vault/doc", rec.StorageReference, rec.Index, ciphertext); err != nil {
		t.Fatalf("writePart failed: %v", err)
	}
	stored := readTestFile(t, fs, partPath("/vault/doc", 0))

	t.Run("missing part", func(t *testing.T) {
		missing := rec
		missing.StorageReference = partFileName(9)
		if _, err := readPart(fs, "/vault/doc", missing); !IsIOError(err) {
			t.Errorf("Missing part error = %v, want an I/O error", err)
		}
	})

	t.Run("truncated header", func(t *testing.T) {
		writeTestFile(t, fs, partPath("/vault/doc", 0), stored[:5])
		_, err := readPart(fs, "/vault/doc", rec)
		if !errors.Is(err, ErrTruncatedChunk) {
			t.Errorf("Truncated header error = %v, want ErrTruncatedChunk", err)
		}
	})

	t.Run("truncated body", func(t *testing.T) {
		writeTestFile(t, fs, partPath("/vault/doc", 0), stored[:len(stored)-20])
		_, err := readPart(fs, "/vault/doc", rec)
		if !errors.Is(err, ErrTruncatedChunk) {
			t.Errorf("Truncated body error = %v, want ErrTruncatedChunk", err)
		}
	})

	t.Run("trailing data", func(t *testing.T) {
		padded := append(bytes.Clone(stored), 0xAA)
		writeTestFile(t, fs, partPath("/vault/doc", 0), padded)
		_, err := readPart(fs, "/vault/doc", rec)
		if !errors.Is(err, ErrTruncatedChunk) {
			t.Errorf("Trailing data error = %v, want ErrTruncatedChunk", err)
		}
		if !IsIntegrityError(err) {
			t.Errorf("Trailing data error = %v, want an integrity error", err)
		}
	})

	t.Run("wrong index in header", func(t *testing.T) {
		writeTestFile(t, fs, partPath("/vault/doc", 0), stored)
		moved := rec
		moved.Index = 1
		_, err := readPart(fs, "/vault/doc", moved)
		if !errors.Is(err, ErrIntegrityMismatch) {
			t.Errorf("Misplaced part error = %v, want ErrIntegrityMismatch", err)
		}
	})

	t.Run("length disagrees with manifest", func(t *testing.T) {
		writeTestFile(t, fs, partPath("/vault/doc", 0), stored)
		lied := rec
		lied.CiphertextLength = 100
		_, err := readPart(fs, "/vault/doc", lied)
		if !errors.Is(err, ErrIntegrityMismatch) {
			t.Errorf("Length mismatch error = %v, want ErrIntegrityMismatch", err)
		}
	})
}
