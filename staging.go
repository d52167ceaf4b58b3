package sealbox

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/absfs/absfs"
)

// stagedFile holds state for an atomic file write. Plaintext is written to
// a hidden temporary name and renamed over the destination only after every
// chunk has verified, so a failed job never leaves partial output behind.
type stagedFile struct {
	fs        absfs.FileSystem
	file      absfs.File
	tmpPath   string
	finalPath string
	promoted  bool
}

// newStagedFile creates the temporary file next to the final destination.
// Caller must defer CleanupOnError.
func newStagedFile(fs absfs.FileSystem, rnd io.Reader, finalPath string) (*stagedFile, error) {
	var suffix [4]byte
	if _, err := io.ReadFull(rnd, suffix[:]); err != nil {
		return nil, fmt.Errorf("failed to generate temporary name: %w", err)
	}

	dir, base := path.Split(finalPath)
	tmpPath := path.Join(dir, fmt.Sprintf(".sealbox-tmp-%s-%s", hex.EncodeToString(suffix[:]), base))

	f, err := fs.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, NewIOError("create", tmpPath, err)
	}

	return &stagedFile{
		fs:        fs,
		file:      f,
		tmpPath:   tmpPath,
		finalPath: finalPath,
	}, nil
}

// CleanupOnError closes the temp file and removes it if the job failed
func (s *stagedFile) CleanupOnError(errp *error) {
	if s.promoted {
		return
	}
	s.file.Close()
	if *errp != nil {
		s.fs.Remove(s.tmpPath)
	}
}

// Promote closes the temp file and renames it over the destination
func (s *stagedFile) Promote() error {
	if err := s.file.Close(); err != nil {
		return NewIOError("close", s.tmpPath, err)
	}
	if err := s.fs.Rename(s.tmpPath, s.finalPath); err != nil {
		return NewIOError("rename", s.finalPath, err)
	}
	s.promoted = true
	return nil
}
