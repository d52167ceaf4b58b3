package sealbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChunkSize is the default plaintext chunk size (4 MB)
	DefaultChunkSize = 4 * 1024 * 1024

	// MinChunkSize is the minimum allowed chunk size (1 KB)
	MinChunkSize = 1024

	// MaxChunkSize is the maximum allowed chunk size (256 MB)
	MaxChunkSize = 256 * 1024 * 1024
)

// ValidateChunkSize checks if a chunk size is within valid bounds
func ValidateChunkSize(size uint32) error {
	if size < MinChunkSize {
		return &ValidationError{
			Field:   "chunk_size",
			Value:   size,
			Message: fmt.Sprintf("chunk size %d below minimum %d", size, MinChunkSize),
		}
	}
	if size > MaxChunkSize {
		return &ValidationError{
			Field:   "chunk_size",
			Value:   size,
			Message: fmt.Sprintf("chunk size %d exceeds maximum %d", size, MaxChunkSize),
		}
	}
	return nil
}

// CalculateChunkCount returns the number of chunks needed for a data size
func CalculateChunkCount(dataSize int64, chunkSize uint32) uint32 {
	if dataSize == 0 {
		return 0
	}
	return uint32((dataSize + int64(chunkSize) - 1) / int64(chunkSize))
}

// chunkPlaintextSize returns the plaintext size of one chunk. Every chunk is
// chunkSize bytes except the last, which holds the remainder.
func chunkPlaintextSize(totalSize int64, chunkSize uint32, index, count uint32) uint32 {
	if count == 0 {
		return 0
	}
	if index < count-1 {
		return chunkSize
	}
	return uint32(totalSize - int64(count-1)*int64(chunkSize))
}

// ParallelConfig controls parallel chunk processing
type ParallelConfig struct {
	// Enabled enables parallel chunk processing
	Enabled bool

	// MaxWorkers is the maximum number of worker goroutines
	// If 0, defaults to runtime.NumCPU()
	MaxWorkers int

	// MinChunksForParallel is the minimum number of chunks to use parallel processing
	// Below this threshold, sequential processing is used
	// Defaults to 4
	MinChunksForParallel int
}

// Validate checks if the parallel configuration is valid
func (p *ParallelConfig) Validate() error {
	if !p.Enabled {
		return nil // Nothing to validate if disabled
	}

	if p.MaxWorkers < 0 {
		return errors.New("parallel max workers cannot be negative")
	}
	if p.MaxWorkers > 1024 {
		return errors.New("parallel max workers must not exceed 1024")
	}
	if p.MinChunksForParallel < 1 {
		return errors.New("parallel min chunks threshold must be at least 1")
	}
	if p.MinChunksForParallel > 1000 {
		return errors.New("parallel min chunks threshold must not exceed 1000")
	}

	return nil
}

// DefaultParallelConfig returns the default parallel processing configuration
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		Enabled:              true,
		MaxWorkers:           runtime.NumCPU(),
		MinChunksForParallel: 4,
	}
}

// workers resolves the worker pool size
func (p *ParallelConfig) workers() int {
	if !p.Enabled {
		return 1
	}
	n := p.MaxWorkers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return n
}

// chunkJob carries one chunk through a seal or open batch
type chunkJob struct {
	index      uint32
	plaintext  []byte
	ciphertext []byte
}

// sealChunk encrypts one chunk with its derived nonce and associated data
func sealChunk(engine CipherEngine, fileID uuid.UUID, nonceBase []byte, job chunkJob) ([]byte, error) {
	ciphertext, err := engine.Encrypt(
		chunkNonce(nonceBase, job.index),
		chunkAssociatedData(fileID, job.index),
		job.plaintext,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt chunk %d: %w", job.index, err)
	}
	return ciphertext, nil
}

// openChunk decrypts and verifies one chunk
func openChunk(engine CipherEngine, fileID uuid.UUID, nonceBase []byte, job chunkJob) ([]byte, error) {
	plaintext, err := engine.Decrypt(
		chunkNonce(nonceBase, job.index),
		chunkAssociatedData(fileID, job.index),
		job.ciphertext,
	)
	if err != nil {
		return nil, &IntegrityError{
			Section: chunkSection(job.index),
			Message: "chunk failed authentication",
			Err:     err,
		}
	}
	return plaintext, nil
}

// encryptChunks reads the source a batch at a time, seals each batch on the
// worker pool, and writes parts in index order. Reads and writes stay on the
// calling goroutine; only the AEAD work fans out.
func (e *Engine) encryptChunks(ctx context.Context, src io.Reader, man *Manifest, engine CipherEngine, dir string) (int64, error) {
	nonceBase, err := deriveNonceBase(man.FileID, engine.NonceSize())
	if err != nil {
		return 0, err
	}

	batchCap := e.parallel.workers()

	var (
		total int64
		index uint32
		eof   bool
	)
	for !eof {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		jobs := make([]chunkJob, 0, batchCap)
		for len(jobs) < batchCap && !eof {
			buf := make([]byte, man.ChunkSize)
			n, rerr := io.ReadFull(src, buf)
			total += int64(n)
			switch {
			case rerr == io.EOF:
				eof = true
			case rerr == io.ErrUnexpectedEOF:
				jobs = append(jobs, chunkJob{index: index, plaintext: buf[:n]})
				index++
				eof = true
			case rerr != nil:
				return total, NewIOError("read", "source", rerr)
			default:
				jobs = append(jobs, chunkJob{index: index, plaintext: buf})
				index++
			}
		}
		if len(jobs) == 0 {
			break
		}

		if err := e.sealBatch(ctx, engine, man.FileID, nonceBase, jobs); err != nil {
			return total, err
		}

		for i := range jobs {
			rec := ChunkRecord{
				Index:            jobs[i].index,
				Nonce:            chunkNonce(nonceBase, jobs[i].index),
				CiphertextLength: uint32(len(jobs[i].ciphertext)),
				StorageReference: partFileName(jobs[i].index),
			}
			if err := writePart(e.fs, dir, rec.StorageReference, jobs[i].index, jobs[i].ciphertext); err != nil {
				return total, err
			}
			if err := man.addChunk(rec); err != nil {
				return total, err
			}
		}
	}

	return total, nil
}

// sealBatch encrypts a batch of chunks, in parallel when the batch is large
// enough to justify it
func (e *Engine) sealBatch(ctx context.Context, engine CipherEngine, fileID uuid.UUID, nonceBase []byte, jobs []chunkJob) error {
	workers := e.parallel.workers()
	if workers == 1 || len(jobs) < e.parallel.MinChunksForParallel {
		for i := range jobs {
			if err := ctx.Err(); err != nil {
				return err
			}
			ciphertext, err := sealChunk(engine, fileID, nonceBase, jobs[i])
			if err != nil {
				return err
			}
			jobs[i].ciphertext = ciphertext
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range jobs {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in seal worker for chunk %d: %v", jobs[i].index, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			ciphertext, err := sealChunk(engine, fileID, nonceBase, jobs[i])
			if err != nil {
				return err
			}
			jobs[i].ciphertext = ciphertext
			return nil
		})
	}
	return g.Wait()
}

// decryptChunks reads parts a batch at a time, opens each batch on the
// worker pool, and hands verified plaintext to the sink in index order
func (e *Engine) decryptChunks(ctx context.Context, man *Manifest, engine CipherEngine, dir string, sink func(index uint32, plaintext []byte) error) error {
	nonceBase, err := deriveNonceBase(man.FileID, engine.NonceSize())
	if err != nil {
		return err
	}

	ordered := man.orderedChunks()
	batchCap := e.parallel.workers()

	for start := 0; start < len(ordered); start += batchCap {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + batchCap
		if end > len(ordered) {
			end = len(ordered)
		}

		jobs := make([]chunkJob, 0, end-start)
		for _, rec := range ordered[start:end] {
			ciphertext, err := readPart(e.fs, dir, rec)
			if err != nil {
				return err
			}
			jobs = append(jobs, chunkJob{index: rec.Index, ciphertext: ciphertext})
		}

		if err := e.openBatch(ctx, engine, man.FileID, nonceBase, jobs); err != nil {
			return err
		}

		for i := range jobs {
			expect := chunkPlaintextSize(man.TotalSize, man.ChunkSize, jobs[i].index, man.ChunkCount)
			if uint32(len(jobs[i].plaintext)) != expect {
				return &IntegrityError{
					Section: chunkSection(jobs[i].index),
					Message: fmt.Sprintf("decrypted to %d bytes, expected %d", len(jobs[i].plaintext), expect),
					Err:     ErrTruncatedChunk,
				}
			}
			if err := sink(jobs[i].index, jobs[i].plaintext); err != nil {
				return err
			}
		}
	}

	return nil
}

// openBatch decrypts a batch of chunks. When chunks fail in parallel, the
// error for the lowest-indexed failing chunk is reported.
func (e *Engine) openBatch(ctx context.Context, engine CipherEngine, fileID uuid.UUID, nonceBase []byte, jobs []chunkJob) error {
	workers := e.parallel.workers()
	if workers == 1 || len(jobs) < e.parallel.MinChunksForParallel {
		for i := range jobs {
			if err := ctx.Err(); err != nil {
				return err
			}
			plaintext, err := openChunk(engine, fileID, nonceBase, jobs[i])
			if err != nil {
				return err
			}
			jobs[i].plaintext = plaintext
		}
		return nil
	}

	errs := make([]error, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range jobs {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in open worker for chunk %d: %v", jobs[i].index, r)
					errs[i] = err
				}
			}()
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			plaintext, err := openChunk(engine, fileID, nonceBase, jobs[i])
			if err != nil {
				errs[i] = err
				return err
			}
			jobs[i].plaintext = plaintext
			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr == nil {
		return nil
	}
	for i := range errs {
		if errs[i] == nil || errors.Is(errs[i], context.Canceled) || errors.Is(errs[i], context.DeadlineExceeded) {
			continue
		}
		return errs[i]
	}
	return waitErr
}
