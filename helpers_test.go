package sealbox

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
)

// newTestFS creates an in-memory filesystem for a test
func newTestFS(t testing.TB) absfs.FileSystem {
	t.Helper()
	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("Failed to create memfs: %v", err)
	}
	return fs
}

// fastKDF returns derivation parameters cheap enough for tests
func fastKDF() KDFConfig {
	return KDFConfig{
		Algorithm: KDFArgon2id,
		Argon2id: Argon2idParams{
			Memory:      8 * 1024,
			Iterations:  1,
			Parallelism: 1,
		},
	}
}

// newTestEngine creates an engine with small chunks and fast key derivation
func newTestEngine(t testing.TB, fs absfs.FileSystem) *Engine {
	t.Helper()
	e, err := New(fs, &Config{
		ChunkSize: MinChunkSize,
		KDF:       fastKDF(),
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

var (
	rsaKeysOnce sync.Once
	rsaKeysErr  error
	rsaTestKeys []*rsa.PrivateKey
)

// testRSAKeys returns up to three cached 2048-bit RSA keys. Generation is
// expensive, so the keys are shared across the whole test run.
func testRSAKeys(t testing.TB, n int) []*rsa.PrivateKey {
	t.Helper()
	rsaKeysOnce.Do(func() {
		for i := 0; i < 3; i++ {
			key, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				rsaKeysErr = err
				return
			}
			rsaTestKeys = append(rsaTestKeys, key)
		}
	})
	if rsaKeysErr != nil {
		t.Fatalf("Failed to generate test RSA keys: %v", rsaKeysErr)
	}
	if n > len(rsaTestKeys) {
		t.Fatalf("Requested %d test keys, only %d available", n, len(rsaTestKeys))
	}
	return rsaTestKeys[:n]
}

// testPattern fills a buffer with a deterministic byte pattern
func testPattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// zeroReader yields an endless stream of zero bytes
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// failReader fails every read with a fixed error
type failReader struct {
	err error
}

func (r failReader) Read([]byte) (int, error) {
	return 0, r.err
}

// readTestFile reads a whole file from the test filesystem
func readTestFile(t testing.TB, fs absfs.FileSystem, p string) []byte {
	t.Helper()
	f, err := fs.Open(p)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", p, err)
	}
	return data
}

// writeTestFile replaces a file's contents on the test filesystem
func writeTestFile(t testing.TB, fs absfs.FileSystem, p string, data []byte) {
	t.Helper()
	fs.Remove(p)
	f, err := fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", p, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		t.Fatalf("Failed to write %s: %v", p, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close %s: %v", p, err)
	}
}

// flipByte corrupts a single byte of a stored file
func flipByte(t testing.TB, fs absfs.FileSystem, p string, offset int) {
	t.Helper()
	data := readTestFile(t, fs, p)
	if offset < 0 || offset >= len(data) {
		t.Fatalf("Offset %d out of range for %s (%d bytes)", offset, p, len(data))
	}
	data[offset] ^= 0xFF
	writeTestFile(t, fs, p, data)
}

// listDir returns the entry names of a directory on the test filesystem
func listDir(t testing.TB, fs absfs.FileSystem, dir string) []string {
	t.Helper()
	f, err := fs.Open(dir)
	if err != nil {
		t.Fatalf("Failed to open directory %s: %v", dir, err)
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		t.Fatalf("Failed to list %s: %v", dir, err)
	}
	return names
}

// mustNotExist fails the test if the path still exists
func mustNotExist(t testing.TB, fs absfs.FileSystem, p string) {
	t.Helper()
	if _, err := fs.Stat(p); err == nil {
		t.Fatalf("Path %s should not exist", p)
	} else if !os.IsNotExist(err) {
		t.Fatalf("Stat %s: unexpected error: %v", p, err)
	}
}

// mustHaveNoStaging fails the test if a staging temp file was left in dir
func mustHaveNoStaging(t testing.TB, fs absfs.FileSystem, dir string) {
	t.Helper()
	for _, name := range listDir(t, fs, dir) {
		if strings.HasPrefix(name, ".sealbox-tmp-") {
			t.Fatalf("Staging file %s left behind in %s", name, dir)
		}
	}
}

// partPath returns the path of one part file inside a container
func partPath(container string, index uint32) string {
	return path.Join(container, partFileName(index))
}
