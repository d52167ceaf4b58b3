package sealbox

import (
	"bytes"
	"context"
	"errors"
	"path"
	"testing"
)

func TestIntegration_VaultWorkflow(t *testing.T) {
	fs := newTestFS(t)
	e := newTestEngine(t, fs)
	ctx := context.Background()
	password := []byte("vault password")

	// Test 1: Encrypt a mixed set of files into one vault directory
	sources := map[string][]byte{
		"notes.txt":     []byte("meeting notes"),
		"empty.log":     nil,
		"archive.tar":   testPattern(3*MinChunkSize + 700),
		"写真 2026.jpg":   testPattern(MinChunkSize),
		"ledger (2026)": testPattern(2 * MinChunkSize),
	}

	containers := make(map[string]string, len(sources))
	for name, content := range sources {
		c := path.Join("/vault", name+".sealed")
		if _, err := e.Encrypt(ctx, bytes.NewReader(content), name, Symmetric{Password: password}, c); err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", name, err)
		}
		containers[name] = c
	}

	// Test 2: Every container verifies and inspects without issue
	for name, c := range containers {
		if err := e.Verify(ctx, c, PasswordMaterial{Password: password}); err != nil {
			t.Fatalf("Verify(%q) failed: %v", name, err)
		}
		man, err := e.Inspect(c)
		if err != nil {
			t.Fatalf("Inspect(%q) failed: %v", name, err)
		}
		if man.TotalSize != int64(len(sources[name])) {
			t.Errorf("Inspect(%q).TotalSize = %d, want %d", name, man.TotalSize, len(sources[name]))
		}
	}

	// Test 3: Corrupt one container; only that one fails verification
	flipByte(t, fs, partPath(containers["archive.tar"], 2), partHeaderSize+64)
	for name, c := range containers {
		err := e.Verify(ctx, c, PasswordMaterial{Password: password})
		if name == "archive.tar" {
			if !errors.Is(err, ErrIntegrityMismatch) {
				t.Errorf("Verify(%q) error = %v, want ErrIntegrityMismatch", name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Verify(%q) failed after unrelated corruption: %v", name, err)
		}
	}

	// Test 4: The intact containers still decrypt to their originals
	if err := fs.MkdirAll("/restored", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for name, c := range containers {
		if name == "archive.tar" {
			continue
		}
		dest := path.Join("/restored", name)
		got, err := e.Decrypt(ctx, c, PasswordMaterial{Password: password}, dest)
		if err != nil {
			t.Fatalf("Decrypt(%q) failed: %v", name, err)
		}
		if got != name {
			t.Errorf("Decrypt(%q) recovered name %q", name, got)
		}
		if !bytes.Equal(readTestFile(t, fs, dest), sources[name]) {
			t.Errorf("Decrypt(%q) content does not match", name)
		}
	}

	// Test 5: The corrupted container reports exactly the damaged chunk
	var ie *IntegrityError
	err := e.Verify(ctx, containers["archive.tar"], PasswordMaterial{Password: password})
	if !errors.As(err, &ie) {
		t.Fatalf("Verify error = %v, want an IntegrityError", err)
	}
	if ie.Section != "chunk 2" {
		t.Errorf("Section = %q, want %q", ie.Section, "chunk 2")
	}
}

func TestIntegration_SharedContainer(t *testing.T) {
	e := newHybridTestEngine(t)
	ctx := context.Background()
	content := testPattern(2*MinChunkSize + 256)

	// Test 1: Alice seals a file for herself
	if _, err := e.Encrypt(ctx, bytes.NewReader(content), "design.pdf", Hybrid{Recipients: []string{"alice"}}, "/shared"); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := e.Decrypt(ctx, "/shared", RecipientMaterial{RecipientID: "carol"}, "/nope"); !errors.Is(err, ErrKeyUnavailable) {
		t.Fatalf("Carol before sharing error = %v, want ErrKeyUnavailable", err)
	}

	// Test 2: Alice grants carol access without re-encrypting the chunks
	before := readTestFile(t, e.fs, partPath("/shared", 0))
	if _, err := e.AddRecipients(ctx, "/shared", RecipientMaterial{RecipientID: "alice"}, "carol"); err != nil {
		t.Fatalf("AddRecipients failed: %v", err)
	}
	after := readTestFile(t, e.fs, partPath("/shared", 0))
	if !bytes.Equal(before, after) {
		t.Error("Granting access must not rewrite chunk parts")
	}

	// Test 3: Both recipients decrypt the same plaintext
	for _, id := range []string{"alice", "carol"} {
		dest := "/copy-" + id
		if _, err := e.Decrypt(ctx, "/shared", RecipientMaterial{RecipientID: id}, dest); err != nil {
			t.Fatalf("Decrypt as %s failed: %v", id, err)
		}
		if !bytes.Equal(readTestFile(t, e.fs, dest), content) {
			t.Errorf("Content for %s does not match", id)
		}
	}

	// Test 4: Carol exports a password-protected copy for offline backup
	backupPW := []byte("offline backup")
	if _, err := e.Reencrypt(ctx, "/shared", RecipientMaterial{RecipientID: "carol"}, Symmetric{Password: backupPW}, "/backup"); err != nil {
		t.Fatalf("Reencrypt failed: %v", err)
	}
	name, err := e.Decrypt(ctx, "/backup", PasswordMaterial{Password: backupPW}, "/from-backup")
	if err != nil {
		t.Fatalf("Decrypt of backup failed: %v", err)
	}
	if name != "design.pdf" {
		t.Errorf("Backup filename = %q, want %q", name, "design.pdf")
	}
	if !bytes.Equal(readTestFile(t, e.fs, "/from-backup"), content) {
		t.Error("Backup content does not match")
	}

	// Test 5: Bob was never granted access to either container
	if _, err := e.Decrypt(ctx, "/shared", RecipientMaterial{RecipientID: "bob"}, "/nope"); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("Bob on shared container error = %v, want ErrKeyUnavailable", err)
	}
}

// TestIntegration_ManifestSelfDescribes opens a container through a second
// engine whose configuration differs from the one that wrote it. Recovery
// parameters come from the manifest, not from engine configuration.
func TestIntegration_ManifestSelfDescribes(t *testing.T) {
	fs := newTestFS(t)
	writer, err := New(fs, &Config{
		Cipher:    CipherXChaCha20Poly1305,
		ChunkSize: MinChunkSize,
		KDF: KDFConfig{
			Algorithm: KDFPBKDF2SHA512,
			PBKDF2:    PBKDF2Params{Iterations: 1000},
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	content := testPattern(MinChunkSize + 99)
	password := []byte("portable password")
	if _, err := writer.Encrypt(ctx, bytes.NewReader(content), "portable.bin", Symmetric{Password: password}, "/c"); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// The reader engine carries different cipher, chunk and KDF settings.
	reader, err := New(fs, &Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	name, err := reader.Decrypt(ctx, "/c", PasswordMaterial{Password: password}, "/restored")
	if err != nil {
		t.Fatalf("Decrypt through a differently configured engine failed: %v", err)
	}
	if name != "portable.bin" {
		t.Errorf("Filename = %q, want %q", name, "portable.bin")
	}
	if !bytes.Equal(readTestFile(t, fs, "/restored"), content) {
		t.Error("Restored content does not match")
	}
}
