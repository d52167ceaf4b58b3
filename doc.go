// Package sealbox converts files into encrypted, integrity-protected
// chunk containers over the AbsFs filesystem abstraction, and converts
// them back.
//
// # Overview
//
// A container is a directory holding a manifest and one part file per
// chunk of the original content. The manifest is the single source of
// truth: it records the chunk layout, per-chunk nonces, the encrypted
// original filename and everything needed to recover the key. It is
// written last and replaced atomically, so a crash during encryption can
// never leave a readable half-container behind.
//
// # Supported Cipher Suites
//
// - AES-256-GCM: Advanced Encryption Standard with 256-bit keys and
//   Galois/Counter Mode for authenticated encryption
// - ChaCha20-Poly1305: Modern stream cipher with Poly1305 message
//   authentication
// - XChaCha20-Poly1305: Extended-nonce ChaCha20-Poly1305 variant
//
// All suites provide:
//   - Authenticated Encryption with Associated Data (AEAD)
//   - Protection against tampering, reordering and cross-container splicing
//   - 128-bit authentication tags
//   - Deterministic per-chunk nonces derived from the container's file ID
//
// # Protection Modes
//
// Symmetric containers derive their key from a password with Argon2id or
// PBKDF2; the manifest records the derivation parameters and salt. Hybrid
// containers encrypt with a random session key wrapped separately for each
// recipient using RSA-OAEP, so any one recipient's private key opens the
// container and recipients can be added without re-encrypting content.
//
// # Basic Usage
//
//	// Create base filesystem
//	base, _ := memfs.NewFS()
//
//	engine, err := sealbox.New(base, &sealbox.Config{
//	    Cipher: sealbox.CipherAES256GCM,
//	})
//	if err != nil {
//	    panic(err)
//	}
//
//	// Encrypt a stream into a container directory
//	manifest, err := engine.Encrypt(ctx, src, "report.pdf",
//	    sealbox.Symmetric{Password: []byte("correct horse")}, "/vault/report")
//
//	// Decrypt it back to a file
//	name, err := engine.Decrypt(ctx, "/vault/report",
//	    sealbox.PasswordMaterial{Password: []byte("correct horse")}, "/out/report.pdf")
//
// # Security Considerations
//
// Protected Against:
//   - Unauthorized access to container contents at rest
//   - Tampering with chunk data, chunk order or the manifest
//   - Splicing chunks or filenames between containers
//   - Offline brute-force attacks (with strong key derivation)
//
// Not Protected Against:
//   - Memory dumps while plaintext chunks are in memory
//   - Side-channel attacks (timing, cache)
//   - Compromised systems with keyloggers or malware
//   - Metadata leakage through total size, chunk count and timestamps
//
// # Container Layout
//
// Each container directory holds:
//   - manifest.json: validated metadata, written last via rename
//   - part-NNNNNN.bin: one framed ciphertext per chunk
//
// Part files carry a small header (magic "SBOX", version, chunk index,
// ciphertext length) so a renamed or truncated part is rejected before
// its ciphertext is touched. The authenticated ciphertext follows the
// header; its associated data binds it to the container's file ID and
// chunk index.
//
// # Key Derivation
//
// The package supports two key derivation functions:
//
// PBKDF2 (Password-Based Key Derivation Function 2):
//   - Widely supported and FIPS-approved
//   - SHA-256 or SHA-512, 480,000 iterations by default
//   - CPU-intensive only (vulnerable to GPU attacks)
//
// Argon2id (Recommended):
//   - Memory-hard function (resistant to GPU/ASIC attacks)
//   - Winner of Password Hashing Competition
//   - Configurable memory, time, and parallelism
package sealbox
