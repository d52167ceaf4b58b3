package sealbox

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"sort"

	"github.com/absfs/absfs"
)

// Keyring resolves recipient identifiers to RSA keys. Implementations must
// be safe for concurrent reads; the engine never mutates a keyring during
// an encryption or decryption job.
type Keyring interface {
	// PublicKey returns the public key for a recipient, or a KeyError
	// wrapping ErrKeyUnavailable if the recipient is unknown
	PublicKey(recipientID string) (*rsa.PublicKey, error)

	// PrivateKey returns the private key for a recipient, or a KeyError
	// wrapping ErrKeyUnavailable if no private key is held
	PrivateKey(recipientID string) (*rsa.PrivateKey, error)
}

// StaticKeyring is an in-memory keyring populated through its Add methods
type StaticKeyring struct {
	public  map[string]*rsa.PublicKey
	private map[string]*rsa.PrivateKey
}

// NewStaticKeyring creates an empty in-memory keyring
func NewStaticKeyring() *StaticKeyring {
	return &StaticKeyring{
		public:  make(map[string]*rsa.PublicKey),
		private: make(map[string]*rsa.PrivateKey),
	}
}

// AddPublicKey registers a recipient's public key
func (k *StaticKeyring) AddPublicKey(recipientID string, pub *rsa.PublicKey) {
	k.public[recipientID] = pub
}

// AddKeyPair registers a recipient's private key along with its public half
func (k *StaticKeyring) AddKeyPair(recipientID string, priv *rsa.PrivateKey) {
	k.private[recipientID] = priv
	k.public[recipientID] = &priv.PublicKey
}

// PublicKey returns the public key for a recipient
func (k *StaticKeyring) PublicKey(recipientID string) (*rsa.PublicKey, error) {
	pub, ok := k.public[recipientID]
	if !ok {
		return nil, NewKeyError(recipientID, "no public key in keyring", ErrKeyUnavailable)
	}
	return pub, nil
}

// PrivateKey returns the private key for a recipient
func (k *StaticKeyring) PrivateKey(recipientID string) (*rsa.PrivateKey, error) {
	priv, ok := k.private[recipientID]
	if !ok {
		return nil, NewKeyError(recipientID, "no private key in keyring", ErrKeyUnavailable)
	}
	return priv, nil
}

// keyringDocument mirrors the on-disk keyring file. Key pairs carry both
// halves of a local identity; contacts carry public keys only.
type keyringDocument struct {
	KeyPairs []keyringPair    `json:"key_pairs"`
	Contacts []keyringContact `json:"contacts"`
}

type keyringPair struct {
	Name       string `json:"name"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

type keyringContact struct {
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
}

// FileKeyring is a keyring loaded from a JSON document of PEM-encoded keys
type FileKeyring struct {
	public  map[string]*rsa.PublicKey
	private map[string]*rsa.PrivateKey
}

// LoadKeyring reads and parses a keyring document from the filesystem
func LoadKeyring(fs absfs.FileSystem, path string) (*FileKeyring, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, NewIOError("open", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, NewIOError("read", path, err)
	}

	var doc keyringDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{
			Field:   "keyring",
			Message: "failed to parse keyring document",
			Err:     err,
		}
	}

	kr := &FileKeyring{
		public:  make(map[string]*rsa.PublicKey),
		private: make(map[string]*rsa.PrivateKey),
	}

	for _, pair := range doc.KeyPairs {
		if err := ValidateRecipientID(pair.Name); err != nil {
			return nil, err
		}
		priv, err := ParsePrivateKeyPEM([]byte(pair.PrivateKey))
		if err != nil {
			return nil, &ValidationError{
				Field:   "keyring",
				Value:   pair.Name,
				Message: "failed to parse private key",
				Err:     err,
			}
		}
		kr.private[pair.Name] = priv
		kr.public[pair.Name] = &priv.PublicKey
	}

	for _, contact := range doc.Contacts {
		if err := ValidateRecipientID(contact.Name); err != nil {
			return nil, err
		}
		pub, err := ParsePublicKeyPEM([]byte(contact.PublicKey))
		if err != nil {
			return nil, &ValidationError{
				Field:   "keyring",
				Value:   contact.Name,
				Message: "failed to parse public key",
				Err:     err,
			}
		}
		kr.public[contact.Name] = pub
	}

	return kr, nil
}

// PublicKey returns the public key for a recipient
func (k *FileKeyring) PublicKey(recipientID string) (*rsa.PublicKey, error) {
	pub, ok := k.public[recipientID]
	if !ok {
		return nil, NewKeyError(recipientID, "no public key in keyring", ErrKeyUnavailable)
	}
	return pub, nil
}

// PrivateKey returns the private key for a recipient
func (k *FileKeyring) PrivateKey(recipientID string) (*rsa.PrivateKey, error) {
	priv, ok := k.private[recipientID]
	if !ok {
		return nil, NewKeyError(recipientID, "no private key in keyring", ErrKeyUnavailable)
	}
	return priv, nil
}

// Identities lists recipient names with a private key, sorted by name
func (k *FileKeyring) Identities() []string {
	names := make([]string, 0, len(k.private))
	for name := range k.private {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParsePrivateKeyPEM parses a PEM-encoded RSA private key in either PKCS#1
// or PKCS#8 form
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}

// ParsePublicKeyPEM parses a PEM-encoded RSA public key in either PKIX or
// PKCS#1 form
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaPub, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}

// MarshalPrivateKeyPEM encodes an RSA private key as PKCS#1 PEM
func MarshalPrivateKeyPEM(priv *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
}

// MarshalPublicKeyPEM encodes an RSA public key as PKIX PEM
func MarshalPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	}), nil
}
