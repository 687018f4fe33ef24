// Package secrets seals credential blobs with AES-256-GCM before they reach
// any storage backend.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/rendis/actiondesk/pkg/schema"
)

const (
	keySize           = 32
	defaultIterations = 100_000
)

// KeyConfig names the sealing key. MasterKey wins when both are set.
type KeyConfig struct {
	MasterKey  []byte
	Passphrase string
	Salt       []byte
	Iterations int
}

func (c KeyConfig) key() ([]byte, error) {
	switch {
	case len(c.MasterKey) == keySize:
		return c.MasterKey, nil
	case len(c.MasterKey) > 0:
		return nil, schema.NewErrorf(schema.ErrCodeVault, "master key is %d bytes, want %d", len(c.MasterKey), keySize)
	case c.Passphrase == "":
		return nil, schema.NewError(schema.ErrCodeVault, "no master key or passphrase configured")
	case len(c.Salt) == 0:
		return nil, schema.NewError(schema.ErrCodeVault, "passphrase needs a salt")
	}
	iter := c.Iterations
	if iter <= 0 {
		iter = defaultIterations
	}
	return pbkdf2.Key(sha256.New, c.Passphrase, c.Salt, iter, keySize)
}

// Sealer encrypts blobs bound to a label, normally the storage key. A blob
// copied under another key fails to open.
type Sealer struct {
	gcm cipher.AEAD
}

func NewSealer(cfg KeyConfig) (*Sealer, error) {
	key, err := cfg.key()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal returns a fresh random nonce followed by the ciphertext.
func (s *Sealer) Seal(plain []byte, label string) ([]byte, error) {
	out := make([]byte, s.gcm.NonceSize(), s.gcm.NonceSize()+len(plain)+s.gcm.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return s.gcm.Seal(out, out, plain, []byte(label)), nil
}

func (s *Sealer) Open(blob []byte, label string) ([]byte, error) {
	n := s.gcm.NonceSize()
	if len(blob) < n+s.gcm.Overhead() {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "sealed value for %q is truncated", label)
	}
	plain, err := s.gcm.Open(nil, blob[:n], blob[n:], []byte(label))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "cannot open sealed value for %q", label).WithCause(err)
	}
	return plain, nil
}
