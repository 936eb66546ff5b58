package blobstore

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// FileSealer is a Sealer backed by a random key held in a local file with
// owner-only permissions. It stands in for a platform keychain; callers
// only see the Sealer interface.
type FileSealer struct {
	mu      sync.Mutex
	keyPath string
	key     []byte
}

// NewFileSealer creates a sealer whose key lives at keyPath. The key is
// created on first use.
func NewFileSealer(keyPath string) *FileSealer {
	return &FileSealer{keyPath: keyPath}
}

// Encrypt seals plain with XChaCha20-Poly1305. Output is nonce || ciphertext.
func (f *FileSealer) Encrypt(plain []byte) ([]byte, error) {
	aead, err := f.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plain, nil), nil
}

// Decrypt opens a sealed record produced by Encrypt.
func (f *FileSealer) Decrypt(sealed []byte) ([]byte, error) {
	aead, err := f.aead()
	if err != nil {
		return nil, err
	}

	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("sealed record too short")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed record: %w", err)
	}
	return plain, nil
}

// DeleteKey removes the key file. Absence is not an error.
func (f *FileSealer) DeleteKey() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.key = nil
	if err := os.Remove(f.keyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

func (f *FileSealer) aead() (cipher.AEAD, error) {
	key, err := f.loadOrCreateKey()
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(key)
}

func (f *FileSealer) loadOrCreateKey() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.key != nil {
		return f.key, nil
	}

	key, err := os.ReadFile(f.keyPath)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key file has wrong size %d", len(key))
		}
		f.key = key
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.keyPath), 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(f.keyPath, key, 0600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}

	f.key = key
	return key, nil
}
