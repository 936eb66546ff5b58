// Package blobstore persists small encrypted records on disk.
//
// Each Store owns exactly one named blob so that corruption in one record
// never invalidates the others. Writes are atomic (temp file + rename);
// a blob that fails to decrypt is deleted so the caller restarts from an
// empty record instead of crashing.
package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Common errors
var (
	// ErrNotFound indicates the blob does not exist yet
	ErrNotFound = errors.New("blob not found")

	// ErrCorrupt indicates the blob failed to decrypt and has been deleted
	ErrCorrupt = errors.New("blob corrupt")
)

// Sealer encrypts and decrypts record bytes under a named key. The key
// management backend (OS keychain, sealed key file) stays behind this
// interface; the store never sees key material.
type Sealer interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(sealed []byte) ([]byte, error)
	DeleteKey() error
}

// Store reads and writes one encrypted blob.
type Store struct {
	path   string
	sealer Sealer
}

// New creates a store for the blob at path.
func New(path string, sealer Sealer) *Store {
	return &Store{path: path, sealer: sealer}
}

// Save encrypts data and writes it atomically. A partial write never
// leaves a half-written blob behind.
func (s *Store) Save(data []byte) error {
	sealed, err := s.sealer.Encrypt(data)
	if err != nil {
		return fmt.Errorf("seal blob: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

// Load reads and decrypts the blob. Returns ErrNotFound when it does not
// exist. When decryption fails the blob is deleted and ErrCorrupt is
// returned, so the store self-heals.
func (s *Store) Load() ([]byte, error) {
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}

	plain, err := s.sealer.Decrypt(sealed)
	if err != nil {
		log.Warn().Str("path", s.path).Msg("Blob failed to decrypt, deleting")
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Error().Err(rmErr).Str("path", s.path).Msg("Failed to delete corrupt blob")
		}
		return nil, ErrCorrupt
	}

	return plain, nil
}

// Delete removes the blob. Absence is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Wipe deletes the blob and its encryption key.
func (s *Store) Wipe() error {
	if err := s.Delete(); err != nil {
		return err
	}
	return s.sealer.DeleteKey()
}
