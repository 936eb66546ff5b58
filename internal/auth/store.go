package auth

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Blob persists the encoded token record.
type Blob interface {
	Save(data []byte) error
	Load() ([]byte, error)
	Delete() error
}

// Store persists the token pair through an encrypted blob.
type Store struct {
	blob Blob
}

// NewStore creates a token store backed by the given blob.
func NewStore(blob Blob) *Store {
	return &Store{blob: blob}
}

// Load reads the persisted token. A missing record returns (nil, nil).
// A record that fails to decode is treated as corrupt: it is deleted and
// (nil, nil) is returned, so the app falls back to "not authorized"
// instead of crashing.
func (s *Store) Load() (*Token, error) {
	data, err := s.blob.Load()
	if err != nil {
		// The blob layer already self-heals decrypt failures.
		return nil, nil
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		log.Warn().Err(err).Msg("Token record is malformed, deleting")
		if delErr := s.blob.Delete(); delErr != nil {
			log.Error().Err(delErr).Msg("Failed to delete malformed token record")
		}
		return nil, nil
	}
	if tok.AccessToken == "" {
		return nil, nil
	}

	return &tok, nil
}

// Save persists the token.
func (s *Store) Save(tok *Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return s.blob.Save(data)
}

// Delete removes the persisted token. Absence is not an error.
func (s *Store) Delete() error {
	return s.blob.Delete()
}
