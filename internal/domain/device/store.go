// Package device remembers the playback device last transferred to.
package device

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Ref identifies a playback device.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Blob persists the encoded device record.
type Blob interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

// Store holds the default transfer target across restarts.
type Store struct {
	mu      sync.RWMutex
	blob    Blob
	current *Ref
}

// NewStore creates a store backed by the given blob.
func NewStore(blob Blob) *Store {
	return &Store{blob: blob}
}

// Restore loads the persisted default device. Missing or corrupt data
// leaves no default; it never fails.
func (s *Store) Restore() {
	data, err := s.blob.Load()
	if err != nil {
		log.Debug().Err(err).Msg("No default device restored")
		return
	}

	var ref Ref
	if err := json.Unmarshal(data, &ref); err != nil {
		log.Warn().Err(err).Msg("Device blob is malformed, ignoring")
		return
	}
	if ref.ID == "" {
		return
	}

	s.mu.Lock()
	s.current = &ref
	s.mu.Unlock()

	log.Info().Str("device", ref.Name).Msg("Restored default playback device")
}

// Default returns the remembered device, or nil when none is set.
func (s *Store) Default() *Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	ref := *s.current
	return &ref
}

// SetDefault remembers and persists the device.
func (s *Store) SetDefault(ref Ref) error {
	s.mu.Lock()
	s.current = &ref
	s.mu.Unlock()

	data, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return s.blob.Save(data)
}
