// Package history maintains the bounded list of recently seen tracks.
package history

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"cadenza/internal/domain/player"
)

// DefaultCapacity bounds the history length when no capacity is given.
const DefaultCapacity = 20

// Blob persists the encoded history.
type Blob interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

// Cache is an ordered, URI-deduplicated, capacity-bounded track list,
// most-recent-first. Safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	tracks   []player.Track
}

// NewCache creates a cache with the given capacity (DefaultCapacity if <= 0).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{capacity: capacity}
}

// RecordPlaying inserts a track at the front, removing any prior occurrence
// of the same URI first, then truncates to capacity.
func (c *Cache) RecordPlaying(track player.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]player.Track, 0, len(c.tracks)+1)
	next = append(next, track)
	for _, t := range c.tracks {
		if t.URI == track.URI {
			continue
		}
		next = append(next, t)
	}
	c.tracks = truncate(next, c.capacity)
}

// MergeRemote merges a remote recently-played feed into the history.
// Local entries win on URI collision (remote data may be staler, e.g.
// missing an in-session like toggle); remote entries not present locally
// are appended in first-seen order. The result is truncated to capacity.
func (c *Cache) MergeRemote(remote []player.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(c.tracks)+len(remote))
	next := make([]player.Track, 0, len(c.tracks)+len(remote))

	for _, t := range c.tracks {
		if _, ok := seen[t.URI]; ok {
			continue
		}
		seen[t.URI] = struct{}{}
		next = append(next, t)
	}
	for _, t := range remote {
		if _, ok := seen[t.URI]; ok {
			continue
		}
		seen[t.URI] = struct{}{}
		next = append(next, t)
	}

	c.tracks = truncate(next, c.capacity)
}

// AnnotateLiked updates the liked flag of an existing entry in place.
// No-op when the track id is not present.
func (c *Cache) AnnotateLiked(trackID string, liked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.tracks {
		if c.tracks[i].ID == trackID {
			c.tracks[i].IsLiked = liked
			return
		}
	}
}

// Tracks returns a copy of the history, most-recent-first.
func (c *Cache) Tracks() []player.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]player.Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// Len returns the current history length.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}

// Persist encodes the history and writes it through the blob store.
func (c *Cache) Persist(blob Blob) error {
	c.mu.RLock()
	data, err := json.Marshal(c.tracks)
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	return blob.Save(data)
}

// Restore loads the history from the blob store. Missing or corrupt data
// leaves the cache empty; it is never propagated as a failure.
func (c *Cache) Restore(blob Blob) {
	data, err := blob.Load()
	if err != nil {
		log.Debug().Err(err).Msg("No track history restored")
		return
	}

	var tracks []player.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		log.Warn().Err(err).Msg("Track history blob is malformed, starting empty")
		return
	}

	c.mu.Lock()
	c.tracks = truncate(tracks, c.capacity)
	c.mu.Unlock()

	log.Info().Int("count", len(tracks)).Msg("Restored track history")
}

func truncate(tracks []player.Track, capacity int) []player.Track {
	if len(tracks) > capacity {
		return tracks[:capacity]
	}
	return tracks
}
