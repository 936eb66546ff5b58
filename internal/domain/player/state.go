// Package player holds the playback state that the UI renders from.
package player

import "sync"

// Status constants for the playback state kind.
const (
	StatusLoading    = "loading"
	StatusPlaying    = "playing"
	StatusNotPlaying = "notPlaying"
	StatusError      = "error"
)

// Track is a single remote track. Identity is the URI; two tracks with the
// same URI are the same entity even when mutable fields differ.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ArtistName string `json:"artistName"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkURL,omitempty"`
	IsLiked    bool   `json:"isLiked"`
}

// State is the current playback state. Exactly one kind is active at a time.
type State struct {
	Kind string

	// Set when Kind == StatusPlaying
	Track             Track
	IsActuallyPlaying bool
	IsLiked           bool
	ArtPath           string

	// Set when Kind == StatusNotPlaying or StatusError
	Message string
}

// Loading returns the initial state shown before the first poll completes.
func Loading() State {
	return State{Kind: StatusLoading}
}

// Playing returns a state for an active track.
func Playing(track Track, actuallyPlaying, liked bool, artPath string) State {
	return State{
		Kind:              StatusPlaying,
		Track:             track,
		IsActuallyPlaying: actuallyPlaying,
		IsLiked:           liked,
		ArtPath:           artPath,
	}
}

// NotPlaying returns a state with a short status message instead of a track.
func NotPlaying(message string) State {
	return State{Kind: StatusNotPlaying, Message: message}
}

// Errored returns an error state with a short human-readable message.
func Errored(message string) State {
	return State{Kind: StatusError, Message: message}
}

// URI returns the playing track's URI, or "" when nothing is playing.
func (s State) URI() string {
	if s.Kind != StatusPlaying {
		return ""
	}
	return s.Track.URI
}

// ToJSON returns the state as a map suitable for pushing to UI clients.
func (s State) ToJSON() map[string]interface{} {
	out := map[string]interface{}{
		"status": s.Kind,
	}

	switch s.Kind {
	case StatusPlaying:
		out["track"] = map[string]interface{}{
			"id":     s.Track.ID,
			"title":  s.Track.Title,
			"artist": s.Track.ArtistName,
			"uri":    s.Track.URI,
		}
		out["isPlaying"] = s.IsActuallyPlaying
		out["isLiked"] = s.IsLiked
		if s.ArtPath != "" {
			out["artPath"] = s.ArtPath
		}
	case StatusNotPlaying, StatusError:
		out["message"] = s.Message
	}

	return out
}

// EmitFunc receives every state change for rendering.
type EmitFunc func(State)

// Store owns the current playback state. All transitions go through Set;
// nothing else may replace the rendered state.
type Store struct {
	mu      sync.RWMutex
	current State
	emit    EmitFunc
}

// NewStore creates a store starting in the loading state.
func NewStore() *Store {
	return &Store{current: Loading()}
}

// SetEmit registers the render callback. Must be called before Run starts
// driving state changes.
func (s *Store) SetEmit(emit EmitFunc) {
	s.mu.Lock()
	s.emit = emit
	s.mu.Unlock()
}

// Set replaces the current state and emits it.
func (s *Store) Set(state State) {
	s.mu.Lock()
	s.current = state
	emit := s.emit
	s.mu.Unlock()

	if emit != nil {
		emit(state)
	}
}

// Current returns the current state.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Rerender re-emits the current state unchanged. Used after a rate-limit
// cooldown to clear the transient indicator without a fresh fetch.
func (s *Store) Rerender() {
	s.mu.RLock()
	state := s.current
	emit := s.emit
	s.mu.RUnlock()

	if emit != nil {
		emit(state)
	}
}

// SetLiked flips the liked flag of the current state, but only when the
// given URI still matches the playing track. A stale update is dropped.
func (s *Store) SetLiked(uri string, liked bool) bool {
	s.mu.Lock()
	if s.current.Kind != StatusPlaying || s.current.Track.URI != uri {
		s.mu.Unlock()
		return false
	}
	s.current.IsLiked = liked
	s.current.Track.IsLiked = liked
	state := s.current
	emit := s.emit
	s.mu.Unlock()

	if emit != nil {
		emit(state)
	}
	return true
}
