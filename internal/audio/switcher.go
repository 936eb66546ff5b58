// Package audio keeps the output device's sample rate in step with what is
// playing. Overrides map a track URI or an album name to a rate in Hz; the
// most specific match wins, with a configured default below them.
package audio

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrNoLocalTrack indicates the local player has nothing playing.
var ErrNoLocalTrack = errors.New("no local track")

// TrackIdentity is the minimal identity of a playing track, from either
// the remote service or the local player.
type TrackIdentity struct {
	URI    string
	Title  string
	Artist string
	Album  string
}

// DeviceSetter applies a sample rate to the output device.
type DeviceSetter interface {
	SetSampleRate(hz int) error
}

// NowPlayingReader reports the local player's current track.
type NowPlayingReader interface {
	NowPlaying() (TrackIdentity, error)
}

// Overrides are the persisted rate rules.
type Overrides struct {
	// ByURI maps a track URI to a rate in Hz
	ByURI map[string]int `json:"byUri"`
	// ByAlbum maps an album name to a rate in Hz
	ByAlbum map[string]int `json:"byAlbum"`
}

// Switcher resolves the desired sample rate per track and applies it.
type Switcher struct {
	mu          sync.Mutex
	setter      DeviceSetter
	overrides   Overrides
	defaultRate int
	lastApplied int
}

// NewSwitcher creates a switcher with the given default rate.
func NewSwitcher(setter DeviceSetter, defaultRate int) *Switcher {
	return &Switcher{
		setter:      setter,
		defaultRate: defaultRate,
		overrides: Overrides{
			ByURI:   make(map[string]int),
			ByAlbum: make(map[string]int),
		},
	}
}

// LoadOverrides reads the override rules from a JSON file. A missing file
// is not an error; the switcher just runs on the default rate.
func (s *Switcher) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var ov Overrides
	if err := json.Unmarshal(data, &ov); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ov.ByURI != nil {
		s.overrides.ByURI = ov.ByURI
	}
	if ov.ByAlbum != nil {
		s.overrides.ByAlbum = ov.ByAlbum
	}

	log.Info().
		Int("uriRules", len(s.overrides.ByURI)).
		Int("albumRules", len(s.overrides.ByAlbum)).
		Msg("Loaded sample rate overrides")
	return nil
}

// Resolve returns the rate for a track: URI rule, then album rule, then
// the default.
func (s *Switcher) Resolve(track TrackIdentity) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(track)
}

func (s *Switcher) resolveLocked(track TrackIdentity) int {
	if rate, ok := s.overrides.ByURI[track.URI]; ok && track.URI != "" {
		return rate
	}
	if rate, ok := s.overrides.ByAlbum[track.Album]; ok && track.Album != "" {
		return rate
	}
	return s.defaultRate
}

// Apply resolves and applies the rate for a track. Repeated calls for the
// same resolved rate are no-ops; setter failures are logged and swallowed,
// playback must never stall on the device.
func (s *Switcher) Apply(track TrackIdentity) {
	s.mu.Lock()
	rate := s.resolveLocked(track)
	if rate == s.lastApplied || s.setter == nil {
		s.mu.Unlock()
		return
	}
	s.lastApplied = rate
	setter := s.setter
	s.mu.Unlock()

	if err := setter.SetSampleRate(rate); err != nil {
		log.Warn().Err(err).Str("rate", FormatSampleRate(rate)).Msg("Failed to set device sample rate")
		return
	}
	log.Info().Str("rate", FormatSampleRate(rate)).Str("title", track.Title).Msg("Switched device sample rate")
}

// FormatSampleRate returns a human-readable sample rate string.
func FormatSampleRate(sampleRate int) string {
	if sampleRate >= 1000 {
		return strconv.FormatFloat(float64(sampleRate)/1000, 'f', -1, 64) + "kHz"
	}
	return strconv.Itoa(sampleRate) + "Hz"
}
