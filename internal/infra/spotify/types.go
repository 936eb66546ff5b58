// Package spotify is a thin client for the Spotify Web API.
//
// It deliberately exposes raw status semantics (204, 401, 429) as sentinel
// errors instead of retrying, because the polling loop and the rate-limit
// governor own those policies.
package spotify

import (
	"errors"

	"cadenza/internal/domain/player"
)

// Common errors
var (
	// ErrRateLimited indicates the API returned HTTP 429
	ErrRateLimited = errors.New("rate limited")

	// ErrUnauthorized indicates the API returned HTTP 401
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotPlaying indicates no playback state is available (HTTP 204,
	// an empty body, or a body missing the required track fields)
	ErrNotPlaying = errors.New("nothing playing")
)

// RepeatOff, RepeatContext and RepeatTrack are the accepted repeat modes.
const (
	RepeatOff     = "off"
	RepeatContext = "context"
	RepeatTrack   = "track"
)

// Snapshot is the parsed current-playback response.
type Snapshot struct {
	Track     player.Track
	AlbumName string
	IsPlaying bool
}

// Device is a playback device known to the API.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Wire types below mirror the relevant slice of the API's JSON.

type currentlyPlayingResponse struct {
	IsPlaying bool       `json:"is_playing"`
	Item      *trackItem `json:"item"`
}

type trackItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"images"`
	} `json:"album"`
}

type recentlyPlayedResponse struct {
	Items []struct {
		Track trackItem `json:"track"`
	} `json:"items"`
}

type devicesResponse struct {
	Devices []Device `json:"devices"`
}

// toTrack converts a wire track into the domain track. Returns false when
// required fields are missing.
func (t *trackItem) toTrack() (player.Track, bool) {
	if t == nil || t.ID == "" || t.URI == "" {
		return player.Track{}, false
	}

	track := player.Track{
		ID:    t.ID,
		Title: t.Name,
		URI:   t.URI,
	}
	if len(t.Artists) > 0 {
		track.ArtistName = t.Artists[0].Name
	}
	if len(t.Album.Images) > 0 {
		// Images are ordered largest first; the smallest is plenty for
		// a menu bar.
		track.ArtworkURL = t.Album.Images[len(t.Album.Images)-1].URL
	}
	return track, true
}
