package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cadenza/internal/domain/player"
)

const (
	// DefaultBaseURL is the Spotify Web API base URL
	DefaultBaseURL = "https://api.spotify.com/v1"

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// ContainsBatchSize is the API's per-call ceiling for liked-status lookups
	ContainsBatchSize = 50
)

// TokenProvider supplies a bearer token for each request.
type TokenProvider func(ctx context.Context) (string, error)

// Client calls the Spotify Web API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenProvider
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithBaseURL sets a custom base URL (useful for testing)
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new API client.
func NewClient(token TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do issues one authenticated request and maps the status code.
// The response body is returned for 200; 204 yields (nil, nil).
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%s %s failed with status %d", method, endpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// CurrentlyPlaying fetches the current playback state.
// Returns ErrNotPlaying for 204, an empty body, or a malformed body.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*Snapshot, error) {
	data, err := c.do(ctx, http.MethodGet, "/me/player/currently-playing", nil)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotPlaying
	}

	var body currentlyPlayingResponse
	if err := json.Unmarshal(data, &body); err != nil {
		// Never show stale data as if it were fresh.
		return nil, ErrNotPlaying
	}

	track, ok := body.Item.toTrack()
	if !ok {
		return nil, ErrNotPlaying
	}

	return &Snapshot{
		Track:     track,
		AlbumName: body.Item.Album.Name,
		IsPlaying: body.IsPlaying,
	}, nil
}

// RecentlyPlayed fetches the remote recently-played feed, newest first.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]player.Track, error) {
	data, err := c.do(ctx, http.MethodGet, "/me/player/recently-played?limit="+strconv.Itoa(limit), nil)
	if err != nil {
		return nil, err
	}

	var body recentlyPlayedResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode recently played: %w", err)
	}

	tracks := make([]player.Track, 0, len(body.Items))
	for _, item := range body.Items {
		if track, ok := item.Track.toTrack(); ok {
			tracks = append(tracks, track)
		}
	}
	return tracks, nil
}

// ContainsSavedTracks checks the liked status for up to any number of track
// ids, chunked at the API's per-call ceiling. On a mid-sequence 429 the
// chunks that already succeeded are returned alongside ErrRateLimited.
func (c *Client) ContainsSavedTracks(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool, len(ids))

	for start := 0; start < len(ids); start += ContainsBatchSize {
		end := start + ContainsBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		endpoint := "/me/tracks/contains?ids=" + url.QueryEscape(strings.Join(chunk, ","))
		data, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return result, err
		}

		var flags []bool
		if err := json.Unmarshal(data, &flags); err != nil {
			return result, fmt.Errorf("decode contains response: %w", err)
		}
		if len(flags) != len(chunk) {
			return result, fmt.Errorf("contains response length %d, expected %d", len(flags), len(chunk))
		}
		for i, id := range chunk {
			result[id] = flags[i]
		}
	}

	return result, nil
}

// SaveTrack marks a track as liked.
func (c *Client) SaveTrack(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPut, "/me/tracks?ids="+url.QueryEscape(id), nil)
	return err
}

// RemoveSavedTrack removes a track from liked tracks.
func (c *Client) RemoveSavedTrack(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/me/tracks?ids="+url.QueryEscape(id), nil)
	return err
}

// Play resumes playback.
func (c *Client) Play(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPut, "/me/player/play", nil)
	return err
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPut, "/me/player/pause", nil)
	return err
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/me/player/next", nil)
	return err
}

// Previous skips to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/me/player/previous", nil)
	return err
}

// SetShuffle sets shuffle mode.
func (c *Client) SetShuffle(ctx context.Context, on bool) error {
	_, err := c.do(ctx, http.MethodPut, "/me/player/shuffle?state="+strconv.FormatBool(on), nil)
	return err
}

// SetRepeat sets the repeat mode ("off", "context" or "track").
func (c *Client) SetRepeat(ctx context.Context, mode string) error {
	_, err := c.do(ctx, http.MethodPut, "/me/player/repeat?state="+url.QueryEscape(mode), nil)
	return err
}

// SetVolume sets the playback volume (0-100).
func (c *Client) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	_, err := c.do(ctx, http.MethodPut, "/me/player/volume?volume_percent="+strconv.Itoa(percent), nil)
	return err
}

// AddToPlaylist appends a track URI to a playlist.
func (c *Client) AddToPlaylist(ctx context.Context, playlistID, trackURI string) error {
	body := map[string]interface{}{"uris": []string{trackURI}}
	_, err := c.do(ctx, http.MethodPost, "/playlists/"+url.PathEscape(playlistID)+"/tracks", body)
	return err
}

// Devices lists the playback devices known to the API.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	data, err := c.do(ctx, http.MethodGet, "/me/player/devices", nil)
	if err != nil {
		return nil, err
	}

	var body devicesResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	return body.Devices, nil
}

// TransferTo transfers playback to the given device.
func (c *Client) TransferTo(ctx context.Context, deviceID string) error {
	body := map[string]interface{}{"device_ids": []string{deviceID}}
	_, err := c.do(ctx, http.MethodPut, "/me/player", body)
	return err
}
