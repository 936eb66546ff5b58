// Package mpd reads the local media player's now-playing state over the
// MPD protocol. It only observes; playback control stays with the remote
// service.
package mpd

import (
	"fmt"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"cadenza/internal/audio"
)

// Client wraps the MPD client with reconnection logic.
type Client struct {
	mu     sync.Mutex
	client *mpd.Client
	host   string
	port   int
}

// NewClient creates a new MPD client wrapper.
func NewClient(host string, port int) *Client {
	return &Client{
		host: host,
		port: port,
	}
}

// Connect establishes connection to MPD.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

// connectLocked establishes connection (must hold lock).
func (c *Client) connectLocked() error {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)

	client, err := mpd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	c.client = client
	log.Info().Str("addr", addr).Msg("Connected to MPD")
	return nil
}

// ensureConnectedLocked checks connection and reconnects if needed.
func (c *Client) ensureConnectedLocked() error {
	if c.client == nil {
		return c.connectLocked()
	}

	if err := c.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting")
		c.client.Close()
		c.client = nil
		return c.connectLocked()
	}

	return nil
}

// Close closes the MPD connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Ping checks if the connection is alive.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return c.client.Ping()
}

// NowPlaying returns the identity of the track the local player is playing.
// Returns audio.ErrNoLocalTrack when the player is stopped or idle.
func (c *Client) NowPlaying() (audio.TrackIdentity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(); err != nil {
		return audio.TrackIdentity{}, err
	}

	status, err := c.client.Status()
	if err != nil {
		return audio.TrackIdentity{}, fmt.Errorf("mpd status: %w", err)
	}
	if status["state"] != "play" {
		return audio.TrackIdentity{}, audio.ErrNoLocalTrack
	}

	song, err := c.client.CurrentSong()
	if err != nil {
		return audio.TrackIdentity{}, fmt.Errorf("mpd current song: %w", err)
	}
	if song["file"] == "" {
		return audio.TrackIdentity{}, audio.ErrNoLocalTrack
	}

	return audio.TrackIdentity{
		URI:    song["file"],
		Title:  song["Title"],
		Artist: song["Artist"],
		Album:  song["Album"],
	}, nil
}
