// Package config loads the Spotify app settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// DefaultRedirectURL is the loopback callback used by the PKCE flow.
const DefaultRedirectURL = "http://127.0.0.1:8889/callback"

// DefaultScopes covers playback state, control, library and playlists.
var DefaultScopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-recently-played",
	"user-library-read",
	"user-library-modify",
	"playlist-modify-public",
	"playlist-modify-private",
}

// Config holds the Spotify app configuration.
type Config struct {
	ClientID    string
	RedirectURL string
	Scopes      []string
}

// Load loads the configuration from environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg := &Config{
		ClientID:    os.Getenv("SPOTIFY_CLIENT_ID"),
		RedirectURL: os.Getenv("SPOTIFY_REDIRECT_URL"),
		Scopes:      DefaultScopes,
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("SPOTIFY_CLIENT_ID is not set")
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = DefaultRedirectURL
	}

	if scopes := os.Getenv("SPOTIFY_SCOPES"); scopes != "" {
		cfg.Scopes = strings.Split(scopes, ",")
	}

	return cfg, nil
}
