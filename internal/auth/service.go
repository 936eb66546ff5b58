package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Default OAuth endpoints for the Spotify accounts service.
const (
	DefaultAuthURL  = "https://accounts.spotify.com/authorize"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
)

// Common errors
var (
	// ErrNotAuthorized indicates no token exists yet
	ErrNotAuthorized = errors.New("not authorized")

	// ErrReauthRequired indicates the refresh token was rejected and a
	// full re-authorization is needed
	ErrReauthRequired = errors.New("reauthorization required")
)

// Config holds the OAuth client settings.
type Config struct {
	ClientID    string
	RedirectURL string
	Scopes      []string
	AuthURL     string // defaults to DefaultAuthURL
	TokenURL    string // defaults to DefaultTokenURL
}

// Service owns the token lifecycle: PKCE authorization, refresh, reset.
// Safe for concurrent use; a refresh in flight serializes callers.
type Service struct {
	mu          sync.Mutex
	store       *Store
	conf        *oauth2.Config
	tokenURL    string
	redirectURL string
	httpClient  *http.Client
	current     *Token
	openBrowser func(url string) error
	authorized  func()
}

// Option is a functional option for configuring the service
type Option func(*Service)

// WithHTTPClient sets a custom HTTP client for the refresh flow
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}

// WithBrowserOpener sets how the authorization URL is presented to the user
func WithBrowserOpener(open func(url string) error) Option {
	return func(s *Service) {
		s.openBrowser = open
	}
}

// WithAuthorizedHook sets a callback invoked after a successful authorization
func WithAuthorizedHook(fn func()) Option {
	return func(s *Service) {
		s.authorized = fn
	}
}

// NewService creates the auth service and loads any persisted token.
func NewService(store *Store, cfg Config, opts ...Option) *Service {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	s := &Service{
		store: store,
		conf: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		tokenURL:    tokenURL,
		redirectURL: cfg.RedirectURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		openBrowser: openBrowserCmd,
	}

	for _, opt := range opts {
		opt(s)
	}

	tok, err := store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load persisted token")
	} else if tok != nil {
		s.current = tok
		log.Info().Time("expiresAt", tok.ExpiresAt).Msg("Loaded persisted token")
	}

	return s
}

// Authorized reports whether a token pair exists.
func (s *Service) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Token returns a usable access token, refreshing it first when expired.
// Returns ErrNotAuthorized when no token exists and ErrReauthRequired when
// the refresh token was rejected.
func (s *Service) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return "", ErrNotAuthorized
	}
	if !s.current.IsExpired(time.Now()) {
		return s.current.AccessToken, nil
	}

	tok, err := s.refreshLocked(ctx, s.current)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Invalidate marks the current token as expired so the next Token call
// refreshes it. Used when the remote API rejects a request with 401.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// Reset drops the token pair entirely. Idempotent.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	return s.store.Delete()
}

// refreshLocked exchanges the refresh token for a new pair. Must hold mu.
// A refresh response that omits the refresh token keeps the previous one.
// HTTP 400 is the only path that forces full re-authorization.
func (s *Service) refreshLocked(ctx context.Context, old *Token) (*Token, error) {
	if old.RefreshToken == "" {
		s.current = nil
		if err := s.store.Delete(); err != nil {
			log.Error().Err(err).Msg("Failed to delete unrefreshable token")
		}
		return nil, ErrReauthRequired
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", old.RefreshToken)
	form.Set("client_id", s.conf.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		log.Warn().Msg("Refresh token rejected, full re-authorization required")
		s.current = nil
		if err := s.store.Delete(); err != nil {
			log.Error().Err(err).Msg("Failed to delete rejected token")
		}
		return nil, ErrReauthRequired
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh request failed with status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access token")
	}

	tok := &Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	if tok.RefreshToken == "" {
		// The API may not resend the refresh token; keep the old one.
		tok.RefreshToken = old.RefreshToken
	}

	if err := s.store.Save(tok); err != nil {
		log.Error().Err(err).Msg("Failed to persist refreshed token")
	}
	s.current = tok

	log.Info().Time("expiresAt", tok.ExpiresAt).Msg("Token refreshed")
	return tok, nil
}

func openBrowserCmd(u string) error {
	return exec.Command("open", u).Start()
}
