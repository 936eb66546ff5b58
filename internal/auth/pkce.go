package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type callbackResult struct {
	code string
	err  error
}

// Authorize runs the authorization-code + PKCE flow: it spins up a loopback
// callback server, opens the authorization URL in the browser, and exchanges
// the returned code for a token pair.
func (s *Service) Authorize(ctx context.Context) error {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	redirect, err := url.Parse(s.redirectURL)
	if err != nil {
		return fmt.Errorf("parse redirect URL: %w", err)
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("listen on callback address: %w", err)
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("state"); got != state {
			http.Error(w, "state mismatch", http.StatusForbidden)
			results <- callbackResult{err: fmt.Errorf("state mismatch")}
			return
		}
		if errParam := r.FormValue("error"); errParam != "" {
			http.Error(w, "authorization denied", http.StatusForbidden)
			results <- callbackResult{err: fmt.Errorf("authorization denied: %s", errParam)}
			return
		}
		code := r.FormValue("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("callback missing code")}
			return
		}
		fmt.Fprint(w, "Login complete. You can close this window.")
		results <- callbackResult{code: code}
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			results <- callbackResult{err: err}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Debug().Err(err).Msg("Callback server shutdown error")
		}
	}()

	authURL := s.conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	log.Info().Str("url", authURL).Msg("Opening authorization page")
	if err := s.openBrowser(authURL); err != nil {
		log.Warn().Err(err).Msg("Failed to open browser, visit the URL manually")
	}

	var result callbackResult
	select {
	case <-ctx.Done():
		return ctx.Err()
	case result = <-results:
	}
	if result.err != nil {
		return result.err
	}

	oauthTok, err := s.conf.Exchange(ctx, result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	tok := &Token{
		AccessToken:  oauthTok.AccessToken,
		RefreshToken: oauthTok.RefreshToken,
		ExpiresAt:    oauthTok.Expiry,
	}

	s.mu.Lock()
	s.current = tok
	if err := s.store.Save(tok); err != nil {
		log.Error().Err(err).Msg("Failed to persist token")
	}
	s.mu.Unlock()

	log.Info().Time("expiresAt", tok.ExpiresAt).Msg("Authorization complete")

	if s.authorized != nil {
		s.authorized()
	}
	return nil
}
