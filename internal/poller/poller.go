// Package poller drives the periodic playback fetch loop.
//
// One goroutine owns the loop; fetches never overlap. Ticks that arrive
// while a fetch is running or during the short cooling window after one
// are dropped, so a slow network cannot queue up a burst of requests.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cadenza/internal/audio"
	"cadenza/internal/auth"
	"cadenza/internal/domain/history"
	"cadenza/internal/domain/player"
	"cadenza/internal/infra/spotify"
)

// Default loop timings.
const (
	DefaultInterval = 15 * time.Second
	DefaultCooling  = 2 * time.Second
)

// API is the slice of the remote client the poller uses.
type API interface {
	CurrentlyPlaying(ctx context.Context) (*spotify.Snapshot, error)
	RecentlyPlayed(ctx context.Context, limit int) ([]player.Track, error)
	ContainsSavedTracks(ctx context.Context, ids []string) (map[string]bool, error)
}

// Limiter receives rate-limit notes from the poll path.
type Limiter interface {
	NotePollLimited()
}

// ArtFetcher resolves an artwork URL to a local thumbnail path.
type ArtFetcher interface {
	Fetch(url string) (string, error)
}

// RateSwitcher is told about track changes so the output device can follow.
type RateSwitcher interface {
	Apply(track audio.TrackIdentity)
}

// Invalidator marks the access token expired after a remote 401.
type Invalidator interface {
	Invalidate()
}

// Poller owns the fetch loop and derives the playback state from it.
type Poller struct {
	interval time.Duration
	cooling  time.Duration

	api      API
	states   *player.Store
	hist     *history.Cache
	governor Limiter
	tokens   Invalidator

	art      ArtFetcher
	switcher RateSwitcher
	local    audio.NowPlayingReader

	mu        sync.Mutex
	ticker    *time.Ticker
	paused    bool
	coolUntil time.Time
	onHistory func()

	kickCh     chan struct{}
	lastURI    string
	retried401 bool
}

// Option is a functional option for configuring the poller
type Option func(*Poller)

// WithInterval overrides the poll interval
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithCooling overrides the post-fetch cooling window
func WithCooling(d time.Duration) Option {
	return func(p *Poller) {
		p.cooling = d
	}
}

// WithArtFetcher sets the artwork fetcher
func WithArtFetcher(art ArtFetcher) Option {
	return func(p *Poller) {
		p.art = art
	}
}

// WithRateSwitcher sets the sample rate switcher
func WithRateSwitcher(sw RateSwitcher) Option {
	return func(p *Poller) {
		p.switcher = sw
	}
}

// WithLocalReader sets the local player fallback for the rate switcher
func WithLocalReader(local audio.NowPlayingReader) Option {
	return func(p *Poller) {
		p.local = local
	}
}

// New creates a poller. The governor and token invalidator are required;
// enrichment collaborators are optional.
func New(api API, states *player.Store, hist *history.Cache, governor Limiter, tokens Invalidator, opts ...Option) *Poller {
	p := &Poller{
		interval: DefaultInterval,
		cooling:  DefaultCooling,
		api:      api,
		states:   states,
		hist:     hist,
		governor: governor,
		tokens:   tokens,
		kickCh:   make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// SetHistoryChanged registers a callback fired after the history mutates.
func (p *Poller) SetHistoryChanged(fn func()) {
	p.mu.Lock()
	p.onHistory = fn
	p.mu.Unlock()
}

// Run drives the loop until ctx is cancelled. An immediate fetch and a
// remote history sync happen before the first tick.
func (p *Poller) Run(ctx context.Context) {
	p.mu.Lock()
	p.ticker = time.NewTicker(p.interval)
	p.mu.Unlock()
	defer p.ticker.Stop()

	log.Info().Dur("interval", p.interval).Msg("Starting playback poller")

	p.SyncRecent(ctx)
	p.fetch(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Playback poller stopped")
			return
		case <-p.ticker.C:
			if p.skippable() {
				continue
			}
			p.fetch(ctx)
		case <-p.kickCh:
			if p.skippable() {
				continue
			}
			p.fetch(ctx)
		}
	}
}

// Pause stops the timer outright. Ticks do not accumulate while paused.
func (p *Poller) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused || p.ticker == nil {
		return
	}
	p.paused = true
	p.ticker.Stop()
	log.Info().Msg("Polling paused")
}

// Resume restarts the timer and triggers an immediate fetch.
func (p *Poller) Resume() {
	p.mu.Lock()
	if !p.paused || p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.paused = false
	p.ticker.Reset(p.interval)
	p.mu.Unlock()

	log.Info().Msg("Polling resumed")
	p.Kick(0)
}

// Kick schedules a one-off early fetch after the given delay. Used by the
// action gateway to refetch shortly after a successful mutation.
func (p *Poller) Kick(delay time.Duration) {
	if delay <= 0 {
		p.enqueue()
		return
	}
	time.AfterFunc(delay, p.enqueue)
}

func (p *Poller) enqueue() {
	select {
	case p.kickCh <- struct{}{}:
	default:
	}
}

// skippable reports whether the pending trigger should be dropped.
func (p *Poller) skippable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused || time.Now().Before(p.coolUntil)
}

// fetch performs one poll cycle and updates the derived state.
func (p *Poller) fetch(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.coolUntil = time.Now().Add(p.cooling)
		p.mu.Unlock()
	}()

	snap, err := p.api.CurrentlyPlaying(ctx)
	switch {
	case err == nil:
		p.retried401 = false
		p.handlePlaying(ctx, snap)

	case errors.Is(err, spotify.ErrNotPlaying):
		p.retried401 = false
		p.handleNotPlaying()

	case errors.Is(err, spotify.ErrUnauthorized):
		// The token may just be expired; invalidate it and retry once.
		if !p.retried401 {
			p.retried401 = true
			p.tokens.Invalidate()
			log.Debug().Msg("Remote rejected token, retrying after refresh")
			p.fetchRetry(ctx)
			return
		}
		p.retried401 = false
		p.states.Set(player.NotPlaying("Please Authorize"))

	case errors.Is(err, auth.ErrNotAuthorized), errors.Is(err, auth.ErrReauthRequired):
		p.states.Set(player.NotPlaying("Please Authorize"))

	case errors.Is(err, spotify.ErrRateLimited):
		// Whatever was on screen stays on screen; the governor takes over.
		p.governor.NotePollLimited()

	default:
		log.Warn().Err(err).Msg("Poll failed")
		p.states.Set(player.Errored("Network Error"))
	}
}

// fetchRetry runs the single post-invalidation retry without touching the
// cooling window twice.
func (p *Poller) fetchRetry(ctx context.Context) {
	snap, err := p.api.CurrentlyPlaying(ctx)
	switch {
	case err == nil:
		p.retried401 = false
		p.handlePlaying(ctx, snap)
	case errors.Is(err, spotify.ErrNotPlaying):
		p.retried401 = false
		p.handleNotPlaying()
	case errors.Is(err, spotify.ErrRateLimited):
		p.governor.NotePollLimited()
	case errors.Is(err, spotify.ErrUnauthorized),
		errors.Is(err, auth.ErrNotAuthorized),
		errors.Is(err, auth.ErrReauthRequired):
		p.states.Set(player.NotPlaying("Please Authorize"))
	default:
		p.retried401 = false
		log.Warn().Err(err).Msg("Poll retry failed")
		p.states.Set(player.Errored("Network Error"))
	}
}

// handlePlaying enriches the snapshot and publishes the playing state.
// The liked check and the artwork fetch run concurrently; either leg
// failing falls back to its default rather than failing the cycle.
func (p *Poller) handlePlaying(ctx context.Context, snap *spotify.Snapshot) {
	track := snap.Track
	trackChanged := track.URI != p.lastURI

	var (
		wg      sync.WaitGroup
		liked   bool
		artPath string
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		result, err := p.api.ContainsSavedTracks(ctx, []string{track.ID})
		if err != nil {
			if errors.Is(err, spotify.ErrRateLimited) {
				p.governor.NotePollLimited()
			}
			log.Debug().Err(err).Str("id", track.ID).Msg("Liked check failed")
			return
		}
		liked = result[track.ID]
	}()

	if p.art != nil && track.ArtworkURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, err := p.art.Fetch(track.ArtworkURL)
			if err != nil {
				log.Debug().Err(err).Msg("Artwork fetch failed")
				return
			}
			artPath = path
		}()
	}

	wg.Wait()

	track.IsLiked = liked
	p.states.Set(player.Playing(track, snap.IsPlaying, liked, artPath))

	if trackChanged {
		p.hist.RecordPlaying(track)
		if p.switcher != nil {
			p.switcher.Apply(audio.TrackIdentity{
				URI:    track.URI,
				Title:  track.Title,
				Artist: track.ArtistName,
				Album:  snap.AlbumName,
			})
		}
		log.Info().Str("title", track.Title).Str("artist", track.ArtistName).Msg("Track changed")
	} else {
		p.hist.AnnotateLiked(track.ID, liked)
	}
	p.notifyHistory()

	p.lastURI = track.URI
}

// handleNotPlaying publishes the idle state. When a local player reader is
// wired, its track still drives the sample rate switcher.
func (p *Poller) handleNotPlaying() {
	p.states.Set(player.NotPlaying("Nothing Playing"))
	p.lastURI = ""

	if p.local == nil || p.switcher == nil {
		return
	}
	track, err := p.local.NowPlaying()
	if err != nil {
		if !errors.Is(err, audio.ErrNoLocalTrack) {
			log.Debug().Err(err).Msg("Local player read failed")
		}
		return
	}
	p.switcher.Apply(track)
}

// SyncRecent merges the remote recently-played feed into the history and
// annotates liked flags. Failures are logged; the local history stands.
func (p *Poller) SyncRecent(ctx context.Context) {
	remote, err := p.api.RecentlyPlayed(ctx, history.DefaultCapacity)
	if err != nil {
		if errors.Is(err, spotify.ErrRateLimited) {
			p.governor.NotePollLimited()
		}
		log.Debug().Err(err).Msg("Recently played sync failed")
		return
	}

	p.hist.MergeRemote(remote)

	ids := make([]string, 0, p.hist.Len())
	for _, t := range p.hist.Tracks() {
		ids = append(ids, t.ID)
	}

	// Partial results on a mid-sequence 429 still get annotated.
	flags, err := p.api.ContainsSavedTracks(ctx, ids)
	if err != nil {
		if errors.Is(err, spotify.ErrRateLimited) {
			p.governor.NotePollLimited()
		}
		log.Debug().Err(err).Msg("Liked annotation incomplete")
	}
	for id, liked := range flags {
		p.hist.AnnotateLiked(id, liked)
	}

	p.notifyHistory()
	log.Info().Int("count", p.hist.Len()).Msg("Synced remote history")
}

func (p *Poller) notifyHistory() {
	p.mu.Lock()
	fn := p.onHistory
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}
