// Package gateway executes user playback actions against the remote API.
//
// Actions are fire-once: a 429 raises the transient rate-limit signal and
// the action is dropped, never retried. Successful mutations schedule an
// early poll so the UI converges on the remote truth instead of guessing.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"cadenza/internal/auth"
	"cadenza/internal/domain/device"
	"cadenza/internal/domain/history"
	"cadenza/internal/domain/player"
	"cadenza/internal/infra/spotify"
)

// DefaultKickDelay is how long after a successful mutation the refetch runs.
// The remote API needs a moment before it reports the new state.
const DefaultKickDelay = 500 * time.Millisecond

// ErrNoCurrentTrack indicates an action needed a playing track and none was.
var ErrNoCurrentTrack = errors.New("no current track")

// API is the slice of the remote client the gateway uses.
type API interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetShuffle(ctx context.Context, on bool) error
	SetRepeat(ctx context.Context, mode string) error
	SetVolume(ctx context.Context, percent int) error
	ContainsSavedTracks(ctx context.Context, ids []string) (map[string]bool, error)
	SaveTrack(ctx context.Context, id string) error
	RemoveSavedTrack(ctx context.Context, id string) error
	AddToPlaylist(ctx context.Context, playlistID, trackURI string) error
	Devices(ctx context.Context) ([]spotify.Device, error)
	TransferTo(ctx context.Context, deviceID string) error
}

// Limiter receives rate-limit notes from the action path.
type Limiter interface {
	NoteActionLimited()
}

// Kicker schedules an early poll after a successful mutation.
type Kicker interface {
	Kick(delay time.Duration)
}

// Gateway runs playback actions.
type Gateway struct {
	api       API
	states    *player.Store
	hist      *history.Cache
	devices   *device.Store
	governor  Limiter
	poller    Kicker
	kickDelay time.Duration
}

// Option is a functional option for configuring the gateway
type Option func(*Gateway)

// WithKickDelay overrides the post-mutation refetch delay
func WithKickDelay(d time.Duration) Option {
	return func(g *Gateway) {
		g.kickDelay = d
	}
}

// New creates a gateway.
func New(api API, states *player.Store, hist *history.Cache, devices *device.Store, governor Limiter, poller Kicker, opts ...Option) *Gateway {
	g := &Gateway{
		api:       api,
		states:    states,
		hist:      hist,
		devices:   devices,
		governor:  governor,
		poller:    poller,
		kickDelay: DefaultKickDelay,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// PlayPause toggles playback based on the currently rendered state.
func (g *Gateway) PlayPause(ctx context.Context) error {
	state := g.states.Current()
	if state.Kind == player.StatusPlaying && state.IsActuallyPlaying {
		return g.mutate(ctx, "pause", g.api.Pause)
	}
	return g.mutate(ctx, "play", g.api.Play)
}

// Next skips to the next track.
func (g *Gateway) Next(ctx context.Context) error {
	return g.mutate(ctx, "next", g.api.Next)
}

// Previous skips to the previous track.
func (g *Gateway) Previous(ctx context.Context) error {
	return g.mutate(ctx, "previous", g.api.Previous)
}

// SetShuffle sets shuffle mode.
func (g *Gateway) SetShuffle(ctx context.Context, on bool) error {
	return g.mutate(ctx, "shuffle", func(ctx context.Context) error {
		return g.api.SetShuffle(ctx, on)
	})
}

// SetRepeat sets the repeat mode.
func (g *Gateway) SetRepeat(ctx context.Context, mode string) error {
	switch mode {
	case spotify.RepeatOff, spotify.RepeatContext, spotify.RepeatTrack:
	default:
		return fmt.Errorf("invalid repeat mode %q", mode)
	}
	return g.mutate(ctx, "repeat", func(ctx context.Context) error {
		return g.api.SetRepeat(ctx, mode)
	})
}

// SetVolume sets the playback volume.
func (g *Gateway) SetVolume(ctx context.Context, percent int) error {
	return g.mutate(ctx, "volume", func(ctx context.Context) error {
		return g.api.SetVolume(ctx, percent)
	})
}

// ToggleLike flips the liked status of the current track. The remote is
// read first so the toggle is against the saved truth, not the rendered
// flag, which may lag a poll behind.
func (g *Gateway) ToggleLike(ctx context.Context) error {
	state := g.states.Current()
	if state.Kind != player.StatusPlaying {
		return ErrNoCurrentTrack
	}
	track := state.Track

	saved, err := g.api.ContainsSavedTracks(ctx, []string{track.ID})
	if err != nil {
		return g.classify("like", err)
	}

	liked := !saved[track.ID]
	if liked {
		err = g.api.SaveTrack(ctx, track.ID)
	} else {
		err = g.api.RemoveSavedTrack(ctx, track.ID)
	}
	if err != nil {
		return g.classify("like", err)
	}

	g.hist.AnnotateLiked(track.ID, liked)
	g.states.SetLiked(track.URI, liked)
	log.Info().Str("title", track.Title).Bool("liked", liked).Msg("Toggled like")
	return nil
}

// AddToPlaylist appends the current track to a playlist.
func (g *Gateway) AddToPlaylist(ctx context.Context, playlistID string) error {
	state := g.states.Current()
	if state.Kind != player.StatusPlaying {
		return ErrNoCurrentTrack
	}
	return g.mutate(ctx, "playlist add", func(ctx context.Context) error {
		return g.api.AddToPlaylist(ctx, playlistID, state.Track.URI)
	})
}

// Devices lists playback devices, marking the remembered default.
func (g *Gateway) Devices(ctx context.Context) ([]spotify.Device, *device.Ref, error) {
	list, err := g.api.Devices(ctx)
	if err != nil {
		return nil, nil, g.classify("devices", err)
	}
	return list, g.devices.Default(), nil
}

// TransferTo moves playback to a device and remembers it as the default.
func (g *Gateway) TransferTo(ctx context.Context, ref device.Ref) error {
	err := g.mutate(ctx, "transfer", func(ctx context.Context) error {
		return g.api.TransferTo(ctx, ref.ID)
	})
	if err != nil {
		return err
	}

	if err := g.devices.SetDefault(ref); err != nil {
		log.Warn().Err(err).Msg("Failed to persist default device")
	}
	return nil
}

// mutate runs one write action and schedules the refetch on success.
func (g *Gateway) mutate(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		return g.classify(name, err)
	}

	log.Debug().Str("action", name).Msg("Action applied")
	g.poller.Kick(g.kickDelay)
	return nil
}

// classify translates action failures into their side effects.
func (g *Gateway) classify(name string, err error) error {
	switch {
	case errors.Is(err, spotify.ErrRateLimited):
		g.governor.NoteActionLimited()
		log.Warn().Str("action", name).Msg("Action dropped, rate limited")
	case errors.Is(err, spotify.ErrUnauthorized),
		errors.Is(err, auth.ErrNotAuthorized),
		errors.Is(err, auth.ErrReauthRequired):
		g.states.Set(player.NotPlaying("Please Authorize"))
		log.Warn().Str("action", name).Msg("Action rejected, authorization needed")
	default:
		log.Warn().Str("action", name).Err(err).Msg("Action failed")
	}
	return err
}
