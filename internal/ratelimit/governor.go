// Package ratelimit tracks remote API cooldowns.
//
// Two pressure sources feed the governor: the polling loop (a 429 there
// pauses polling outright for a long cooldown) and user actions (a 429
// there only raises a short transient signal). Both clear automatically.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Default cooldown windows.
const (
	DefaultPollCooldown   = 60 * time.Second
	DefaultActionCooldown = 3 * time.Second
)

// Hooks are the governor's outbound callbacks. Pause and Resume control the
// polling loop; Signal reports the limited flag to the UI.
type Hooks struct {
	Pause  func()
	Resume func()
	Signal func(limited bool)
}

// Governor owns the rate-limited state and its expiry timer.
type Governor struct {
	pollCooldown   time.Duration
	actionCooldown time.Duration

	mu         sync.Mutex
	hooks      Hooks
	resumeAt   time.Time
	pollPaused bool
	timer      *time.Timer
	stopped    bool
}

// Option is a functional option for configuring the governor
type Option func(*Governor)

// WithPollCooldown overrides the poll-path cooldown window
func WithPollCooldown(d time.Duration) Option {
	return func(g *Governor) {
		g.pollCooldown = d
	}
}

// WithActionCooldown overrides the action-path cooldown window
func WithActionCooldown(d time.Duration) Option {
	return func(g *Governor) {
		g.actionCooldown = d
	}
}

// NewGovernor creates a governor with default cooldowns.
func NewGovernor(opts ...Option) *Governor {
	g := &Governor{
		pollCooldown:   DefaultPollCooldown,
		actionCooldown: DefaultActionCooldown,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// SetHooks registers the outbound callbacks. Must be called before the
// first Note call.
func (g *Governor) SetHooks(h Hooks) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = h
}

// NotePollLimited records a 429 on the polling path. Polling is paused for
// the poll cooldown; repeated notes extend the window.
func (g *Governor) NotePollLimited() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}

	pause := g.hooks.Pause
	signal := g.hooks.Signal
	needPause := !g.pollPaused
	g.pollPaused = true
	g.extendLocked(g.pollCooldown)
	g.mu.Unlock()

	log.Warn().Dur("cooldown", g.pollCooldown).Msg("Rate limited while polling, backing off")

	if needPause && pause != nil {
		pause()
	}
	if signal != nil {
		signal(true)
	}
}

// NoteActionLimited records a 429 on a user action. Polling keeps running;
// only the limited signal is raised, for the short action cooldown.
func (g *Governor) NoteActionLimited() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}

	signal := g.hooks.Signal
	g.extendLocked(g.actionCooldown)
	g.mu.Unlock()

	log.Warn().Dur("cooldown", g.actionCooldown).Msg("Rate limited on user action")

	if signal != nil {
		signal(true)
	}
}

// extendLocked pushes resumeAt out by d if that lands later than the
// current expiry, and re-arms the timer. Must hold mu.
func (g *Governor) extendLocked(d time.Duration) {
	until := time.Now().Add(d)
	if until.Before(g.resumeAt) {
		return
	}
	g.resumeAt = until

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(d, g.expire)
}

// expire clears the limited state once the cooldown elapses.
func (g *Governor) expire() {
	g.mu.Lock()
	if g.stopped || time.Now().Before(g.resumeAt) {
		// A later Note re-armed the timer; this firing is stale.
		g.mu.Unlock()
		return
	}

	resume := g.hooks.Resume
	signal := g.hooks.Signal
	wasPaused := g.pollPaused
	g.pollPaused = false
	g.resumeAt = time.Time{}
	g.mu.Unlock()

	log.Info().Msg("Rate limit cooldown elapsed")

	if wasPaused && resume != nil {
		resume()
	}
	if signal != nil {
		signal(false)
	}
}

// IsLimited reports whether a cooldown is currently in effect.
func (g *Governor) IsLimited() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.resumeAt.IsZero() && time.Now().Before(g.resumeAt)
}

// ResumeAt returns the current cooldown expiry, zero when not limited.
func (g *Governor) ResumeAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resumeAt
}

// Stop cancels the timer and prevents any further callbacks.
func (g *Governor) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopped = true
	if g.timer != nil {
		g.timer.Stop()
	}
}
