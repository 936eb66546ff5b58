package ratelimit_test

import (
	"sync"
	"testing"
	"time"

	"cadenza/internal/ratelimit"
)

// hookRecorder collects governor callback invocations.
type hookRecorder struct {
	mu      sync.Mutex
	pauses  int
	resumes int
	signals []bool
}

func (r *hookRecorder) hooks() ratelimit.Hooks {
	return ratelimit.Hooks{
		Pause: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.pauses++
		},
		Resume: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.resumes++
		},
		Signal: func(limited bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.signals = append(r.signals, limited)
		},
	}
}

func (r *hookRecorder) snapshot() (int, int, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauses, r.resumes, append([]bool(nil), r.signals...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestPollLimited_PausesAndResumes(t *testing.T) {
	rec := &hookRecorder{}
	gov := ratelimit.NewGovernor(ratelimit.WithPollCooldown(50 * time.Millisecond))
	defer gov.Stop()
	gov.SetHooks(rec.hooks())

	gov.NotePollLimited()

	if !gov.IsLimited() {
		t.Error("Expected limited state after poll 429")
	}
	pauses, _, signals := rec.snapshot()
	if pauses != 1 {
		t.Errorf("Expected 1 pause, got %d", pauses)
	}
	if len(signals) != 1 || !signals[0] {
		t.Errorf("Expected limited signal, got %v", signals)
	}

	waitFor(t, time.Second, func() bool {
		_, resumes, _ := rec.snapshot()
		return resumes == 1
	})

	if gov.IsLimited() {
		t.Error("Expected limited state cleared after cooldown")
	}
	_, _, signals = rec.snapshot()
	if len(signals) != 2 || signals[1] {
		t.Errorf("Expected trailing clear signal, got %v", signals)
	}
}

func TestActionLimited_DoesNotPausePolling(t *testing.T) {
	rec := &hookRecorder{}
	gov := ratelimit.NewGovernor(ratelimit.WithActionCooldown(30 * time.Millisecond))
	defer gov.Stop()
	gov.SetHooks(rec.hooks())

	gov.NoteActionLimited()

	if !gov.IsLimited() {
		t.Error("Expected limited state after action 429")
	}
	pauses, _, _ := rec.snapshot()
	if pauses != 0 {
		t.Errorf("Action 429 must not pause polling, got %d pauses", pauses)
	}

	waitFor(t, time.Second, func() bool {
		return !gov.IsLimited()
	})

	// No poll pause happened, so nothing to resume.
	_, resumes, signals := rec.snapshot()
	if resumes != 0 {
		t.Errorf("Expected 0 resumes, got %d", resumes)
	}
	if len(signals) != 2 || !signals[0] || signals[1] {
		t.Errorf("Expected [true false] signals, got %v", signals)
	}
}

func TestRepeatedPollLimited_ExtendsWithoutDoublePause(t *testing.T) {
	rec := &hookRecorder{}
	gov := ratelimit.NewGovernor(ratelimit.WithPollCooldown(60 * time.Millisecond))
	defer gov.Stop()
	gov.SetHooks(rec.hooks())

	gov.NotePollLimited()
	first := gov.ResumeAt()

	time.Sleep(20 * time.Millisecond)
	gov.NotePollLimited()
	second := gov.ResumeAt()

	if !second.After(first) {
		t.Error("Repeated 429 should extend the cooldown")
	}
	pauses, _, _ := rec.snapshot()
	if pauses != 1 {
		t.Errorf("Pause should fire once per episode, got %d", pauses)
	}

	waitFor(t, time.Second, func() bool {
		_, resumes, _ := rec.snapshot()
		return resumes == 1
	})
	_, resumes, _ := rec.snapshot()
	if resumes != 1 {
		t.Errorf("Expected a single resume, got %d", resumes)
	}
}

func TestActionLimited_DoesNotShortenPollCooldown(t *testing.T) {
	rec := &hookRecorder{}
	gov := ratelimit.NewGovernor(
		ratelimit.WithPollCooldown(80*time.Millisecond),
		ratelimit.WithActionCooldown(10*time.Millisecond),
	)
	defer gov.Stop()
	gov.SetHooks(rec.hooks())

	gov.NotePollLimited()
	pollResume := gov.ResumeAt()

	gov.NoteActionLimited()
	if gov.ResumeAt().Before(pollResume) {
		t.Error("Short action cooldown must not shorten the poll cooldown")
	}

	// Well past the action window but inside the poll window.
	time.Sleep(30 * time.Millisecond)
	if !gov.IsLimited() {
		t.Error("Poll cooldown should still be in effect")
	}
}

func TestStop_SuppressesCallbacks(t *testing.T) {
	rec := &hookRecorder{}
	gov := ratelimit.NewGovernor(ratelimit.WithPollCooldown(20 * time.Millisecond))
	gov.SetHooks(rec.hooks())

	gov.NotePollLimited()
	gov.Stop()

	time.Sleep(60 * time.Millisecond)

	_, resumes, _ := rec.snapshot()
	if resumes != 0 {
		t.Errorf("Expected no resume after Stop, got %d", resumes)
	}

	gov.NotePollLimited()
	pauses, _, _ := rec.snapshot()
	if pauses != 1 {
		t.Errorf("Notes after Stop must be ignored, got %d pauses", pauses)
	}
}
