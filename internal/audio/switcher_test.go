package audio_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cadenza/internal/audio"
)

// mockSetter records applied sample rates.
type mockSetter struct {
	rates []int
	err   error
}

func (m *mockSetter) SetSampleRate(hz int) error {
	m.rates = append(m.rates, hz)
	return m.err
}

func writeOverrides(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write overrides: %v", err)
	}
	return path
}

func TestResolve_Precedence(t *testing.T) {
	sw := audio.NewSwitcher(&mockSetter{}, 44100)
	path := writeOverrides(t, `{
		"byUri": {"spotify:track:hires": 192000},
		"byAlbum": {"Album X": 96000}
	}`)
	if err := sw.LoadOverrides(path); err != nil {
		t.Fatalf("LoadOverrides failed: %v", err)
	}

	tests := []struct {
		name  string
		track audio.TrackIdentity
		want  int
	}{
		{"uri rule wins", audio.TrackIdentity{URI: "spotify:track:hires", Album: "Album X"}, 192000},
		{"album rule", audio.TrackIdentity{URI: "spotify:track:other", Album: "Album X"}, 96000},
		{"default", audio.TrackIdentity{URI: "spotify:track:other", Album: "Album Y"}, 44100},
		{"empty identity", audio.TrackIdentity{}, 44100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sw.Resolve(tt.track); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestApply_SkipsRepeatedRate(t *testing.T) {
	setter := &mockSetter{}
	sw := audio.NewSwitcher(setter, 44100)

	sw.Apply(audio.TrackIdentity{URI: "spotify:track:a"})
	sw.Apply(audio.TrackIdentity{URI: "spotify:track:b"})

	if len(setter.rates) != 1 {
		t.Fatalf("Expected 1 device call for an unchanged rate, got %d", len(setter.rates))
	}
	if setter.rates[0] != 44100 {
		t.Errorf("Expected 44100, got %d", setter.rates[0])
	}
}

func TestApply_SwitchesOnRateChange(t *testing.T) {
	setter := &mockSetter{}
	sw := audio.NewSwitcher(setter, 44100)
	path := writeOverrides(t, `{"byAlbum": {"Hi-Res Album": 192000}}`)
	if err := sw.LoadOverrides(path); err != nil {
		t.Fatalf("LoadOverrides failed: %v", err)
	}

	sw.Apply(audio.TrackIdentity{URI: "spotify:track:a", Album: "Normal"})
	sw.Apply(audio.TrackIdentity{URI: "spotify:track:b", Album: "Hi-Res Album"})
	sw.Apply(audio.TrackIdentity{URI: "spotify:track:c", Album: "Normal"})

	want := []int{44100, 192000, 44100}
	if len(setter.rates) != len(want) {
		t.Fatalf("Expected %d device calls, got %d", len(want), len(setter.rates))
	}
	for i, rate := range want {
		if setter.rates[i] != rate {
			t.Errorf("Call %d: expected %d, got %d", i, rate, setter.rates[i])
		}
	}
}

func TestApply_SetterFailureIsSwallowed(t *testing.T) {
	setter := &mockSetter{err: errors.New("device busy")}
	sw := audio.NewSwitcher(setter, 44100)

	// Must not panic or block; the failure is only logged.
	sw.Apply(audio.TrackIdentity{URI: "spotify:track:a"})

	if len(setter.rates) != 1 {
		t.Errorf("Expected the setter to be attempted once, got %d", len(setter.rates))
	}
}

func TestLoadOverrides_MissingFileIsFine(t *testing.T) {
	sw := audio.NewSwitcher(&mockSetter{}, 48000)
	if err := sw.LoadOverrides(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("Missing file should not error: %v", err)
	}
	if got := sw.Resolve(audio.TrackIdentity{}); got != 48000 {
		t.Errorf("Expected default 48000, got %d", got)
	}
}

func TestLoadOverrides_MalformedFile(t *testing.T) {
	sw := audio.NewSwitcher(&mockSetter{}, 44100)
	path := writeOverrides(t, "{broken")
	if err := sw.LoadOverrides(path); err == nil {
		t.Error("Expected an error for malformed overrides")
	}
}

func TestFormatSampleRate(t *testing.T) {
	tests := []struct {
		rate int
		want string
	}{
		{44100, "44.1kHz"},
		{96000, "96kHz"},
		{192000, "192kHz"},
		{800, "800Hz"},
	}

	for _, tt := range tests {
		if got := audio.FormatSampleRate(tt.rate); got != tt.want {
			t.Errorf("FormatSampleRate(%d): expected %s, got %s", tt.rate, tt.want, got)
		}
	}
}
