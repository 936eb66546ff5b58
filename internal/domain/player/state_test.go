package player_test

import (
	"testing"

	"cadenza/internal/domain/player"
)

func testTrack(uri string) player.Track {
	return player.Track{
		ID:         "t1",
		Title:      "Song A",
		ArtistName: "Artist",
		URI:        uri,
	}
}

func TestStore_StartsLoading(t *testing.T) {
	store := player.NewStore()
	if got := store.Current().Kind; got != player.StatusLoading {
		t.Errorf("Expected initial kind '%s', got '%s'", player.StatusLoading, got)
	}
}

func TestStore_SetEmits(t *testing.T) {
	store := player.NewStore()

	var emitted []player.State
	store.SetEmit(func(s player.State) {
		emitted = append(emitted, s)
	})

	store.Set(player.Playing(testTrack("spotify:track:t1"), true, false, ""))

	if len(emitted) != 1 {
		t.Fatalf("Expected 1 emit, got %d", len(emitted))
	}
	if emitted[0].Kind != player.StatusPlaying {
		t.Errorf("Expected kind '%s', got '%s'", player.StatusPlaying, emitted[0].Kind)
	}
	if !emitted[0].IsActuallyPlaying {
		t.Error("Expected isActuallyPlaying true")
	}
}

func TestStore_RerenderEmitsUnchanged(t *testing.T) {
	store := player.NewStore()
	store.Set(player.NotPlaying("Nothing Playing"))

	var emitted []player.State
	store.SetEmit(func(s player.State) {
		emitted = append(emitted, s)
	})

	store.Rerender()

	if len(emitted) != 1 {
		t.Fatalf("Expected 1 emit, got %d", len(emitted))
	}
	if emitted[0].Kind != player.StatusNotPlaying || emitted[0].Message != "Nothing Playing" {
		t.Errorf("Rerender changed the state: %+v", emitted[0])
	}
}

func TestStore_SetLiked(t *testing.T) {
	store := player.NewStore()
	store.Set(player.Playing(testTrack("spotify:track:t1"), true, false, ""))

	if !store.SetLiked("spotify:track:t1", true) {
		t.Fatal("SetLiked should apply for the current track")
	}
	if !store.Current().IsLiked {
		t.Error("Liked flag not updated")
	}

	// A stale update for a track that is no longer current is dropped.
	store.Set(player.Playing(testTrack("spotify:track:t2"), true, false, ""))
	if store.SetLiked("spotify:track:t1", true) {
		t.Error("SetLiked should drop stale updates")
	}
	current := store.Current()
	if current.Track.URI != "spotify:track:t2" || current.IsLiked {
		t.Errorf("Stale update must not alter the current state: %+v", current)
	}
}

func TestStore_SetLikedIgnoredWhenNotPlaying(t *testing.T) {
	store := player.NewStore()
	store.Set(player.NotPlaying("Nothing Playing"))

	if store.SetLiked("spotify:track:t1", true) {
		t.Error("SetLiked should be a no-op when nothing is playing")
	}
}

func TestState_ToJSON(t *testing.T) {
	tests := []struct {
		name   string
		state  player.State
		status string
	}{
		{"loading", player.Loading(), player.StatusLoading},
		{"playing", player.Playing(testTrack("u"), true, true, "/tmp/a.jpg"), player.StatusPlaying},
		{"notPlaying", player.NotPlaying("Nothing Playing"), player.StatusNotPlaying},
		{"error", player.Errored("Network Error"), player.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.state.ToJSON()
			if out["status"] != tt.status {
				t.Errorf("Expected status '%s', got '%v'", tt.status, out["status"])
			}
		})
	}

	out := player.Playing(testTrack("u"), true, true, "/tmp/a.jpg").ToJSON()
	if out["artPath"] != "/tmp/a.jpg" {
		t.Errorf("Expected artPath in payload, got %v", out["artPath"])
	}
	track, ok := out["track"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected track object in payload")
	}
	if track["title"] != "Song A" {
		t.Errorf("Expected title 'Song A', got '%v'", track["title"])
	}
}
