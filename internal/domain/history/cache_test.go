package history_test

import (
	"errors"
	"fmt"
	"testing"

	"cadenza/internal/domain/history"
	"cadenza/internal/domain/player"
)

// memBlob implements history.Blob in memory.
type memBlob struct {
	data    []byte
	loadErr error
}

func (b *memBlob) Save(data []byte) error {
	b.data = append([]byte(nil), data...)
	return nil
}

func (b *memBlob) Load() ([]byte, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.data, nil
}

func track(uri string) player.Track {
	return player.Track{
		ID:         uri,
		Title:      "Title " + uri,
		ArtistName: "Artist",
		URI:        uri,
	}
}

func uris(tracks []player.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.URI
	}
	return out
}

func TestRecordPlaying_MoveToFront(t *testing.T) {
	c := history.NewCache(10)

	c.RecordPlaying(track("a"))
	c.RecordPlaying(track("b"))
	c.RecordPlaying(track("c"))
	c.RecordPlaying(track("a")) // already present, moves to front

	got := uris(c.Tracks())
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected '%s', got '%s'", i, want[i], got[i])
		}
	}
}

func TestRecordPlaying_DedupByURI(t *testing.T) {
	c := history.NewCache(10)

	// Repeated insertions of the same URIs leave each URI exactly once.
	sequence := []string{"a", "b", "a", "c", "b", "a", "a"}
	for _, u := range sequence {
		c.RecordPlaying(track(u))
	}

	seen := make(map[string]int)
	for _, u := range uris(c.Tracks()) {
		seen[u]++
	}
	for u, n := range seen {
		if n != 1 {
			t.Errorf("URI '%s' appears %d times, expected exactly once", u, n)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", c.Len())
	}
}

func TestCapacityBound(t *testing.T) {
	c := history.NewCache(5)

	for i := 0; i < 50; i++ {
		c.RecordPlaying(track(fmt.Sprintf("t%d", i)))
	}
	if c.Len() != 5 {
		t.Errorf("Expected capacity bound 5, got %d", c.Len())
	}

	var remote []player.Track
	for i := 0; i < 30; i++ {
		remote = append(remote, track(fmt.Sprintf("r%d", i)))
	}
	c.MergeRemote(remote)
	if c.Len() != 5 {
		t.Errorf("Expected capacity bound 5 after merge, got %d", c.Len())
	}
}

func TestMergeRemote_LocalWins(t *testing.T) {
	c := history.NewCache(10)

	local := track("a")
	local.IsLiked = true // in-session like toggle
	c.RecordPlaying(local)

	remoteA := track("a") // remote copy is staler: not liked
	c.MergeRemote([]player.Track{remoteA, track("b")})

	got := c.Tracks()
	if got[0].URI != "a" || !got[0].IsLiked {
		t.Errorf("Local liked flag was overwritten by remote: %+v", got[0])
	}
	if got[1].URI != "b" {
		t.Errorf("Expected remote-only entry 'b' appended, got '%s'", got[1].URI)
	}
}

func TestMergeRemote_Deterministic(t *testing.T) {
	build := func() *history.Cache {
		c := history.NewCache(10)
		c.RecordPlaying(track("x"))
		c.RecordPlaying(track("y"))
		c.MergeRemote([]player.Track{track("y"), track("p"), track("q"), track("p")})
		return c
	}

	first := uris(build().Tracks())
	second := uris(build().Tracks())

	want := []string{"y", "x", "p", "q"}
	if len(first) != len(want) {
		t.Fatalf("Expected %v, got %v", want, first)
	}
	for i := range want {
		if first[i] != want[i] {
			t.Errorf("Position %d: expected '%s', got '%s'", i, want[i], first[i])
		}
		if first[i] != second[i] {
			t.Errorf("Merge is not deterministic at position %d: '%s' vs '%s'", i, first[i], second[i])
		}
	}
}

func TestAnnotateLiked(t *testing.T) {
	c := history.NewCache(10)
	c.RecordPlaying(track("a"))
	c.RecordPlaying(track("b"))

	c.AnnotateLiked("a", true)

	got := c.Tracks()
	if got[0].URI != "b" || got[1].URI != "a" {
		t.Fatal("AnnotateLiked must not reorder history")
	}
	if !got[1].IsLiked {
		t.Error("Expected 'a' annotated as liked")
	}

	// Unknown id is a no-op.
	c.AnnotateLiked("missing", true)
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
}

func TestPersistRestore(t *testing.T) {
	blob := &memBlob{}

	c := history.NewCache(10)
	c.RecordPlaying(track("a"))
	c.RecordPlaying(track("b"))
	if err := c.Persist(blob); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	restored := history.NewCache(10)
	restored.Restore(blob)

	got := uris(restored.Tracks())
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("Restore mismatch: %v", got)
	}
}

func TestRestore_CorruptDataStartsEmpty(t *testing.T) {
	blob := &memBlob{data: []byte("{not json")}

	c := history.NewCache(10)
	c.Restore(blob)

	if c.Len() != 0 {
		t.Errorf("Corrupt blob should leave history empty, got %d entries", c.Len())
	}
}

func TestRestore_LoadErrorStartsEmpty(t *testing.T) {
	blob := &memBlob{loadErr: errors.New("no such blob")}

	c := history.NewCache(10)
	c.Restore(blob)

	if c.Len() != 0 {
		t.Errorf("Load error should leave history empty, got %d entries", c.Len())
	}
}
