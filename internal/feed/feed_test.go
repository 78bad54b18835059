package feed_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"morgonpodd/internal/config"
	"morgonpodd/internal/feed"
)

var day0 = time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

func episode(n int) feed.Episode {
	date := day0.AddDate(0, 0, n)
	return feed.Episode{
		ID:          feed.EpisodeID("morgonpodd", date),
		Number:      n,
		Title:       fmt.Sprintf("Avsnitt %d", n),
		PublishedAt: date,
		MimeType:    "audio/mpeg",
		DurationMs:  int64(60_000 + n),
		SizeBytes:   1024,
		PublicURL:   fmt.Sprintf("https://podd.example.com/episodes/%d.mp3", n),
	}
}

func TestEpisodeID(t *testing.T) {
	if got := feed.EpisodeID("morgonpodd", time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC)); got != "morgonpodd-20261014" {
		t.Fatalf("unexpected id %q", got)
	}
}

func TestAddKeepsNewestFirstAndBound(t *testing.T) {
	state := feed.NewState(50)
	for n := 1; n <= 60; n++ {
		if !state.Add(episode(n)) {
			t.Fatalf("Add(%d) returned false", n)
		}
		if len(state.Episodes) > 50 {
			t.Fatalf("state exceeded bound after %d adds", n)
		}
	}
	if len(state.Episodes) != 50 {
		t.Fatalf("expected 50 episodes, got %d", len(state.Episodes))
	}
	if state.Episodes[0].Number != 60 || state.Episodes[49].Number != 11 {
		t.Fatalf("expected newest 60..11, got %d..%d", state.Episodes[0].Number, state.Episodes[49].Number)
	}
	for i := 1; i < len(state.Episodes); i++ {
		if state.Episodes[i].PublishedAt.After(state.Episodes[i-1].PublishedAt) {
			t.Fatalf("episodes out of order at %d", i)
		}
	}
	if state.NextNumber() != 61 {
		t.Fatalf("unexpected next number %d", state.NextNumber())
	}
}

func TestAddOutOfOrderEvictsOldest(t *testing.T) {
	state := feed.NewState(2)
	state.Add(episode(5))
	state.Add(episode(7))
	state.Add(episode(6))
	if len(state.Episodes) != 2 || state.Episodes[0].Number != 7 || state.Episodes[1].Number != 6 {
		t.Fatalf("unexpected order %+v", state.Episodes)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	state := feed.NewState(50)
	state.Add(episode(1))
	before := state.Clone()
	dup := episode(1)
	dup.Title = "changed"
	if state.Add(dup) {
		t.Fatal("expected duplicate add to return false")
	}
	if len(state.Episodes) != len(before.Episodes) || state.Episodes[0].Title != "Avsnitt 1" {
		t.Fatalf("duplicate add mutated state: %+v", state.Episodes)
	}
}

func TestSaveLoadRoundTripTrimsToConfiguredBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "feed_state.json")
	state := feed.NewState(10)
	for n := 1; n <= 10; n++ {
		state.Add(episode(n))
	}
	if err := feed.SaveState(path, state); err != nil {
		t.Fatalf("SaveState returned error: %v", err)
	}
	loaded, err := feed.LoadState(path, 4)
	if err != nil {
		t.Fatalf("LoadState returned error: %v", err)
	}
	if len(loaded.Episodes) != 4 || loaded.Episodes[0].Number != 10 {
		t.Fatalf("expected newest 4 retained, got %+v", loaded.Episodes)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestLoadStateMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	state, err := feed.LoadState(filepath.Join(dir, "missing.json"), 0)
	if err != nil || len(state.Episodes) != 0 || state.MaxRetained != feed.DefaultMaxRetained {
		t.Fatalf("unexpected empty state %+v err=%v", state, err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := feed.LoadState(bad, 0); err == nil {
		t.Fatal("expected error for corrupt state")
	}
}

func testChannel() feed.Channel {
	cfg := config.Default()
	cfg.Storage.PublicBaseURL = "https://podd.example.com"
	cfg.Storage.FeedKey = "feed.xml"
	cfg.Podcast.CoverImage = "cover.jpg"
	cfg.Podcast.Email = "podd@example.com"
	return feed.ChannelFromConfig(&cfg)
}

func TestRenderProducesParseableITunesFeed(t *testing.T) {
	state := feed.NewState(50)
	for n := 1; n <= 3; n++ {
		state.Add(episode(n))
	}
	ch := testChannel()
	doc, err := feed.Render(state, ch, day0)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if err := feed.Verify(doc, 3); err != nil {
		t.Fatalf("Verify returned error: %v\n%s", err, doc)
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Title != "Morgonpodd" || parsed.Language != "sv" {
		t.Fatalf("unexpected channel %q %q", parsed.Title, parsed.Language)
	}
	first := parsed.Items[0]
	if first.GUID != episode(3).ID {
		t.Fatalf("expected newest item first, got %q", first.GUID)
	}
	if first.Enclosures[0].Length != "1024" || first.Enclosures[0].Type != "audio/mpeg" {
		t.Fatalf("unexpected enclosure %+v", first.Enclosures[0])
	}
	if first.ITunesExt == nil || first.ITunesExt.Duration != "00:01:00" || first.ITunesExt.Episode != "3" {
		t.Fatalf("unexpected itunes extension %+v", first.ITunesExt)
	}
	if parsed.ITunesExt == nil || parsed.ITunesExt.Image != "https://podd.example.com/cover.jpg" {
		t.Fatalf("unexpected channel image %+v", parsed.ITunesExt)
	}
	if !strings.Contains(string(doc), `<atom:link href="https://podd.example.com/feed.xml" rel="self"`) {
		t.Fatalf("expected self link in feed")
	}
}

func TestRenderIsTotal(t *testing.T) {
	state := feed.NewState(50)
	state.Add(episode(1))
	ch := testChannel()
	first, _ := feed.Render(state, ch, day0)
	again, _ := feed.Render(state.Clone(), ch, day0)
	if !bytes.Equal(first, again) {
		t.Fatal("render of equal state differs")
	}
	empty, err := feed.Render(feed.NewState(50), ch, day0)
	if err != nil {
		t.Fatalf("Render(empty) returned error: %v", err)
	}
	if err := feed.Verify(empty, 0); err != nil {
		t.Fatalf("empty feed invalid: %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	for ms, want := range map[int64]string{0: "00:00:00", 61_499: "00:01:01", 3_723_000: "01:02:03"} {
		if got := feed.FormatDuration(ms); got != want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestSummary(t *testing.T) {
	state := feed.NewState(50)
	state.Add(episode(1))
	state.Add(episode(2))
	s := feed.Summarize(state, testChannel(), day0)
	if s.EpisodeCount != 2 || s.LatestID != episode(2).ID {
		t.Fatalf("unexpected summary %+v", s)
	}
	path := filepath.Join(t.TempDir(), "feed.json")
	if err := feed.WriteSummary(path, s); err != nil {
		t.Fatalf("WriteSummary returned error: %v", err)
	}
}
