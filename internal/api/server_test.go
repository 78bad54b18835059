package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"morgonpodd/internal/api"
	"morgonpodd/internal/config"
	"morgonpodd/internal/feed"
	"morgonpodd/internal/runlog"
	"morgonpodd/internal/testsupport"
)

func seedState(t *testing.T, cfg *config.Config) {
	t.Helper()
	state := feed.NewState(cfg.Podcast.MaxRetained)
	state.Add(feed.Episode{
		ID:          "morgonpodd-20261013",
		Number:      1,
		Title:       "Morgonpodd tisdag 13 oktober 2026",
		PublishedAt: time.Date(2026, 10, 13, 4, 0, 0, 0, time.UTC),
		MimeType:    "audio/mpeg",
		DurationMs:  61000,
		SizeBytes:   1024,
		PublicURL:   "https://podd.example.com/episodes/morgonpodd-20261013.mp3",
	})
	state.Add(feed.Episode{
		ID:          "morgonpodd-20261014",
		Number:      2,
		Title:       "Morgonpodd onsdag 14 oktober 2026",
		PublishedAt: time.Date(2026, 10, 14, 4, 0, 0, 0, time.UTC),
		MimeType:    "audio/mpeg",
		DurationMs:  3723000,
		SizeBytes:   2048,
		PublicURL:   "https://podd.example.com/episodes/morgonpodd-20261014.mp3",
	})
	if err := feed.SaveState(cfg.Paths.FeedState, state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
}

func newTestServer(t *testing.T, cfg *config.Config, ledger *runlog.Store, diag func(context.Context) api.Diagnostics) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.NewServer(api.NewHandler(cfg, ledger, diag, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, wantStatus int, into any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if into == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestListEpisodesNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	seedState(t, cfg)
	srv := newTestServer(t, cfg, nil, nil)

	var resp api.EpisodeListResponse
	getJSON(t, srv.URL+"/api/episodes", http.StatusOK, &resp)
	if len(resp.Episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(resp.Episodes))
	}
	if resp.Episodes[0].ID != "morgonpodd-20261014" {
		t.Fatalf("expected newest first, got %s", resp.Episodes[0].ID)
	}
	if resp.Episodes[0].Duration != "01:02:03" {
		t.Fatalf("unexpected duration %q", resp.Episodes[0].Duration)
	}

	var ep api.Episode
	getJSON(t, srv.URL+"/api/episodes/morgonpodd-20261013", http.StatusOK, &ep)
	if ep.Number != 1 {
		t.Fatalf("unexpected episode %+v", ep)
	}
	getJSON(t, srv.URL+"/api/episodes/missing", http.StatusNotFound, nil)
}

func TestListEpisodesEmptyState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := newTestServer(t, cfg, nil, nil)
	var resp api.EpisodeListResponse
	getJSON(t, srv.URL+"/api/episodes", http.StatusOK, &resp)
	if resp.Episodes == nil || len(resp.Episodes) != 0 {
		t.Fatalf("expected empty list, got %+v", resp.Episodes)
	}
}

func TestFeedAndMediaFromLocalStorage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	srv := newTestServer(t, cfg, nil, nil)
	getJSON(t, srv.URL+"/feed.xml", http.StatusNotFound, nil)

	doc := `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title></channel></rss>`
	if err := os.WriteFile(filepath.Join(cfg.Storage.LocalDir, "feed.xml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write feed: %v", err)
	}
	testsupport.WriteWAV(t, filepath.Join(cfg.Storage.LocalDir, "episodes", "ep.wav"), 16000, 100*time.Millisecond)

	resp, err := http.Get(srv.URL + "/feed.xml")
	if err != nil {
		t.Fatalf("GET feed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/rss+xml") {
		t.Fatalf("unexpected feed response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(srv.URL + "/media/episodes/ep.wav")
	if err != nil {
		t.Fatalf("GET media: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "audio/wav" {
		t.Fatalf("unexpected media response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	getJSON(t, srv.URL+"/media/../feed_state.json", http.StatusNotFound, nil)
}

func TestRunsEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	ledger := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()
	if _, err := ledger.Begin(ctx, "20261014T040000Z", "morgonpodd-20261014"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := ledger.RecordStage(ctx, "20261014T040000Z", "scrape", runlog.OutcomeOK, ""); err != nil {
		t.Fatalf("RecordStage: %v", err)
	}
	if err := ledger.Finish(ctx, "20261014T040000Z", runlog.StatusPartial, 1, "", ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	srv := newTestServer(t, cfg, ledger, nil)

	var list api.RunListResponse
	getJSON(t, srv.URL+"/api/runs?limit=5", http.StatusOK, &list)
	if len(list.Runs) != 1 || list.Runs[0].Status != "partial" {
		t.Fatalf("unexpected runs %+v", list.Runs)
	}

	var run api.Run
	getJSON(t, srv.URL+"/api/runs/20261014T040000Z", http.StatusOK, &run)
	if len(run.Events) != 1 || run.Events[0].Stage != "scrape" {
		t.Fatalf("unexpected events %+v", run.Events)
	}
	getJSON(t, srv.URL+"/api/runs/nope", http.StatusNotFound, nil)
	getJSON(t, srv.URL+"/api/runs?limit=zero", http.StatusBadRequest, nil)
}

func TestHealthReflectsDiagnostics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ready := true
	srv := newTestServer(t, cfg, nil, func(context.Context) api.Diagnostics {
		return api.Diagnostics{Ready: ready, Services: []api.StageHealth{{Name: "storage", Ready: ready}}}
	})

	var diag api.Diagnostics
	getJSON(t, srv.URL+"/health", http.StatusOK, &diag)
	if !diag.Ready {
		t.Fatal("expected ready diagnostics")
	}
	ready = false
	getJSON(t, srv.URL+"/health", http.StatusServiceUnavailable, &diag)
}
