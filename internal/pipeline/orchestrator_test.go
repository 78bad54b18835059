package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"morgonpodd/internal/config"
	"morgonpodd/internal/feed"
	"morgonpodd/internal/pipeline"
	"morgonpodd/internal/runlog"
	"morgonpodd/internal/scrape"
	"morgonpodd/internal/script"
	"morgonpodd/internal/services"
	"morgonpodd/internal/stage"
	"morgonpodd/internal/storage"
	"morgonpodd/internal/testsupport"
)

var runTime = time.Date(2026, 10, 14, 4, 0, 0, 0, time.UTC)

type fakeScraper struct {
	items    []scrape.SourceItem
	failures []scrape.SourceError
	hook     func()
}

func (f *fakeScraper) Scrape(context.Context, []config.Source) ([]scrape.SourceItem, []scrape.SourceError) {
	if f.hook != nil {
		f.hook()
	}
	return f.items, f.failures
}

type fixedGenerator struct {
	lines []script.Line
}

func (g fixedGenerator) Generate(_ context.Context, items []scrape.SourceItem, _ []config.Host) stage.Result[script.Script] {
	return stage.OK(script.Script{
		Title:  "Morgonpodd",
		Date:   runTime,
		Origin: "test",
		Items:  len(items),
		Lines:  g.lines,
	})
}

type fakeSynth struct {
	mu        sync.Mutex
	rate      int
	failVoice string
	calls     int
}

func (s *fakeSynth) Synthesize(_ context.Context, voiceID, text string) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if voiceID == s.failVoice {
		return nil, errors.New("voice rejected")
	}
	d := time.Duration(len([]rune(text))) * 10 * time.Millisecond
	return testsupport.PCM(s.rate, d), nil
}

type failingUploader struct {
	storage.Uploader
	failKey string
}

func (u failingUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	if key == u.failKey {
		return "", services.Wrap(services.ErrPublish, stage.PublishFeed, "upload", key, errors.New("bucket unavailable"))
	}
	return u.Uploader.Upload(ctx, localPath, key)
}

type harness struct {
	cfg      *config.Config
	scraper  *fakeScraper
	synth    *fakeSynth
	uploader storage.Uploader
	ledger   *runlog.Store
	gen      pipeline.ScriptGenerator
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.TTS.SampleRate = 16000
	cfg.Sources = []config.Source{{Name: "Nyheter", URL: "https://example.com", Format: "html"}}
	writeCatalog(t, cfg)
	return &harness{
		cfg: cfg,
		scraper: &fakeScraper{items: []scrape.SourceItem{
			{Title: "Riksdagen röstar om budgeten", SourceName: "Nyheter", Priority: 1},
			{Title: "Regn väntas i Göteborg", SourceName: "Väder", Priority: 2},
		}},
		synth:    &fakeSynth{rate: cfg.TTS.SampleRate},
		uploader: storage.NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL),
		now:      runTime,
		gen: fixedGenerator{lines: []script.Line{
			{Speaker: "Anna", Text: "God morgon och välkommen!"},
			{Speaker: "Erik", Text: "Riksdagen röstar om budgeten idag."},
			{Speaker: "Anna", Text: "Tack för att ni lyssnade."},
		}},
	}
}

func writeCatalog(t *testing.T, cfg *config.Config) {
	t.Helper()
	dir := filepath.Dir(cfg.Paths.MusicCatalog)
	testsupport.WriteWAV(t, filepath.Join(dir, "intro.wav"), cfg.TTS.SampleRate, 500*time.Millisecond)
	testsupport.WriteWAV(t, filepath.Join(dir, "outro.wav"), cfg.TTS.SampleRate, 400*time.Millisecond)
	catalog := `assets:
  - id: intro
    title: Morgonljus
    file: intro.wav
    categories: [intro]
  - id: outro
    title: Kvällsljus
    file: outro.wav
    categories: [outro]
`
	if err := os.WriteFile(cfg.Paths.MusicCatalog, []byte(catalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
}

func (h *harness) orchestrator(t *testing.T) *pipeline.Orchestrator {
	t.Helper()
	o, err := pipeline.New(h.cfg, pipeline.Deps{
		Scraper:   h.scraper,
		Generator: h.gen,
		Synth:     h.synth,
		Uploader:  h.uploader,
		Ledger:    h.ledger,
		Clock:     func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return o
}

func loadState(t *testing.T, cfg *config.Config) *feed.State {
	t.Helper()
	state, err := feed.LoadState(cfg.Paths.FeedState, cfg.Podcast.MaxRetained)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	return state
}

func TestRunPublishesEpisode(t *testing.T) {
	h := newHarness(t)
	report, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v (issues %v)", err, report.Issues)
	}
	if report.Status != runlog.StatusSuccess {
		t.Fatalf("status = %s, want success (issues %v)", report.Status, report.Issues)
	}
	if report.EpisodeID != "morgonpodd-20261014" {
		t.Fatalf("unexpected episode id %q", report.EpisodeID)
	}
	if len(report.Stages) != len(stage.Order) {
		t.Fatalf("expected %d stage reports, got %d", len(stage.Order), len(report.Stages))
	}

	state := loadState(t, h.cfg)
	if len(state.Episodes) != 1 {
		t.Fatalf("expected one episode in state, got %d", len(state.Episodes))
	}
	ep := state.Episodes[0]
	if ep.Number != 1 || ep.MimeType != "audio/wav" || ep.DurationMs <= 0 {
		t.Fatalf("unexpected episode %+v", ep)
	}
	if ep.Title != "Morgonpodd onsdag 14 oktober 2026" {
		t.Fatalf("unexpected title %q", ep.Title)
	}
	if ep.PublicURL != "https://podd.example.com/episodes/morgonpodd-20261014.wav" {
		t.Fatalf("unexpected public url %q", ep.PublicURL)
	}

	for _, name := range []string{"feed.xml", "feed.json", "episodes/morgonpodd-20261014.wav"} {
		if _, err := os.Stat(filepath.Join(h.cfg.Storage.LocalDir, name)); err != nil {
			t.Fatalf("expected %s published: %v", name, err)
		}
	}
	doc, err := os.ReadFile(filepath.Join(h.cfg.Storage.LocalDir, "feed.xml"))
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	if err := feed.Verify(doc, 1); err != nil {
		t.Fatalf("published feed invalid: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.WorkDir, pipeline.CurrentFeedFile)); err != nil {
		t.Fatalf("expected feed snapshot in work dir: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(report.RunDir, pipeline.ReportFile))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var persisted pipeline.Report
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if persisted.Status != runlog.StatusSuccess || persisted.Episode == nil {
		t.Fatalf("unexpected persisted report %+v", persisted)
	}
}

func TestRunTwiceSameDayIsRejected(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, err := os.ReadFile(h.cfg.Paths.FeedState)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	calls := h.synth.calls

	report, err := o.Run(context.Background())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if report.Status != runlog.StatusFailed || !report.HasIssue("episode_exists") {
		t.Fatalf("unexpected report %+v", report)
	}
	if h.synth.calls != calls {
		t.Fatalf("duplicate run reached the speech API (%d calls)", h.synth.calls-calls)
	}
	after, err := os.ReadFile(h.cfg.Paths.FeedState)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("feed state changed on duplicate run")
	}
}

func TestRunFallbackScriptIsPartial(t *testing.T) {
	h := newHarness(t)
	h.gen = script.NewGenerator(h.cfg, nil, nil, script.WithClock(func() time.Time { return runTime }))
	h.scraper.failures = []scrape.SourceError{{Source: "Väder", URL: "https://example.com/vader", Error: "timeout"}}

	report, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Status != runlog.StatusPartial {
		t.Fatalf("status = %s, want partial", report.Status)
	}
	for _, code := range []string{"llm_unconfigured", "source_failed"} {
		if !report.HasIssue(code) {
			t.Fatalf("expected issue %s, got %v", code, report.Issues)
		}
	}
	if got, ok := report.Stage(stage.Summarize); !ok || got.Outcome != "recovered" {
		t.Fatalf("expected recovered summarize stage, got %+v", got)
	}
	if len(loadState(t, h.cfg).Episodes) != 1 {
		t.Fatal("partial run should still publish")
	}
}

func TestRunSilencesFailedChunks(t *testing.T) {
	h := newHarness(t)
	h.synth.failVoice = "voice-erik"

	report, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Status != runlog.StatusPartial || !report.HasIssue("chunk_silenced") {
		t.Fatalf("expected partial run with silenced chunk, got %s %v", report.Status, report.Issues)
	}
	if len(loadState(t, h.cfg).Episodes) != 1 {
		t.Fatal("expected episode published despite silenced chunk")
	}
}

func TestRunAbortPolicyFailsRun(t *testing.T) {
	h := newHarness(t)
	h.cfg.TTS.FailurePolicy = config.FailurePolicyAbort
	h.synth.failVoice = "voice-erik"

	report, err := h.orchestrator(t).Run(context.Background())
	if !errors.Is(err, services.ErrSynthesis) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if report.Status != runlog.StatusFailed || !report.HasIssue("chunk_failed") {
		t.Fatalf("unexpected report %s %v", report.Status, report.Issues)
	}
	if _, err := os.Stat(h.cfg.Paths.FeedState); !os.IsNotExist(err) {
		t.Fatalf("feed state must not exist after failed run, stat err=%v", err)
	}
}

func TestRunFeedUploadFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.uploader = failingUploader{Uploader: h.uploader, failKey: h.cfg.Storage.FeedKey}

	report, err := h.orchestrator(t).Run(context.Background())
	if !errors.Is(err, services.ErrPublish) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if got, ok := report.Stage(stage.PublishFeed); !ok || got.Outcome != "failed" {
		t.Fatalf("expected failed publish_feed stage, got %+v", got)
	}
	if _, ok := report.Stage(stage.Commit); ok {
		t.Fatal("commit stage must not run after a failed upload")
	}
	if _, err := os.Stat(h.cfg.Paths.FeedState); !os.IsNotExist(err) {
		t.Fatalf("feed state must not be written, stat err=%v", err)
	}
}

func TestRunSummaryUploadFailureIsRecovered(t *testing.T) {
	h := newHarness(t)
	h.uploader = failingUploader{Uploader: h.uploader, failKey: pipeline.SummaryKey(h.cfg.Storage.FeedKey)}

	report, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Status != runlog.StatusPartial || !report.HasIssue("summary_upload_failed") {
		t.Fatalf("unexpected report %s %v", report.Status, report.Issues)
	}
}

func TestRunJSONFeedKeyKeepsFeedDocument(t *testing.T) {
	h := newHarness(t)
	h.cfg.Storage.FeedKey = "feed.json"

	report, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v (issues %v)", err, report.Issues)
	}
	doc, err := os.ReadFile(filepath.Join(h.cfg.Storage.LocalDir, "feed.json"))
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	if err := feed.Verify(doc, 1); err != nil {
		t.Fatalf("feed document was overwritten: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Storage.LocalDir, "feed.summary.json")); err != nil {
		t.Fatalf("expected summary beside the feed: %v", err)
	}
}

func TestRunFailsWhenLockHeld(t *testing.T) {
	h := newHarness(t)
	if err := h.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(h.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("take lock: ok=%v err=%v", ok, err)
	}
	defer lock.Unlock()

	report, err := h.orchestrator(t).Run(context.Background())
	if !errors.Is(err, services.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if report != nil {
		t.Fatalf("expected nil report, got %+v", report)
	}
}

func TestRunCancelledBeforeRender(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.scraper.hook = cancel

	report, err := h.orchestrator(t).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report.Status != runlog.StatusFailed || report.ErrorKind != "cancelled" {
		t.Fatalf("unexpected report %s/%s", report.Status, report.ErrorKind)
	}
	if h.synth.calls != 0 {
		t.Fatalf("expected no synthesis after cancel, got %d calls", h.synth.calls)
	}
	if _, err := os.Stat(filepath.Join(report.RunDir, pipeline.ReportFile)); err != nil {
		t.Fatalf("expected report written for cancelled run: %v", err)
	}
}

func TestRunRecordsLedger(t *testing.T) {
	h := newHarness(t)
	if err := h.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	h.ledger = testsupport.MustOpenLedger(t, h.cfg)

	report, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	ctx := context.Background()
	entry, err := h.ledger.Get(ctx, report.RunID)
	if err != nil || entry == nil {
		t.Fatalf("ledger Get: %v (%v)", entry, err)
	}
	if entry.Status != runlog.StatusSuccess || entry.FinishedAt == nil {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
	events, err := h.ledger.Events(ctx, report.RunID)
	if err != nil {
		t.Fatalf("ledger Events: %v", err)
	}
	// Each stage records a start and an outcome.
	if len(events) != 2*len(stage.Order) {
		t.Fatalf("expected %d events, got %d", 2*len(stage.Order), len(events))
	}
}

func TestRunRetainsBoundedHistory(t *testing.T) {
	h := newHarness(t)
	h.cfg.Podcast.MaxRetained = 2
	o := h.orchestrator(t)
	for day := 0; day < 3; day++ {
		h.now = runTime.AddDate(0, 0, day)
		if _, err := o.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", day, err)
		}
	}
	state := loadState(t, h.cfg)
	if len(state.Episodes) != 2 {
		t.Fatalf("expected 2 retained episodes, got %d", len(state.Episodes))
	}
	if state.Episodes[0].ID != "morgonpodd-20261016" || state.Episodes[0].Number != 3 {
		t.Fatalf("expected newest first, got %+v", state.Episodes[0])
	}
}

func TestRebuildFeedFromState(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := os.Remove(filepath.Join(h.cfg.Storage.LocalDir, "feed.xml")); err != nil {
		t.Fatalf("remove feed: %v", err)
	}

	result, err := o.RebuildFeed(context.Background(), true)
	if err != nil {
		t.Fatalf("RebuildFeed: %v", err)
	}
	if result.Episodes != 1 || !strings.HasSuffix(result.URL, "/feed.xml") {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Storage.LocalDir, "feed.xml")); err != nil {
		t.Fatalf("expected feed re-uploaded: %v", err)
	}
}

func TestEpisodeDescription(t *testing.T) {
	if got := pipeline.EpisodeDescription(nil, 5); got != "Dagens avsnitt." {
		t.Fatalf("unexpected empty description %q", got)
	}
	items := []scrape.SourceItem{{Title: "Ett"}, {Title: " "}, {Title: "Två"}, {Title: "Tre"}}
	if got := pipeline.EpisodeDescription(items, 2); got != "I dagens avsnitt: Ett; Två." {
		t.Fatalf("unexpected description %q", got)
	}
}

func TestSummaryKey(t *testing.T) {
	for in, want := range map[string]string{
		"feed.xml":     "feed.json",
		"podd/rss.xml": "podd/rss.json",
		"feed":         "feed.json",
		"feed.json":    "feed.summary.json",
		"podd/a.json":  "podd/a.summary.json",
	} {
		if got := pipeline.SummaryKey(in); got != want {
			t.Fatalf("SummaryKey(%q) = %q, want %q", in, got, want)
		}
	}
}
