package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"morgonpodd/internal/audio"
	"morgonpodd/internal/chunk"
	"morgonpodd/internal/config"
	"morgonpodd/internal/feed"
	"morgonpodd/internal/logging"
	"morgonpodd/internal/notifications"
	"morgonpodd/internal/runlog"
	"morgonpodd/internal/scrape"
	"morgonpodd/internal/script"
	"morgonpodd/internal/services"
	"morgonpodd/internal/speech"
	"morgonpodd/internal/stage"
	"morgonpodd/internal/storage"
)

// Scraper fetches source items.
type Scraper interface {
	Scrape(ctx context.Context, sources []config.Source) ([]scrape.SourceItem, []scrape.SourceError)
}

// ScriptGenerator turns source items into a dialogue script.
type ScriptGenerator interface {
	Generate(ctx context.Context, items []scrape.SourceItem, hosts []config.Host) stage.Result[script.Script]
}

// Encoder converts the assembled WAV into the published format.
type Encoder interface {
	Encode(ctx context.Context, src, dst string) error
}

// Prober measures the duration of an encoded file in milliseconds.
type Prober func(ctx context.Context, path string) (int64, error)

// Deps are the collaborators of an Orchestrator. Ledger, Notifier, Decoder,
// Encoder and Prober are optional.
type Deps struct {
	Scraper   Scraper
	Generator ScriptGenerator
	Synth     speech.Synthesizer
	Uploader  storage.Uploader
	Ledger    *runlog.Store
	Notifier  notifications.Service
	Decoder   audio.Decoder
	Encoder   Encoder
	Prober    Prober
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Orchestrator runs the episode pipeline.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
	lock *flock.Flock
	log  *slog.Logger
}

// New validates deps and constructs an orchestrator.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires a config")
	}
	if deps.Scraper == nil || deps.Generator == nil || deps.Synth == nil || deps.Uploader == nil {
		return nil, errors.New("pipeline requires scraper, generator, synthesizer and uploader")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(&config.Config{})
	}
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		lock: flock.New(cfg.LockPath()),
		log:  logging.NewComponentLogger(deps.Logger, "pipeline"),
	}, nil
}

// run carries the state of one invocation between stages.
type run struct {
	id        string
	dir       string
	now       time.Time
	date      time.Time
	episodeID string
	logger    *slog.Logger
	report    *Report

	state    *feed.State
	items    []scrape.SourceItem
	script   script.Script
	chunks   []chunk.Chunk
	segments []speech.Segment
	artifact audio.Artifact

	audioPath  string
	mimeType   string
	durationMs int64
	sizeBytes  int64
	episode    feed.Episode
	next       *feed.State
	feedPath   string
}

func (r *run) issue(issue stage.Issue) {
	r.report.Issues = append(r.report.Issues, issue)
}

// RunID formats the run identifier for a start time.
func RunID(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// Run executes one episode. The returned report is nil only when the lock
// could not be acquired. The error is non-nil whenever the run failed.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if err := o.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "prepare", "create working directories", err)
	}
	locked, err := o.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrLocked, "", "lock", o.cfg.LockPath(), err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrLocked, "", "lock", "another run holds "+o.cfg.LockPath(), nil)
	}
	defer func() {
		if err := o.lock.Unlock(); err != nil {
			o.log.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	now := o.deps.Clock()
	r := &run{
		id:   RunID(now),
		now:  now,
		date: now.In(o.cfg.Location()),
	}
	r.dir = filepath.Join(o.cfg.RunsDir(), r.id)
	r.episodeID = feed.EpisodeID(o.cfg.Podcast.Slug, r.date)
	r.report = &Report{
		RunID:     r.id,
		EpisodeID: r.episodeID,
		Status:    runlog.StatusRunning,
		StartedAt: now.UTC(),
		RunDir:    r.dir,
		Issues:    []stage.Issue{},
	}
	ctx = services.WithRunID(ctx, r.id)
	r.logger = logging.WithContext(ctx, o.log)

	runErr := o.execute(ctx, r)
	o.finish(ctx, r, runErr)
	return r.report, runErr
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "", "prepare", "create run directory", err)
	}
	o.beginLedger(ctx, r)

	state, err := feed.LoadState(o.cfg.Paths.FeedState, o.cfg.Podcast.MaxRetained)
	if err != nil {
		return err
	}
	r.state = state
	if state.Has(r.episodeID) {
		r.issue(stage.Issue{Code: "episode_exists", Message: fmt.Sprintf("episode %s is already published", r.episodeID), Fatal: true})
		return services.Wrap(services.ErrValidation, "", "preflight", fmt.Sprintf("episode %s already in feed state", r.episodeID), nil)
	}

	r.logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("episode_id", r.episodeID),
		logging.String("run_dir", r.dir),
		logging.Int("published_episodes", len(state.Episodes)))

	steps := []struct {
		name string
		fn   func(context.Context, *run) (stage.Kind, error)
	}{
		{stage.Scrape, o.scrapeStage},
		{stage.Summarize, o.summarizeStage},
		{stage.Chunk, o.chunkStage},
		{stage.Render, o.renderStage},
		{stage.Assemble, o.assembleStage},
		{stage.PublishAudio, o.publishAudioStage},
		{stage.PersistFeed, o.persistFeedStage},
		{stage.PublishFeed, o.publishFeedStage},
		{stage.Commit, o.commitStage},
	}
	for _, step := range steps {
		if err := o.runStage(ctx, r, step.name, step.fn); err != nil {
			return err
		}
	}
	return nil
}

// runStage executes one stage, records it in the ledger and report, and
// returns a non-nil error when the stage failed or ctx was cancelled.
func (o *Orchestrator) runStage(ctx context.Context, r *run, name string, fn func(context.Context, *run) (stage.Kind, error)) error {
	if err := ctx.Err(); err != nil {
		r.report.Stages = append(r.report.Stages, StageReport{Name: name, Outcome: "skipped", Error: err.Error()})
		return err
	}
	ctx = services.WithStage(ctx, name)
	logger := logging.WithContext(ctx, o.log)
	o.recordStage(ctx, r, name, runlog.OutcomeStarted, "")
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	start := time.Now()
	before := len(r.report.Issues)
	kind, err := fn(ctx, r)
	if err != nil {
		kind = stage.KindFailed
	}
	sr := StageReport{
		Name:       name,
		Outcome:    kind.String(),
		Issues:     len(r.report.Issues) - before,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		sr.Error = err.Error()
	}
	r.report.Stages = append(r.report.Stages, sr)

	detail := ""
	if err != nil {
		detail = err.Error()
	} else if sr.Issues > 0 {
		detail = fmt.Sprintf("%d issue(s)", sr.Issues)
	}
	o.recordStage(ctx, r, name, kind.String(), detail)

	if err != nil {
		logging.ErrorWithContext(logger, "stage failed", "stage_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.Duration("stage_duration", time.Since(start)),
			logging.String(logging.FieldImpact, "run stops; feed state is left untouched"),
		)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("outcome", kind.String()),
		logging.Int("issues", sr.Issues),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, r *run, runErr error) {
	r.report.FinishedAt = o.deps.Clock().UTC()
	r.report.Status = terminalStatus(runErr, r.report.Issues)
	if runErr != nil {
		r.report.Error = runErr.Error()
		r.report.ErrorKind = services.Kind(runErr)
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			r.report.ErrorKind = "cancelled"
		}
	}

	reportPath := filepath.Join(r.dir, ReportFile)
	if err := WriteReport(reportPath, r.report); err != nil {
		o.log.Warn("failed to write run report", logging.Error(err), logging.String("path", reportPath))
	}

	// The ledger and ntfy outlive a cancelled run context.
	bg := context.WithoutCancel(ctx)
	if o.deps.Ledger != nil {
		if err := o.deps.Ledger.Finish(bg, r.id, r.report.Status, len(r.report.Issues), r.report.Error, reportPath); err != nil {
			o.log.Warn("failed to finish run ledger entry", logging.Error(err))
		}
	}
	o.notify(bg, r)

	attrs := []logging.Attr{
		logging.String("status", string(r.report.Status)),
		logging.Int("issues", len(r.report.Issues)),
		logging.Duration("run_duration", r.report.FinishedAt.Sub(r.report.StartedAt)),
	}
	if runErr != nil {
		attrs = append(attrs, logging.Error(runErr))
		logging.ErrorWithContext(r.logger, "run failed", "run_failed", attrs...)
		return
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "run_complete"))
	r.logger.Info("run complete", logging.Args(attrs...)...)
}

func (o *Orchestrator) notify(ctx context.Context, r *run) {
	var err error
	switch r.report.Status {
	case runlog.StatusSuccess, runlog.StatusPartial:
		payload := notifications.Payload{"issues": len(r.report.Issues)}
		if ep := r.report.Episode; ep != nil {
			payload["title"] = ep.Title
			payload["url"] = ep.PublicURL
			payload["duration"] = feed.FormatDuration(ep.DurationMs)
		}
		err = o.deps.Notifier.Publish(ctx, notifications.EventEpisodePublished, payload)
	default:
		failed := ""
		for _, s := range r.report.Stages {
			if s.Outcome == stage.KindFailed.String() {
				failed = s.Name
			}
		}
		err = o.deps.Notifier.Publish(ctx, notifications.EventRunFailed, notifications.Payload{
			"stage": failed,
			"error": r.report.Error,
			"runID": r.id,
		})
	}
	if err != nil {
		logging.WarnWithContext(r.logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "run outcome was not announced"))
	}
}

func (o *Orchestrator) beginLedger(ctx context.Context, r *run) {
	if o.deps.Ledger == nil {
		return
	}
	if n, err := o.deps.Ledger.ReclaimInterrupted(ctx); err != nil {
		o.log.Warn("failed to reclaim interrupted runs", logging.Error(err))
	} else if n > 0 {
		o.log.Warn("marked interrupted runs as failed", logging.Int64("runs", n))
	}
	if _, err := o.deps.Ledger.Begin(ctx, r.id, r.episodeID); err != nil {
		o.log.Warn("failed to record run start", logging.Error(err))
	}
}

func (o *Orchestrator) recordStage(ctx context.Context, r *run, name, outcome, detail string) {
	if o.deps.Ledger == nil {
		return
	}
	if err := o.deps.Ledger.RecordStage(context.WithoutCancel(ctx), r.id, name, outcome, detail); err != nil {
		o.log.Debug("failed to record stage", logging.String("stage", name), logging.Error(err))
	}
}
