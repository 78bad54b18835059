package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"morgonpodd/internal/audio"
	"morgonpodd/internal/chunk"
	"morgonpodd/internal/config"
	"morgonpodd/internal/feed"
	"morgonpodd/internal/fileutil"
	"morgonpodd/internal/logging"
	"morgonpodd/internal/music"
	"morgonpodd/internal/scrape"
	"morgonpodd/internal/script"
	"morgonpodd/internal/services"
	"morgonpodd/internal/speech"
	"morgonpodd/internal/stage"
	"morgonpodd/internal/storage"
)

type scrapedArtifact struct {
	Items  []scrape.SourceItem  `json:"items"`
	Errors []scrape.SourceError `json:"errors,omitempty"`
}

func (o *Orchestrator) scrapeStage(ctx context.Context, r *run) (stage.Kind, error) {
	items, failures := o.deps.Scraper.Scrape(ctx, o.cfg.Sources)
	if err := ctx.Err(); err != nil {
		return stage.KindFailed, err
	}
	r.items = items
	if err := fileutil.WriteJSON(filepath.Join(r.dir, ScrapedFile), scrapedArtifact{Items: items, Errors: failures}); err != nil {
		return stage.KindFailed, services.Wrap(services.ErrSource, stage.Scrape, "persist", ScrapedFile, err)
	}
	for _, f := range failures {
		r.issue(stage.Issue{Stage: stage.Scrape, Code: "source_failed", Message: fmt.Sprintf("%s: %s", f.Source, f.Error)})
	}
	if len(failures) > 0 {
		return stage.KindRecovered, nil
	}
	return stage.KindOK, nil
}

func (o *Orchestrator) summarizeStage(ctx context.Context, r *run) (stage.Kind, error) {
	res := o.deps.Generator.Generate(ctx, r.items, o.cfg.Hosts)
	for _, issue := range res.Issues {
		r.issue(issue)
	}
	if !res.Usable() {
		err := res.Err
		if err == nil {
			err = services.Wrap(services.ErrGeneration, stage.Summarize, "generate", "no script produced", nil)
		}
		return stage.KindFailed, err
	}
	r.script = res.Value
	if err := script.Save(r.dir, r.script); err != nil {
		return stage.KindFailed, services.Wrap(services.ErrGeneration, stage.Summarize, "persist", "write script artifacts", err)
	}
	return res.Kind, nil
}

func (o *Orchestrator) chunkStage(_ context.Context, r *run) (stage.Kind, error) {
	chunks, err := chunk.Plan(r.script, o.cfg.TTS.MaxCharsPerChunk)
	if err != nil {
		return stage.KindFailed, services.Wrap(services.ErrValidation, stage.Chunk, "plan", "script cannot be chunked", err)
	}
	r.chunks = chunks
	if err := chunk.WriteManifest(filepath.Join(r.dir, chunk.ManifestFile), o.cfg.TTS.MaxCharsPerChunk, chunks); err != nil {
		return stage.KindFailed, services.Wrap(services.ErrValidation, stage.Chunk, "persist", chunk.ManifestFile, err)
	}
	return stage.KindOK, nil
}

func (o *Orchestrator) renderStage(ctx context.Context, r *run) (stage.Kind, error) {
	dir := filepath.Join(r.dir, SegmentsDir)
	renderer := speech.NewRenderer(o.deps.Synth, speech.Options{
		Dir:         dir,
		SampleRate:  o.cfg.TTS.SampleRate,
		Concurrency: o.cfg.TTS.Concurrency,
		MaxAttempts: o.cfg.TTS.MaxAttempts,
		RetryBase:   time.Duration(o.cfg.TTS.RetryBaseMillis) * time.Millisecond,
		RetryMax:    time.Duration(o.cfg.TTS.RetryMaxMillis) * time.Millisecond,
		Logger:      o.deps.Logger,
	})
	segments, err := renderer.Render(ctx, r.chunks, o.cfg.VoiceMap())
	r.segments = segments
	if segments != nil {
		_ = speech.WriteIndex(filepath.Join(dir, speech.IndexFile), segments)
	}
	if err != nil {
		return stage.KindFailed, err
	}

	rendered := 0
	var failed []int
	for i, seg := range segments {
		switch seg.Status {
		case speech.StatusRendered:
			rendered++
		case speech.StatusFailed:
			failed = append(failed, i)
		}
	}
	if rendered == 0 {
		r.issue(stage.Issue{Stage: stage.Render, Code: "no_audio", Message: "no chunk rendered", Fatal: true})
		return stage.KindFailed, services.Wrap(services.ErrSynthesis, stage.Render, "render", fmt.Sprintf("all %d chunks failed", len(segments)), nil)
	}
	if len(failed) == 0 {
		return stage.KindOK, nil
	}

	if o.cfg.TTS.FailurePolicy == config.FailurePolicyAbort {
		for _, i := range failed {
			r.issue(stage.Issue{Stage: stage.Render, Code: "chunk_failed", Message: fmt.Sprintf("chunk %d: %s", segments[i].ChunkIndex, segments[i].Err), Fatal: true})
		}
		return stage.KindFailed, services.Wrap(services.ErrSynthesis, stage.Render, "policy",
			fmt.Sprintf("%d chunk(s) failed and tts.failure_policy is abort", len(failed)), nil)
	}

	for _, i := range failed {
		if err := speech.SubstituteSilence(dir, &r.segments[i], r.chunks[i], o.cfg.Podcast.WordsPerMinute, o.cfg.TTS.SampleRate); err != nil {
			return stage.KindFailed, services.Wrap(services.ErrSynthesis, stage.Render, "silence", "write silence placeholder", err)
		}
		r.issue(stage.Issue{
			Stage:   stage.Render,
			Code:    "chunk_silenced",
			Message: fmt.Sprintf("chunk %d replaced by %dms of silence: %s", r.segments[i].ChunkIndex, r.segments[i].DurationMs, r.segments[i].Err),
		})
		logging.WarnWithContext(r.logger, "chunk replaced by silence", "chunk_silenced",
			logging.Int("chunk", r.segments[i].ChunkIndex),
			logging.Int64("duration_ms", r.segments[i].DurationMs),
			logging.String(logging.FieldErrorHint, "inspect the attempt error files in the segments directory"),
			logging.String(logging.FieldImpact, "episode has a silent gap where this chunk belongs"))
	}
	_ = speech.WriteIndex(filepath.Join(dir, speech.IndexFile), r.segments)
	return stage.KindRecovered, nil
}

func (o *Orchestrator) assembleStage(ctx context.Context, r *run) (stage.Kind, error) {
	cues := audio.Cues{}
	catalog, err := music.Load(o.cfg.Paths.MusicCatalog)
	if err != nil {
		r.issue(stage.Issue{Stage: stage.Assemble, Code: "music_catalog_unreadable", Message: err.Error()})
	} else {
		cues = catalog.Cues(r.episodeID)
	}

	assembler := audio.NewAssembler(audio.Options{
		SampleRate:      o.cfg.TTS.SampleRate,
		Gap:             time.Duration(o.cfg.Audio.GapMillis) * time.Millisecond,
		TransitionEvery: o.cfg.Audio.TransitionEvery,
		ToleranceMs:     int64(o.cfg.Audio.DurationToleranceMS),
		Decoder:         o.deps.Decoder,
		Logger:          o.deps.Logger,
	})
	wav := filepath.Join(r.dir, EpisodeWAV)
	artifact, err := assembler.Assemble(ctx, speech.ToAudio(r.segments), cues, wav)
	if err != nil {
		return stage.KindFailed, err
	}
	r.artifact = artifact
	for _, issue := range artifact.Issues {
		r.issue(issue)
	}
	r.audioPath, r.mimeType = wav, artifact.MimeType
	r.durationMs, r.sizeBytes = artifact.DurationMs, artifact.SizeBytes

	if o.cfg.Audio.EncodeMP3 {
		o.encodeMP3(ctx, r)
	}
	if err := fileutil.WriteJSON(filepath.Join(r.dir, AssemblyFile), artifact); err != nil {
		return stage.KindFailed, services.Wrap(services.ErrAssembly, stage.Assemble, "persist", AssemblyFile, err)
	}
	if hasStageIssues(r.report.Issues, stage.Assemble) {
		return stage.KindRecovered, nil
	}
	return stage.KindOK, nil
}

// encodeMP3 replaces the WAV with an MP3 when ffmpeg succeeds. Any failure
// keeps the WAV as the published file.
func (o *Orchestrator) encodeMP3(ctx context.Context, r *run) {
	if o.deps.Encoder == nil {
		r.issue(stage.Issue{Stage: stage.Assemble, Code: "mp3_unavailable", Message: "no MP3 encoder configured; publishing WAV"})
		return
	}
	mp3 := filepath.Join(r.dir, EpisodeMP3)
	if err := o.deps.Encoder.Encode(ctx, r.audioPath, mp3); err != nil {
		r.issue(stage.Issue{Stage: stage.Assemble, Code: "mp3_encode_failed", Message: err.Error()})
		logging.WarnWithContext(r.logger, "mp3 encode failed", "mp3_encode_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check audio.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "episode is published as WAV"))
		return
	}
	info, err := os.Stat(mp3)
	if err != nil {
		r.issue(stage.Issue{Stage: stage.Assemble, Code: "mp3_encode_failed", Message: err.Error()})
		return
	}
	r.audioPath, r.mimeType, r.sizeBytes = mp3, "audio/mpeg", info.Size()
	if o.deps.Prober == nil {
		return
	}
	ms, err := o.deps.Prober(ctx, mp3)
	if err != nil || ms <= 0 {
		msg := "ffprobe reported no duration"
		if err != nil {
			msg = err.Error()
		}
		r.issue(stage.Issue{Stage: stage.Assemble, Code: "probe_failed", Message: msg + "; using WAV duration"})
		return
	}
	r.durationMs = ms
}

func hasStageIssues(issues []stage.Issue, name string) bool {
	for _, issue := range issues {
		if issue.Stage == name {
			return true
		}
	}
	return false
}

func (o *Orchestrator) publishAudioStage(ctx context.Context, r *run) (stage.Kind, error) {
	key := storage.EpisodeKey(o.cfg.Storage.EpisodePrefix, r.episodeID, r.audioPath)
	url, err := o.deps.Uploader.Upload(ctx, r.audioPath, key)
	if err != nil {
		return stage.KindFailed, err
	}
	r.episode = feed.Episode{
		ID:             r.episodeID,
		Number:         r.state.NextNumber(),
		Title:          EpisodeTitle(o.cfg.Podcast.Title, r.date),
		Description:    EpisodeDescription(r.items, 5),
		PublishedAt:    r.now.UTC(),
		AudioFilePath:  r.audioPath,
		AudioKey:       key,
		MimeType:       r.mimeType,
		DurationMs:     r.durationMs,
		SizeBytes:      r.sizeBytes,
		PublicURL:      url,
		ScriptFilePath: filepath.Join(r.dir, script.TextFile),
		RunID:          r.id,
	}
	ep := r.episode
	r.report.Episode = &ep
	if err := fileutil.WriteJSON(filepath.Join(r.dir, EpisodeFile), r.episode); err != nil {
		return stage.KindFailed, services.Wrap(services.ErrPublish, stage.PublishAudio, "persist", EpisodeFile, err)
	}
	return stage.KindOK, nil
}

func (o *Orchestrator) persistFeedStage(_ context.Context, r *run) (stage.Kind, error) {
	next := r.state.Clone()
	if !next.Add(r.episode) {
		return stage.KindFailed, services.Wrap(services.ErrValidation, stage.PersistFeed, "add", "episode "+r.episodeID+" already in feed state", nil)
	}
	next.UpdatedAt = r.now.UTC()
	ch := feed.ChannelFromConfig(o.cfg)
	doc, err := feed.Render(next, ch, r.now)
	if err != nil {
		return stage.KindFailed, services.Wrap(services.ErrPublish, stage.PersistFeed, "render", "build feed document", err)
	}
	if err := feed.Verify(doc, len(next.Episodes)); err != nil {
		return stage.KindFailed, services.Wrap(services.ErrValidation, stage.PersistFeed, "verify", "rendered feed is invalid", err)
	}
	r.feedPath = filepath.Join(r.dir, FeedFile)
	if err := fileutil.WriteFileAtomic(r.feedPath, doc, 0o644); err != nil {
		return stage.KindFailed, services.Wrap(services.ErrPublish, stage.PersistFeed, "persist", FeedFile, err)
	}
	if err := feed.WriteSummary(filepath.Join(r.dir, SummaryFile), feed.Summarize(next, ch, r.now)); err != nil {
		return stage.KindFailed, services.Wrap(services.ErrPublish, stage.PersistFeed, "persist", SummaryFile, err)
	}
	r.next = next
	return stage.KindOK, nil
}

func (o *Orchestrator) publishFeedStage(ctx context.Context, r *run) (stage.Kind, error) {
	url, err := o.deps.Uploader.Upload(ctx, r.feedPath, o.cfg.Storage.FeedKey)
	if err != nil {
		return stage.KindFailed, err
	}
	r.report.FeedURL = url
	summaryKey := SummaryKey(o.cfg.Storage.FeedKey)
	if _, err := o.deps.Uploader.Upload(ctx, filepath.Join(r.dir, SummaryFile), summaryKey); err != nil {
		if errors.Is(err, context.Canceled) {
			return stage.KindFailed, err
		}
		r.issue(stage.Issue{Stage: stage.PublishFeed, Code: "summary_upload_failed", Message: err.Error()})
		return stage.KindRecovered, nil
	}
	return stage.KindOK, nil
}

func (o *Orchestrator) commitStage(_ context.Context, r *run) (stage.Kind, error) {
	if err := feed.SaveState(o.cfg.Paths.FeedState, r.next); err != nil {
		return stage.KindFailed, services.Wrap(services.ErrPublish, stage.Commit, "save", "write feed state", err)
	}
	o.snapshotFeed(r)
	return stage.KindOK, nil
}

// EpisodeTitle names the episode after the podcast and its local date.
func EpisodeTitle(podcast string, date time.Time) string {
	return fmt.Sprintf("%s %s %s", podcast, script.Weekday(date), script.LongDate(date))
}

// EpisodeDescription lists up to limit item titles in source order.
func EpisodeDescription(items []scrape.SourceItem, limit int) string {
	var titles []string
	for _, item := range items {
		if t := strings.TrimSpace(item.Title); t != "" {
			titles = append(titles, t)
		}
		if len(titles) == limit {
			break
		}
	}
	if len(titles) == 0 {
		return "Dagens avsnitt."
	}
	return "I dagens avsnitt: " + strings.Join(titles, "; ") + "."
}

// SummaryKey is the object key of feed.json next to the feed document. It
// never equals feedKey, so the summary cannot overwrite the feed.
func SummaryKey(feedKey string) string {
	base := strings.TrimSuffix(feedKey, filepath.Ext(feedKey))
	if key := base + ".json"; key != feedKey {
		return key
	}
	return base + ".summary.json"
}
