package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"morgonpodd/internal/audio"
	"morgonpodd/internal/chunk"
	"morgonpodd/internal/fileutil"
	"morgonpodd/internal/logging"
	"morgonpodd/internal/services"
	"morgonpodd/internal/services/elevenlabs"
	"morgonpodd/internal/services/llm"
	"morgonpodd/internal/stage"
)

// Synthesizer turns text into raw 16-bit little-endian mono PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, error)
}

// Options tune the renderer.
type Options struct {
	Dir         string
	SampleRate  int
	Concurrency int
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
	Logger      *slog.Logger
	// Retryable classifies synthesis errors; defaults to elevenlabs.Retryable.
	Retryable func(error) bool
	// RetryAfter extracts a server-requested delay; defaults to elevenlabs.RetryAfter.
	RetryAfter func(error) time.Duration
	// Sleep waits between attempts; defaults to a context-aware timer.
	Sleep func(context.Context, time.Duration) error
}

// Renderer renders chunks concurrently.
type Renderer struct {
	synth Synthesizer
	opts  Options
}

var errNoVoice = errors.New("no voice configured for speaker")

// NewRenderer constructs a renderer with defaults for unset options.
func NewRenderer(synth Synthesizer, opts Options) *Renderer {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 24000
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	opts.Logger = logging.NewComponentLogger(opts.Logger, "speech")
	if opts.Retryable == nil {
		opts.Retryable = elevenlabs.Retryable
	}
	if opts.RetryAfter == nil {
		opts.RetryAfter = elevenlabs.RetryAfter
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Renderer{synth: synth, opts: opts}
}

// Render renders every chunk and returns one segment per chunk, indexed by
// chunk index regardless of completion order. voices maps speaker names to
// voice IDs. The returned error is non-nil only when ctx was cancelled;
// chunks not started by then stay pending.
func (r *Renderer) Render(ctx context.Context, chunks []chunk.Chunk, voices map[string]string) ([]Segment, error) {
	if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSynthesis, stage.Render, "mkdir", "create segments directory", err)
	}
	segments := make([]Segment, len(chunks))
	for i, c := range chunks {
		segments[i] = Segment{ChunkIndex: c.Index, Speaker: c.Speaker, Status: StatusPending, TransitionBefore: c.TransitionBefore}
	}

	logger := logging.WithContext(ctx, r.opts.Logger)
	logger.Info("render started",
		logging.String(logging.FieldEventType, "render_started"),
		logging.Int("chunks", len(chunks)),
		logging.Int("concurrency", r.opts.Concurrency))

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i := range chunks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r.renderChunk(services.WithChunkIndex(ctx, chunks[i].Index), chunks[i], voices[chunks[i].Speaker], &segments[i])
			return nil
		})
	}
	_ = g.Wait()

	rendered, failed := 0, 0
	for _, seg := range segments {
		switch seg.Status {
		case StatusRendered:
			rendered++
		case StatusFailed:
			failed++
		}
	}
	logger.Info("render finished",
		logging.String(logging.FieldEventType, "render_finished"),
		logging.Int("rendered", rendered),
		logging.Int("failed", failed))

	if err := ctx.Err(); err != nil {
		return segments, err
	}
	return segments, nil
}

func (r *Renderer) renderChunk(ctx context.Context, c chunk.Chunk, voiceID string, seg *Segment) {
	logger := logging.WithContext(ctx, r.opts.Logger).With(logging.String("speaker", c.Speaker))
	if voiceID == "" {
		err := fmt.Errorf("%w %q", errNoVoice, c.Speaker)
		seg.Attempts = 1
		r.writeAttemptError(c.Index, 1, err)
		r.recordFailure(c, 1, err, seg, logger)
		return
	}

	text := c.SpeechText()
	if text == "" {
		seg.Status = StatusSkipped
		logger.Debug("chunk has no speakable text", logging.String(logging.FieldEventType, "chunk_skipped"))
		return
	}
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		seg.Attempts = attempt
		pcm, err := r.synth.Synthesize(ctx, voiceID, text)
		if err == nil {
			err = r.accept(c, attempt, pcm, seg)
			if err == nil {
				logger.Info("chunk rendered",
					logging.String(logging.FieldEventType, "chunk_rendered"),
					logging.Int("attempt", attempt),
					logging.Int64("duration_ms", seg.DurationMs))
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		r.writeAttemptError(c.Index, attempt, err)
		if attempt == r.opts.MaxAttempts || !r.opts.Retryable(err) {
			r.recordFailure(c, attempt, err, seg, logger)
			return
		}
		delay := llm.Backoff(r.opts.RetryBase, r.opts.RetryMax, attempt)
		if after := r.opts.RetryAfter(err); after > delay {
			delay = min(after, r.opts.RetryMax)
		}
		logger.Warn("chunk attempt failed; retrying",
			logging.String(logging.FieldEventType, "chunk_retry"),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := r.opts.Sleep(ctx, delay); err != nil {
			return
		}
	}
}

func (r *Renderer) accept(c chunk.Chunk, attempt int, pcm []byte, seg *Segment) error {
	clip := audio.FromPCM16LE(pcm, r.opts.SampleRate)
	if len(clip.Samples) == 0 {
		return services.Wrap(services.ErrSynthesis, stage.Render, "decode", "speech api returned no samples", nil)
	}
	attemptPath := filepath.Join(r.opts.Dir, fmt.Sprintf("chunk-%03d.attempt-%d.wav", c.Index, attempt))
	if err := audio.WriteWAV(attemptPath, clip); err != nil {
		return err
	}
	finalPath := filepath.Join(r.opts.Dir, fmt.Sprintf("chunk-%03d.wav", c.Index))
	if err := fileutil.CopyFileAtomic(attemptPath, finalPath); err != nil {
		return err
	}
	seg.FilePath = finalPath
	seg.DurationMs = clip.DurationMs()
	seg.Status = StatusRendered
	seg.Err = ""
	return nil
}

func (r *Renderer) writeAttemptError(index, attempt int, err error) {
	path := filepath.Join(r.opts.Dir, fmt.Sprintf("chunk-%03d.attempt-%d.error.txt", index, attempt))
	_ = fileutil.WriteFileAtomic(path, []byte(err.Error()+"\n"), 0o644)
}

func (r *Renderer) recordFailure(c chunk.Chunk, attempt int, err error, seg *Segment, logger *slog.Logger) {
	seg.Status = StatusFailed
	seg.Err = services.Wrap(services.ErrSynthesis, stage.Render, "synthesize", fmt.Sprintf("chunk %d", c.Index), err).Error()
	logging.WarnWithContext(logger, "chunk render failed", "chunk_failed",
		logging.Int("attempts", attempt),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the attempt error files in the segments directory"),
		logging.String(logging.FieldImpact, "chunk will be replaced by silence or abort the run"))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
