package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"morgonpodd/internal/logging"
	"morgonpodd/internal/services"
	"morgonpodd/internal/stage"
)

// MimeWAV is the MIME type of assembled episodes before optional encoding.
const MimeWAV = "audio/wav"

// Segment is one rendered speech chunk ready for assembly.
type Segment struct {
	ChunkIndex       int
	Path             string
	TransitionBefore bool
}

// Cue is a resolved music asset for one category.
type Cue struct {
	Category string
	ID       string
	Path     string
}

// Cues holds the music assets chosen for an episode. Nil entries are skipped.
type Cues struct {
	Intro      *Cue
	Transition *Cue
	Outro      *Cue
}

// ComponentKind labels a piece of the assembled timeline.
type ComponentKind string

const (
	ComponentIntro      ComponentKind = "intro"
	ComponentSpeech     ComponentKind = "speech"
	ComponentTransition ComponentKind = "transition"
	ComponentOutro      ComponentKind = "outro"
)

// Component is one entry in the assembled timeline.
type Component struct {
	Kind       ComponentKind `json:"kind"`
	Label      string        `json:"label,omitempty"`
	ChunkIndex int           `json:"chunk_index"`
	OffsetMs   int64         `json:"offset_ms"`
	DurationMs int64         `json:"duration_ms"`
}

// Artifact describes the assembled episode file.
type Artifact struct {
	Path       string        `json:"path"`
	MimeType   string        `json:"mime_type"`
	SampleRate int           `json:"sample_rate"`
	DurationMs int64         `json:"duration_ms"`
	ExpectedMs int64         `json:"expected_ms"`
	SizeBytes  int64         `json:"size_bytes"`
	Joins      int           `json:"joins"`
	Components []Component   `json:"components"`
	Issues     []stage.Issue `json:"issues,omitempty"`
}

// Options configures an Assembler.
type Options struct {
	SampleRate      int
	Gap             time.Duration
	TransitionEvery int
	ToleranceMs     int64
	Decoder         Decoder
	Logger          *slog.Logger
}

// Assembler concatenates segments and music cues into one WAV file.
type Assembler struct {
	opts   Options
	logger *slog.Logger
}

// NewAssembler constructs an assembler.
func NewAssembler(opts Options) *Assembler {
	if opts.ToleranceMs <= 0 {
		opts.ToleranceMs = 50
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Assembler{opts: opts, logger: logging.NewComponentLogger(logger, "assembler")}
}

type part struct {
	kind  ComponentKind
	label string
	chunk int
	clip  *Clip
	path  string
}

// Assemble writes the episode to dest. Missing or unreadable music cues are
// reported as issues; an unreadable speech segment is fatal.
func (a *Assembler) Assemble(ctx context.Context, segments []Segment, cues Cues, dest string) (Artifact, error) {
	if len(segments) == 0 {
		return Artifact{}, services.Wrap(services.ErrAssembly, stage.Assemble, "plan", "no speech segments to assemble", nil)
	}
	if a.opts.SampleRate <= 0 {
		return Artifact{}, services.Wrap(services.ErrAssembly, stage.Assemble, "plan", "sample rate must be positive", nil)
	}
	logger := logging.WithContext(ctx, a.logger)
	artifact := Artifact{Path: dest, MimeType: MimeWAV, SampleRate: a.opts.SampleRate}

	needsTransition := false
	for i, seg := range segments {
		if i > 0 && a.transitionAt(i, seg) {
			needsTransition = true
			break
		}
	}

	intro := a.loadCue(ctx, logger, "intro", cues.Intro, &artifact)
	outro := a.loadCue(ctx, logger, "outro", cues.Outro, &artifact)
	var transition *Clip
	if needsTransition {
		transition = a.loadCue(ctx, logger, "transition", cues.Transition, &artifact)
	}

	parts := make([]part, 0, len(segments)*2+2)
	if intro != nil {
		parts = append(parts, part{kind: ComponentIntro, label: cues.Intro.ID, chunk: -1, clip: intro})
	}
	for i, seg := range segments {
		if i > 0 && transition != nil && a.transitionAt(i, seg) {
			parts = append(parts, part{kind: ComponentTransition, label: cues.Transition.ID, chunk: -1, clip: transition})
		}
		parts = append(parts, part{kind: ComponentSpeech, chunk: seg.ChunkIndex, path: seg.Path})
	}
	if outro != nil {
		parts = append(parts, part{kind: ComponentOutro, label: cues.Outro.ID, chunk: -1, clip: outro})
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Artifact{}, services.Wrap(services.ErrAssembly, stage.Assemble, "prepare", "create output directory", err)
	}
	tmp := dest + ".partial"
	w, err := createWAV(tmp, a.opts.SampleRate)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrAssembly, stage.Assemble, "create", "open output", err)
	}
	fail := func(operation, message string, cause error) (Artifact, error) {
		_ = w.Close()
		_ = os.Remove(tmp)
		if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
			return Artifact{}, cause
		}
		return Artifact{}, services.Wrap(services.ErrAssembly, stage.Assemble, operation, message, cause)
	}

	gapSamples := durationToSamples(a.opts.Gap, a.opts.SampleRate)
	gapMs := samplesToMillis(gapSamples, a.opts.SampleRate)
	var expected int64
	for idx, p := range parts {
		if err := ctx.Err(); err != nil {
			return fail("write", "cancelled", err)
		}
		if idx > 0 {
			if err := w.writeSilence(gapSamples); err != nil {
				return fail("write", "write gap", err)
			}
			expected += gapMs
		}
		clip := p.clip
		if clip == nil {
			loaded, err := a.loadSegment(p.path)
			if err != nil {
				return fail("read segment", fmt.Sprintf("chunk %d unreadable", p.chunk), err)
			}
			clip = &loaded
		}
		offset := samplesToMillis(w.samples, a.opts.SampleRate)
		if err := w.writeSamples(clip.Samples); err != nil {
			return fail("write", "write samples", err)
		}
		durationMs := clip.DurationMs()
		expected += durationMs
		artifact.Components = append(artifact.Components, Component{
			Kind:       p.kind,
			Label:      p.label,
			ChunkIndex: p.chunk,
			OffsetMs:   offset,
			DurationMs: durationMs,
		})
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(tmp)
		return Artifact{}, services.Wrap(services.ErrAssembly, stage.Assemble, "write", "finalize wav", err)
	}

	artifact.Joins = len(parts) - 1
	artifact.ExpectedMs = expected
	info, err := ReadWAVInfo(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return Artifact{}, services.Wrap(services.ErrAssembly, stage.Assemble, "verify", "re-read output", err)
	}
	artifact.DurationMs = info.DurationMs()
	tolerance := a.opts.ToleranceMs * int64(max(artifact.Joins, 1))
	if diff := abs64(artifact.DurationMs - artifact.ExpectedMs); diff > tolerance {
		_ = os.Remove(tmp)
		return Artifact{}, services.Wrap(services.ErrAssembly, stage.Assemble, "verify",
			fmt.Sprintf("duration %dms differs from expected %dms by more than %dms", artifact.DurationMs, artifact.ExpectedMs, tolerance), nil)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return Artifact{}, services.Wrap(services.ErrAssembly, stage.Assemble, "write", "rename into place", err)
	}
	if stat, err := os.Stat(dest); err == nil {
		artifact.SizeBytes = stat.Size()
	}

	logger.Info("episode assembled",
		logging.String(logging.FieldEventType, "assembly_complete"),
		logging.Int("components", len(artifact.Components)),
		logging.Int64("duration_ms", artifact.DurationMs),
		logging.Int64("expected_ms", artifact.ExpectedMs),
		logging.Int("issues", len(artifact.Issues)),
	)
	return artifact, nil
}

func (a *Assembler) transitionAt(index int, seg Segment) bool {
	if seg.TransitionBefore {
		return true
	}
	return a.opts.TransitionEvery > 0 && index%a.opts.TransitionEvery == 0
}

func (a *Assembler) loadSegment(path string) (Clip, error) {
	clip, _, err := ReadWAV(path)
	if err != nil {
		return Clip{}, err
	}
	if clip.SampleRate != a.opts.SampleRate {
		return Conform(clip, a.opts.SampleRate)
	}
	return clip, nil
}

func (a *Assembler) loadCue(ctx context.Context, logger *slog.Logger, category string, cue *Cue, artifact *Artifact) *Clip {
	if cue == nil || strings.TrimSpace(cue.Path) == "" {
		artifact.Issues = append(artifact.Issues, stage.Issue{
			Stage:   stage.Assemble,
			Code:    "music_missing",
			Message: fmt.Sprintf("no %s asset available; cue skipped", category),
		})
		logging.WarnWithContext(logger, "music cue skipped", "music_cue_skipped",
			logging.String("category", category),
			logging.String(logging.FieldErrorHint, "add an asset with `morgonpodd music add`"),
			logging.String(logging.FieldImpact, "episode is assembled without this cue"),
		)
		return nil
	}
	clip, err := a.decodeAsset(ctx, cue.Path)
	if err != nil {
		artifact.Issues = append(artifact.Issues, stage.Issue{
			Stage:   stage.Assemble,
			Code:    "music_unreadable",
			Message: fmt.Sprintf("%s asset %s unreadable: %v", category, cue.ID, err),
		})
		logging.WarnWithContext(logger, "music cue unreadable", "music_cue_skipped",
			logging.String("category", category),
			logging.String("asset", cue.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the asset file or remove it from the catalog"),
			logging.String(logging.FieldImpact, "episode is assembled without this cue"),
		)
		return nil
	}
	return &clip
}

func (a *Assembler) decodeAsset(ctx context.Context, path string) (Clip, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		clip, _, err := ReadWAV(path)
		if err != nil {
			return Clip{}, err
		}
		return Conform(clip, a.opts.SampleRate)
	}
	if a.opts.Decoder == nil {
		return Clip{}, fmt.Errorf("no decoder for %s", filepath.Ext(path))
	}
	return a.opts.Decoder.Decode(ctx, path, a.opts.SampleRate)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
