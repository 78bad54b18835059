package speech_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"morgonpodd/internal/audio"
	"morgonpodd/internal/chunk"
	"morgonpodd/internal/speech"
	"morgonpodd/internal/testsupport"
)

const rate = 8000

var errFlaky = errors.New("flaky")

type fakeSynth struct {
	mu       sync.Mutex
	failures map[string]int // text -> remaining failures, -1 forever
	calls    map[string]int
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{failures: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeSynth) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls[text]++
	remaining := f.failures[text]
	if remaining > 0 {
		f.failures[text] = remaining - 1
	}
	f.mu.Unlock()
	if remaining != 0 {
		return nil, fmt.Errorf("%w: %s", errFlaky, text)
	}
	return testsupport.PCM(rate, 200*time.Millisecond), nil
}

func makeChunks(n int) []chunk.Chunk {
	chunks := make([]chunk.Chunk, n)
	for i := range chunks {
		speaker := "Anna"
		if i%2 == 1 {
			speaker = "Erik"
		}
		chunks[i] = chunk.Chunk{Index: i, Speaker: speaker, Text: fmt.Sprintf("chunk nummer %d\n", i)}
	}
	return chunks
}

var voices = map[string]string{"Anna": "va", "Erik": "ve"}

func newRenderer(t *testing.T, synth speech.Synthesizer, dir string) *speech.Renderer {
	t.Helper()
	return speech.NewRenderer(synth, speech.Options{
		Dir:         dir,
		SampleRate:  rate,
		Concurrency: 3,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
		RetryMax:    2 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errFlaky) },
		RetryAfter:  func(error) time.Duration { return 0 },
	})
}

func TestRenderAllChunksInIndexOrder(t *testing.T) {
	synth := newFakeSynth()
	synth.delay = 5 * time.Millisecond
	dir := t.TempDir()
	segments, err := newRenderer(t, synth, dir).Render(context.Background(), makeChunks(8), voices)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	for i, seg := range segments {
		if seg.ChunkIndex != i || seg.Status != speech.StatusRendered {
			t.Fatalf("segment %d: %+v", i, seg)
		}
		if seg.DurationMs != 200 {
			t.Fatalf("segment %d duration %d", i, seg.DurationMs)
		}
		if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf("chunk-%03d.wav", i))); err != nil {
			t.Fatalf("missing accepted segment: %v", err)
		}
	}
	if peak := synth.peak.Load(); peak > 3 {
		t.Fatalf("worker pool exceeded limit: %d in flight", peak)
	}
}

func TestRenderRetriesAndKeepsAttemptFiles(t *testing.T) {
	synth := newFakeSynth()
	chunks := makeChunks(2)
	synth.failures[chunks[1].SpeechText()] = 2
	dir := t.TempDir()

	segments, err := newRenderer(t, synth, dir).Render(context.Background(), chunks, voices)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if segments[1].Status != speech.StatusRendered || segments[1].Attempts != 3 {
		t.Fatalf("expected success on third attempt, got %+v", segments[1])
	}
	for _, name := range []string{"chunk-001.attempt-1.error.txt", "chunk-001.attempt-2.error.txt", "chunk-001.attempt-3.wav", "chunk-001.wav"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected debug file %s: %v", name, err)
		}
	}
}

func TestRenderSkipsBlankChunkWithoutCallingAPI(t *testing.T) {
	synth := newFakeSynth()
	chunks := makeChunks(2)
	chunks[1].Text = "\n"
	segments, err := newRenderer(t, synth, t.TempDir()).Render(context.Background(), chunks, voices)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if segments[1].Status != speech.StatusSkipped || segments[1].Usable() {
		t.Fatalf("expected blank chunk skipped, got %+v", segments[1])
	}
	if _, called := synth.calls[""]; called {
		t.Fatal("speech api called with empty text")
	}
	if segments[0].Status != speech.StatusRendered {
		t.Fatalf("expected first chunk rendered, got %+v", segments[0])
	}
	if got := speech.ToAudio(segments); len(got) != 1 {
		t.Fatalf("expected one assembler segment, got %d", len(got))
	}
}

func TestRenderFailureDoesNotStopOthers(t *testing.T) {
	synth := newFakeSynth()
	chunks := makeChunks(5)
	synth.failures[chunks[3].SpeechText()] = -1

	segments, err := newRenderer(t, synth, t.TempDir()).Render(context.Background(), chunks, voices)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	for i, seg := range segments {
		want := speech.StatusRendered
		if i == 3 {
			want = speech.StatusFailed
		}
		if seg.Status != want {
			t.Fatalf("segment %d status %s, want %s", i, seg.Status, want)
		}
	}
	if segments[3].Attempts != 3 || segments[3].Err == "" {
		t.Fatalf("expected three attempts with error, got %+v", segments[3])
	}
}

func TestRenderDoesNotRetryPermanentErrors(t *testing.T) {
	synth := speechFunc(func(context.Context, string, string) ([]byte, error) {
		return nil, errors.New("unauthorized")
	})
	segments, _ := newRenderer(t, synth, t.TempDir()).Render(context.Background(), makeChunks(1), voices)
	if segments[0].Status != speech.StatusFailed || segments[0].Attempts != 1 {
		t.Fatalf("expected single failed attempt, got %+v", segments[0])
	}
}

func TestRenderFailsChunkWithoutVoice(t *testing.T) {
	dir := t.TempDir()
	segments, _ := newRenderer(t, newFakeSynth(), dir).Render(context.Background(), makeChunks(2), map[string]string{"Anna": "va"})
	if segments[0].Status != speech.StatusRendered || segments[1].Status != speech.StatusFailed {
		t.Fatalf("unexpected statuses %+v", segments)
	}
	if _, err := os.Stat(filepath.Join(dir, "chunk-001.attempt-1.error.txt")); err != nil {
		t.Fatalf("expected error file: %v", err)
	}
}

func TestRenderStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	synth := speechFunc(func(context.Context, string, string) ([]byte, error) {
		if calls.Add(1) == 1 {
			cancel()
		}
		return testsupport.PCM(rate, 100*time.Millisecond), nil
	})
	r := speech.NewRenderer(synth, speech.Options{Dir: t.TempDir(), SampleRate: rate, Concurrency: 1})
	segments, err := r.Render(ctx, makeChunks(6), voices)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	pending := 0
	for _, seg := range segments {
		if seg.Status == speech.StatusPending {
			pending++
		}
	}
	if pending == 0 {
		t.Fatal("expected unstarted chunks to remain pending")
	}
}

func TestSilenceForUsesWordRate(t *testing.T) {
	c := chunk.Chunk{Text: "ett två tre fyra fem sex sju åtta nio tio"}
	if got := speech.SilenceFor(c, 150); got != 4*time.Second {
		t.Fatalf("expected 4s, got %v", got)
	}
	if got := speech.SilenceFor(chunk.Chunk{Text: "hej"}, 150); got != 500*time.Millisecond {
		t.Fatalf("expected floor of 500ms, got %v", got)
	}
}

// A chunk that fails every attempt is replaced by silence of its estimated
// length, and the assembled episode keeps that silence at the chunk's slot.
func TestSilenceSubstitutionKeepsTimeline(t *testing.T) {
	synth := newFakeSynth()
	chunks := makeChunks(5)
	chunks[3].Text = "ett två tre fyra fem sex sju åtta nio tio\n"
	synth.failures[chunks[3].SpeechText()] = -1
	dir := t.TempDir()

	segments, err := newRenderer(t, synth, dir).Render(context.Background(), chunks, voices)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if err := speech.SubstituteSilence(dir, &segments[3], chunks[3], 150, rate); err != nil {
		t.Fatalf("SubstituteSilence returned error: %v", err)
	}

	assembler := audio.NewAssembler(audio.Options{SampleRate: rate, Gap: 300 * time.Millisecond, ToleranceMs: 50})
	artifact, err := assembler.Assemble(context.Background(), speech.ToAudio(segments), audio.Cues{}, filepath.Join(dir, "episode.wav"))
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	var slot *audio.Component
	for i := range artifact.Components {
		if artifact.Components[i].ChunkIndex == 3 && artifact.Components[i].Kind == audio.ComponentSpeech {
			slot = &artifact.Components[i]
		}
	}
	if slot == nil {
		t.Fatal("chunk 3 missing from timeline")
	}
	if slot.DurationMs != 4000 {
		t.Fatalf("expected 4000ms silence, got %d", slot.DurationMs)
	}
	if want := int64(3 * (200 + 300)); slot.OffsetMs != want {
		t.Fatalf("expected chunk 3 at %dms, got %d", want, slot.OffsetMs)
	}
	if want := int64(4*200 + 4000 + 4*300); artifact.DurationMs != want {
		t.Fatalf("expected total %dms, got %d", want, artifact.DurationMs)
	}
}

type speechFunc func(ctx context.Context, voiceID, text string) ([]byte, error)

func (f speechFunc) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	return f(ctx, voiceID, text)
}
