package speech

import (
	"fmt"
	"path/filepath"
	"time"

	"morgonpodd/internal/audio"
	"morgonpodd/internal/chunk"
	"morgonpodd/internal/fileutil"
)

// Status is the render state of one segment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRendered Status = "rendered"
	StatusFailed   Status = "failed"
	// StatusSkipped marks a chunk with no speakable text.
	StatusSkipped Status = "skipped"
)

// IndexFile summarizes all segments of a run.
const IndexFile = "segments.json"

// Segment is the render outcome for one chunk.
type Segment struct {
	ChunkIndex       int    `json:"chunk_index"`
	Speaker          string `json:"speaker"`
	FilePath         string `json:"file_path,omitempty"`
	DurationMs       int64  `json:"duration_ms"`
	Status           Status `json:"status"`
	Attempts         int    `json:"attempts"`
	Substituted      bool   `json:"substituted,omitempty"`
	TransitionBefore bool   `json:"transition_before,omitempty"`
	Err              string `json:"error,omitempty"`
}

// Usable reports whether the segment has audio the assembler can read.
func (s Segment) Usable() bool {
	return s.FilePath != "" && (s.Status == StatusRendered || s.Substituted)
}

// SilenceFor estimates how long a chunk would take to speak at wpm words per
// minute. The estimate never drops below half a second.
func SilenceFor(c chunk.Chunk, wpm int) time.Duration {
	if wpm <= 0 {
		wpm = 150
	}
	d := time.Duration(c.Words()) * time.Minute / time.Duration(wpm)
	if d < 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d.Round(time.Millisecond)
}

// SubstituteSilence replaces a failed segment with silence of the chunk's
// estimated spoken duration, written next to the other attempts.
func SubstituteSilence(dir string, seg *Segment, c chunk.Chunk, wpm, sampleRate int) error {
	d := SilenceFor(c, wpm)
	path := filepath.Join(dir, fmt.Sprintf("chunk-%03d.silence.wav", c.Index))
	clip := audio.Silence(sampleRate, d)
	if err := audio.WriteWAV(path, clip); err != nil {
		return fmt.Errorf("write silence for chunk %d: %w", c.Index, err)
	}
	seg.FilePath = path
	seg.DurationMs = clip.DurationMs()
	seg.Substituted = true
	return nil
}

// WriteIndex persists the segment list as JSON.
func WriteIndex(path string, segments []Segment) error {
	return fileutil.WriteJSON(path, segments)
}

// ToAudio converts usable segments into assembler input in chunk order.
func ToAudio(segments []Segment) []audio.Segment {
	out := make([]audio.Segment, 0, len(segments))
	for _, seg := range segments {
		if !seg.Usable() {
			continue
		}
		out = append(out, audio.Segment{
			ChunkIndex:       seg.ChunkIndex,
			Path:             seg.FilePath,
			TransitionBefore: seg.TransitionBefore,
		})
	}
	return out
}
