// Package chunk splits a dialogue script into speech requests that respect
// the speech API's per-request character ceiling.
//
// Planning is lossless: concatenating the chunk texts in index order yields
// the script text (line texts joined with "\n") byte for byte. The newline
// between two lines travels at the end of the earlier line's last chunk.
// Chunks never mix speakers, and cuts only land on grapheme cluster
// boundaries.
package chunk

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"morgonpodd/internal/fileutil"
	"morgonpodd/internal/script"
)

// ManifestFile is the chunk manifest name inside a run directory.
const ManifestFile = "chunks.json"

// Chunk is one speech request.
type Chunk struct {
	Index            int    `json:"index"`
	Speaker          string `json:"speaker"`
	Text             string `json:"text"`
	CharCount        int    `json:"char_count"`
	TransitionBefore bool   `json:"transition_before,omitempty"`
	Lines            []int  `json:"lines"`
}

// SpeechText is the text sent to the speech API, without the trailing
// separator that keeps the plan lossless.
func (c Chunk) SpeechText() string {
	return strings.TrimSpace(c.Text)
}

// Words counts whitespace separated words.
func (c Chunk) Words() int {
	return len(strings.Fields(c.Text))
}

// ErrLimit reports a limit too small to hold a single grapheme cluster.
var ErrLimit = errors.New("chunk limit too small")

// Plan walks the script in order. Consecutive lines by the same speaker share
// a chunk while the combined text fits maxChars; a transition marker always
// starts a new chunk. Lines longer than maxChars are split at the last
// sentence end within the limit, else the last word boundary, else the last
// grapheme boundary.
func Plan(s script.Script, maxChars int) ([]Chunk, error) {
	if maxChars < 1 {
		return nil, fmt.Errorf("%w: %d", ErrLimit, maxChars)
	}
	var chunks []Chunk
	var open *Chunk
	closeOpen := func() {
		if open != nil {
			open.Index = len(chunks)
			chunks = append(chunks, *open)
			open = nil
		}
	}

	for i, line := range s.Lines {
		if line.Text == "" {
			return nil, fmt.Errorf("line %d has no text", line.Sequence)
		}
		unit := line.Text
		if i < len(s.Lines)-1 {
			unit += "\n"
		}
		size := utf8.RuneCountInString(unit)

		if open != nil && open.Speaker == line.Speaker && !line.TransitionBefore && open.CharCount+size <= maxChars {
			open.Text += unit
			open.CharCount += size
			open.Lines = append(open.Lines, line.Sequence)
			continue
		}
		closeOpen()

		pieces, err := split(unit, maxChars)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line.Sequence, err)
		}
		for p, piece := range pieces {
			closeOpen()
			open = &Chunk{
				Speaker:          line.Speaker,
				Text:             piece,
				CharCount:        utf8.RuneCountInString(piece),
				TransitionBefore: line.TransitionBefore && p == 0,
				Lines:            []int{line.Sequence},
			}
		}
	}
	closeOpen()
	return chunks, nil
}

// Reassemble concatenates chunk texts in index order.
func Reassemble(chunks []Chunk) string {
	ordered := make([]Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	var b strings.Builder
	for _, c := range ordered {
		b.WriteString(c.Text)
	}
	return b.String()
}

const (
	terminators = ".!?…"
	closers     = "\"'”’)»"
)

type cluster struct {
	text  string
	end   int // rune offset just past this cluster
	space bool
}

func clusters(s string) []cluster {
	var out []cluster
	offset := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		text := g.Str()
		offset += utf8.RuneCountInString(text)
		r, _ := utf8.DecodeRuneInString(text)
		out = append(out, cluster{text: text, end: offset, space: unicode.IsSpace(r)})
	}
	return out
}

// split cuts text into pieces of at most limit runes.
func split(text string, limit int) ([]string, error) {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}, nil
	}
	var pieces []string
	rest := clusters(text)
	for len(rest) > 0 {
		base := rest[0].end - utf8.RuneCountInString(rest[0].text)
		if rest[len(rest)-1].end-base <= limit {
			pieces = append(pieces, join(rest))
			break
		}
		cut := cutPoint(rest, base, limit)
		if cut == 0 {
			return nil, fmt.Errorf("%w: a grapheme cluster exceeds %d characters", ErrLimit, limit)
		}
		cut = keepSpeech(rest, cut, limit)
		pieces = append(pieces, join(rest[:cut]))
		rest = rest[cut:]
	}
	return pieces, nil
}

// cutPoint returns how many clusters go into the next piece.
func cutPoint(cs []cluster, base, limit int) int {
	sentence, word, hard := 0, 0, 0
	for i, c := range cs {
		if c.end-base > limit {
			break
		}
		hard = i + 1
		if !c.space {
			continue
		}
		// Keep trailing whitespace with the piece it follows.
		if i+1 < len(cs) && cs[i+1].space {
			continue
		}
		word = i + 1
		if endsSentence(cs[:i]) {
			sentence = i + 1
		}
	}
	switch {
	case sentence > 0:
		return sentence
	case word > 0:
		return word
	default:
		return hard
	}
}

// keepSpeech moves a cut back so the remainder never consists only of
// whitespace, which would leave a chunk with nothing to say. The moved cut
// hands the last spoken cluster to the remainder when it still fits.
func keepSpeech(cs []cluster, cut, limit int) int {
	for _, c := range cs[cut:] {
		if !c.space {
			return cut
		}
	}
	for i := cut - 1; i > 0; i-- {
		if cs[i].space {
			continue
		}
		start := cs[i].end - utf8.RuneCountInString(cs[i].text)
		if cs[len(cs)-1].end-start <= limit {
			return i
		}
		break
	}
	return cut
}

func endsSentence(cs []cluster) bool {
	for i := len(cs) - 1; i >= 0; i-- {
		if cs[i].space || strings.ContainsAny(cs[i].text, closers) {
			continue
		}
		last, _ := utf8.DecodeLastRuneInString(cs[i].text)
		return strings.ContainsRune(terminators, last)
	}
	return false
}

func join(cs []cluster) string {
	var b strings.Builder
	for _, c := range cs {
		b.WriteString(c.text)
	}
	return b.String()
}

type manifest struct {
	MaxChars int     `json:"max_chars"`
	Chunks   []Chunk `json:"chunks"`
}

// WriteManifest persists the plan atomically.
func WriteManifest(path string, maxChars int, chunks []Chunk) error {
	return fileutil.WriteJSON(path, manifest{MaxChars: maxChars, Chunks: chunks})
}

// ReadManifest loads a plan written by WriteManifest.
func ReadManifest(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode chunk manifest: %w", err)
	}
	return m.Chunks, nil
}
