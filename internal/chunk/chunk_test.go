package chunk_test

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"morgonpodd/internal/chunk"
	"morgonpodd/internal/script"
)

func makeScript(lines ...script.Line) script.Script {
	for i := range lines {
		lines[i].Sequence = i
	}
	return script.Script{Lines: lines}
}

func assertInvariants(t *testing.T, s script.Script, chunks []chunk.Chunk, limit int) {
	t.Helper()
	if got := chunk.Reassemble(chunks); got != s.Text() {
		t.Fatalf("round trip mismatch:\n got %q\nwant %q", got, s.Text())
	}
	speakers := make(map[int]string, len(s.Lines))
	for _, line := range s.Lines {
		speakers[line.Sequence] = line.Speaker
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		if c.SpeechText() == "" {
			t.Fatalf("chunk %d is blank: %q", i, c.Text)
		}
		if c.CharCount > limit || utf8.RuneCountInString(c.Text) != c.CharCount {
			t.Fatalf("chunk %d breaks the bound: count=%d runes=%d limit=%d", i, c.CharCount, utf8.RuneCountInString(c.Text), limit)
		}
		for _, seq := range c.Lines {
			if speakers[seq] != c.Speaker {
				t.Fatalf("chunk %d mixes speaker %q with line %d by %q", i, c.Speaker, seq, speakers[seq])
			}
		}
	}
}

func TestPlanMergesSameSpeakerLines(t *testing.T) {
	s := makeScript(
		script.Line{Speaker: "Anna", Text: "Hej."},
		script.Line{Speaker: "Anna", Text: "Välkomna."},
		script.Line{Speaker: "Erik", Text: "Tack."},
	)
	chunks, err := chunk.Plan(s, 100)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %+v", chunks)
	}
	if chunks[0].Text != "Hej.\nVälkomna.\n" || chunks[0].SpeechText() != "Hej.\nVälkomna." {
		t.Fatalf("unexpected merged text %q", chunks[0].Text)
	}
	if len(chunks[0].Lines) != 2 {
		t.Fatalf("expected two source lines, got %v", chunks[0].Lines)
	}
	assertInvariants(t, s, chunks, 100)
}

func TestPlanSplitsLongLineAtSentence(t *testing.T) {
	sentence := strings.Repeat("ord ", 20) + "slut. "
	text := strings.Repeat(sentence, 40)
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < 3000 {
		t.Fatalf("fixture too short: %d", utf8.RuneCountInString(text))
	}
	s := makeScript(script.Line{Speaker: "Anna", Text: text})

	chunks, err := chunk.Plan(s, 1500)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	for _, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(c.Text, "slut. ") {
			t.Fatalf("expected sentence boundary cut, chunk ends %q", c.Text[len(c.Text)-10:])
		}
		if c.Speaker != "Anna" {
			t.Fatalf("unexpected speaker %q", c.Speaker)
		}
	}
	assertInvariants(t, s, chunks, 1500)
}

func TestPlanFallsBackToWordThenHardCut(t *testing.T) {
	words := makeScript(script.Line{Speaker: "Erik", Text: "alfa beta gamma delta epsilon"})
	chunks, err := chunk.Plan(words, 12)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if chunks[0].Text != "alfa beta " {
		t.Fatalf("expected word cut, got %q", chunks[0].Text)
	}
	assertInvariants(t, words, chunks, 12)

	solid := makeScript(script.Line{Speaker: "Erik", Text: strings.Repeat("x", 25)})
	chunks, err = chunk.Plan(solid, 10)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected hard cuts into 3 chunks, got %d", len(chunks))
	}
	assertInvariants(t, solid, chunks, 10)

	dialogue := makeScript(
		script.Line{Speaker: "Anna", Text: strings.Repeat("a", 3000)},
		script.Line{Speaker: "Erik", Text: "Hej."},
	)
	chunks, err = chunk.Plan(dialogue, 1500)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	for _, c := range chunks {
		if c.SpeechText() == "" {
			t.Fatalf("chunk %d has nothing to say: %q", c.Index, c.Text)
		}
	}
	if len(chunks) != 4 || chunks[2].Speaker != "Anna" || chunks[3].Speaker != "Erik" {
		t.Fatalf("unexpected plan %+v", chunks)
	}
	assertInvariants(t, dialogue, chunks, 1500)
}

func TestPlanNeverCutsInsideGraphemeCluster(t *testing.T) {
	family := "👨‍👩‍👧"
	text := strings.Repeat("é", 7) + family + family
	s := makeScript(script.Line{Speaker: "Anna", Text: text})
	limit := utf8.RuneCountInString(family) + 1
	chunks, err := chunk.Plan(s, limit)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	for _, c := range chunks {
		g := uniseg.NewGraphemes(c.Text)
		rebuilt := ""
		for g.Next() {
			rebuilt += g.Str()
		}
		if rebuilt != c.Text || strings.HasPrefix(c.Text, "́") || strings.HasPrefix(c.Text, "‍") {
			t.Fatalf("chunk starts inside a cluster: %q", c.Text)
		}
	}
	assertInvariants(t, s, chunks, limit)
}

func TestPlanRejectsImpossibleLimit(t *testing.T) {
	s := makeScript(script.Line{Speaker: "Anna", Text: "👨‍👩‍👧"})
	if _, err := chunk.Plan(s, 2); err == nil {
		t.Fatal("expected error when a cluster exceeds the limit")
	}
	if _, err := chunk.Plan(s, 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestPlanStartsChunkAtTransition(t *testing.T) {
	s := makeScript(
		script.Line{Speaker: "Anna", Text: "Först."},
		script.Line{Speaker: "Anna", Text: "Sedan.", TransitionBefore: true},
	)
	chunks, err := chunk.Plan(s, 100)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(chunks) != 2 || !chunks[1].TransitionBefore || chunks[0].TransitionBefore {
		t.Fatalf("expected transition to open a new chunk, got %+v", chunks)
	}
}

func TestPlanRoundTripGenerated(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vocab := []string{"hej", "nyheter", "väder.", "är", "Göteborg!", "AI?", "…", "é", "🇸🇪", "  ", "ord,", "mycket"}
	speakers := []string{"Anna", "Erik"}
	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(8)
		lines := make([]script.Line, n)
		for i := range lines {
			var b strings.Builder
			if rng.Intn(4) == 0 {
				b.WriteString(strings.Repeat("a", 1+rng.Intn(300)))
			}
			for w := 0; w < rng.Intn(60); w++ {
				b.WriteString(vocab[rng.Intn(len(vocab))])
				b.WriteByte(' ')
			}
			lines[i] = script.Line{
				Speaker:          speakers[rng.Intn(2)],
				Text:             strings.TrimSpace(b.String()) + "x",
				TransitionBefore: rng.Intn(5) == 0,
			}
		}
		s := makeScript(lines...)
		limit := 8 + rng.Intn(120)
		chunks, err := chunk.Plan(s, limit)
		if err != nil {
			t.Fatalf("iteration %d: Plan returned error: %v", iter, err)
		}
		assertInvariants(t, s, chunks, limit)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	s := makeScript(script.Line{Speaker: "Anna", Text: "Hej."}, script.Line{Speaker: "Erik", Text: "Hallå."})
	chunks, _ := chunk.Plan(s, 100)
	path := filepath.Join(t.TempDir(), chunk.ManifestFile)
	if err := chunk.WriteManifest(path, 100, chunks); err != nil {
		t.Fatalf("WriteManifest returned error: %v", err)
	}
	loaded, err := chunk.ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest returned error: %v", err)
	}
	if chunk.Reassemble(loaded) != s.Text() {
		t.Fatal("manifest lost text")
	}
}
