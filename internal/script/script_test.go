package script_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"morgonpodd/internal/config"
	"morgonpodd/internal/scrape"
	"morgonpodd/internal/script"
	"morgonpodd/internal/stage"
)

type fakeCompleter struct {
	reply      string
	err        error
	configured bool
	prompts    []string
}

func (f *fakeCompleter) Configured() bool { return f.configured }
func (f *fakeCompleter) Model() string    { return "test-model" }
func (f *fakeCompleter) CompleteJSON(_ context.Context, system, user string) (string, error) {
	f.prompts = append(f.prompts, system, user)
	return f.reply, f.err
}

var episodeDate = time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)

func testItems() []scrape.SourceItem {
	return []scrape.SourceItem{
		{Title: "Riksdagen röstar om budgeten", SourceName: "SVT", SourceType: "news", Priority: 1},
		{Title: "Ny AI-modell lanseras", SourceName: "Tech", SourceType: "tech", Priority: 2},
		{Title: "Regn väntas i Göteborg", SourceName: "SMHI", SourceType: "weather", Priority: 3},
	}
}

func newGenerator(cfg *config.Config, client script.Completer) *script.Generator {
	return script.NewGenerator(cfg, client, nil, script.WithClock(func() time.Time { return episodeDate }))
}

func TestGenerateParsesJSONReply(t *testing.T) {
	cfg := config.Default()
	client := &fakeCompleter{configured: true, reply: `{"lines":[
		{"speaker":"Anna","text":"God morgon!"},
		{"speaker":"[TRANSITION]"},
		{"speaker":"erik","text":"Idag pratar vi budget."},
		{"speaker":"Anna","text":"Hej då!"}]}`}

	result := newGenerator(&cfg, client).Generate(context.Background(), testItems(), cfg.Hosts)
	if result.Kind != stage.KindOK {
		t.Fatalf("expected ok result, got %s (%v)", result.Kind, result.Err)
	}
	lines := result.Value.Lines
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %+v", lines)
	}
	if lines[1].Speaker != "Erik" || !lines[1].TransitionBefore {
		t.Fatalf("expected normalized speaker with transition, got %+v", lines[1])
	}
	if result.Value.Origin != script.OriginLLM || result.Value.Model != "test-model" {
		t.Fatalf("unexpected origin %q model %q", result.Value.Origin, result.Value.Model)
	}
	if !strings.Contains(client.prompts[1], "Riksdagen röstar om budgeten") {
		t.Fatalf("expected high priority item in prompt")
	}
	if !strings.Contains(client.prompts[1], "onsdag den 14 oktober 2026") {
		t.Fatalf("expected Swedish date in prompt, got %q", client.prompts[1])
	}
}

func TestGenerateFallsBackOnAPIError(t *testing.T) {
	cfg := config.Default()
	client := &fakeCompleter{configured: true, err: errors.New("boom")}

	result := newGenerator(&cfg, client).Generate(context.Background(), testItems(), cfg.Hosts)
	if result.Kind != stage.KindRecovered {
		t.Fatalf("expected recovered result, got %s", result.Kind)
	}
	if result.Value.Origin != script.OriginFallback {
		t.Fatalf("expected fallback origin, got %q", result.Value.Origin)
	}
	if len(result.Issues) != 1 || result.Issues[0].Code != "generation_failed" {
		t.Fatalf("unexpected issues %+v", result.Issues)
	}
	if err := result.Value.Validate(cfg.Hosts); err != nil {
		t.Fatalf("fallback script invalid: %v", err)
	}
}

func TestGenerateFallsBackOnUnknownSpeaker(t *testing.T) {
	cfg := config.Default()
	client := &fakeCompleter{configured: true, reply: `{"lines":[{"speaker":"Bosse","text":"Hej"}]}`}
	result := newGenerator(&cfg, client).Generate(context.Background(), testItems(), cfg.Hosts)
	if result.Kind != stage.KindRecovered {
		t.Fatalf("expected recovered result, got %s", result.Kind)
	}
}

func TestGenerateWithoutClientUsesFallback(t *testing.T) {
	cfg := config.Default()
	result := newGenerator(&cfg, nil).Generate(context.Background(), testItems(), cfg.Hosts)
	if result.Kind != stage.KindRecovered || result.Issues[0].Code != "llm_unconfigured" {
		t.Fatalf("expected unconfigured fallback, got %s %+v", result.Kind, result.Issues)
	}
}

func TestGenerateFailsOnInvalidHosts(t *testing.T) {
	cfg := config.Default()
	result := newGenerator(&cfg, nil).Generate(context.Background(), testItems(), cfg.Hosts[:1])
	if result.Kind != stage.KindFailed || result.Err == nil {
		t.Fatalf("expected failed result, got %s", result.Kind)
	}
}

func TestGeneratePrependsIntro(t *testing.T) {
	cfg := config.Default()
	cfg.Intro.Enabled = true
	result := newGenerator(&cfg, nil).Generate(context.Background(), testItems(), cfg.Hosts)
	first := result.Value.Lines[0]
	if first.Speaker != "Anna" || first.Text != "Välkommen till Morgonpodd! Idag är det 14 oktober 2026." {
		t.Fatalf("unexpected intro line %+v", first)
	}
	if first.Sequence != 0 || result.Value.Lines[1].Sequence != 1 {
		t.Fatalf("expected renumbered lines")
	}
}

func TestFallbackIsDeterministicAndAlternates(t *testing.T) {
	cfg := config.Default()
	a, err := script.Fallback("Morgonpodd", episodeDate, testItems(), cfg.Hosts)
	if err != nil {
		t.Fatalf("Fallback returned error: %v", err)
	}
	b, _ := script.Fallback("Morgonpodd", episodeDate, testItems(), cfg.Hosts)
	if a.Dialogue() != b.Dialogue() {
		t.Fatal("fallback is not deterministic")
	}
	if !strings.Contains(a.Lines[0].Text, "onsdag") {
		t.Fatalf("expected weekday in greeting, got %q", a.Lines[0].Text)
	}
	if a.Lines[1].Speaker != "Erik" || a.Lines[2].Speaker != "Anna" {
		t.Fatalf("expected alternating item turns, got %+v", a.Lines)
	}
	if !strings.Contains(a.Text(), "Regn väntas i Göteborg") {
		t.Fatal("expected every title in fallback")
	}
}

func TestFallbackWithoutItems(t *testing.T) {
	cfg := config.Default()
	s, err := script.Fallback("Morgonpodd", episodeDate, nil, cfg.Hosts)
	if err != nil {
		t.Fatalf("Fallback returned error: %v", err)
	}
	if len(s.Lines) < 3 {
		t.Fatalf("expected greeting, notice and sign-off, got %d lines", len(s.Lines))
	}
}

func TestParseDialogueFormat(t *testing.T) {
	cfg := config.Default()
	reply := "**Anna:** God morgon!\nfortsätter här\n\n[MUSIK: kort jingel]\nErik: Tack Anna.\nOkänd: ignoreras inte\n"
	lines, err := script.Parse(reply, cfg.Hosts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %+v", lines)
	}
	if lines[0].Text != "God morgon! fortsätter här" {
		t.Fatalf("unexpected continuation handling %q", lines[0].Text)
	}
	if !lines[1].TransitionBefore || !strings.HasSuffix(lines[1].Text, "Okänd: ignoreras inte") {
		t.Fatalf("unexpected second line %+v", lines[1])
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	cfg := config.Default()
	if _, err := script.Parse("  ", cfg.Hosts); err == nil {
		t.Fatal("expected error for empty reply")
	}
	if _, err := script.Parse("no speakers here", cfg.Hosts); err == nil {
		t.Fatal("expected error without any speaker lines")
	}
}

func TestTrimToBudgetKeepsSignOff(t *testing.T) {
	lines := []script.Line{
		{Speaker: "Anna", Text: "ett två tre"},
		{Speaker: "Erik", Text: "fyra fem sex"},
		{Speaker: "Anna", Text: "sju åtta nio"},
		{Speaker: "Erik", Text: "hej då"},
	}
	trimmed := script.TrimToBudget(lines, 6)
	if len(trimmed) != 2 || trimmed[1].Text != "hej då" {
		t.Fatalf("unexpected trim result %+v", trimmed)
	}
	if trimmed[1].Sequence != 1 {
		t.Fatalf("expected renumbered sequence, got %d", trimmed[1].Sequence)
	}
}

func TestSelectItemsKeepsHighPriority(t *testing.T) {
	items := testItems()
	selected := script.SelectItems(items, 1, 10)
	if len(selected) != 1 || selected[0].Priority != 1 {
		t.Fatalf("expected only the high priority item, got %+v", selected)
	}
	if all := script.SelectItems(items, 1, 10000); len(all) != 3 {
		t.Fatalf("expected all items with large budget, got %d", len(all))
	}
}

func TestValidateRejectsNonIncreasingSequence(t *testing.T) {
	cfg := config.Default()
	s := script.Script{Lines: []script.Line{
		{Speaker: "Anna", Text: "a", Sequence: 1},
		{Speaker: "Erik", Text: "b", Sequence: 1},
	}}
	if err := s.Validate(cfg.Hosts); err == nil {
		t.Fatal("expected sequence error")
	}
}

func TestSaveWritesJSONAndText(t *testing.T) {
	cfg := config.Default()
	s, _ := script.Fallback("Morgonpodd", episodeDate, testItems(), cfg.Hosts)
	dir := t.TempDir()
	if err := script.Save(dir, s); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := script.Load(filepath.Join(dir, script.JSONFile))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Text() != s.Text() {
		t.Fatal("loaded script differs")
	}
	text, err := os.ReadFile(filepath.Join(dir, script.TextFile))
	if err != nil {
		t.Fatalf("read text: %v", err)
	}
	if !strings.HasPrefix(string(text), "Anna: God morgon") {
		t.Fatalf("unexpected text artifact %q", text)
	}
}
