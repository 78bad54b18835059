package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"morgonpodd/internal/config"
	"morgonpodd/internal/fileutil"
	"morgonpodd/internal/logging"
	"morgonpodd/internal/scrape"
	"morgonpodd/internal/services"
	"morgonpodd/internal/stage"
)

// Artifact file names written by Save.
const (
	JSONFile = "script.json"
	TextFile = "script.txt"
)

// Completer is the subset of the script API client the generator needs.
type Completer interface {
	Configured() bool
	Model() string
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Generator produces episode scripts.
type Generator struct {
	cfg    *config.Config
	client Completer
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock overrides the episode date source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator constructs a generator. A nil or unconfigured client makes
// every run use the fallback script.
func NewGenerator(cfg *config.Config, client Completer, logger *slog.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Generator{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "script"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate selects content, asks the script API for a dialogue and validates
// it. Any failure on the API path yields a Recovered fallback script; Failed
// is returned only when the hosts themselves are unusable or ctx is done.
func (g *Generator) Generate(ctx context.Context, items []scrape.SourceItem, hosts []config.Host) stage.Result[Script] {
	logger := logging.WithContext(ctx, g.logger)
	if err := validHosts(hosts); err != nil {
		return stage.Failed[Script](services.Wrap(services.ErrValidation, stage.Summarize, "hosts", "invalid host configuration", err),
			stage.Issue{Stage: stage.Summarize, Code: "invalid_hosts", Message: err.Error(), Fatal: true})
	}

	date := g.now().In(g.cfg.Location())
	budget := g.cfg.WordBudget()
	selected := SelectItems(items, g.cfg.Podcast.HighPriority, budget)
	logger.Info("script generation started",
		logging.String(logging.FieldEventType, "script_started"),
		logging.Int("items", len(items)),
		logging.Int("selected", len(selected)),
		logging.Int("word_budget", budget))

	script, err := g.generateWithAPI(ctx, selected, hosts, date)
	if err == nil {
		g.finish(&script, hosts, date)
		logger.Info("script generated",
			logging.String(logging.FieldEventType, "script_generated"),
			logging.Int("lines", len(script.Lines)),
			logging.Int("words", script.WordCount()),
			logging.String("model", script.Model))
		return stage.OK(script)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stage.Failed[Script](ctxErr)
	}

	code := "generation_failed"
	if errors.Is(err, errNoClient) {
		code = "llm_unconfigured"
	}
	logging.WarnWithContext(logger, "script generation degraded to fallback", "script_fallback",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check llm.api_key and llm.model"),
		logging.String(logging.FieldImpact, "episode uses the title-only fallback script"))

	fallback, ferr := Fallback(g.cfg.Podcast.Title, date, selected, hosts)
	if ferr != nil {
		return stage.Failed[Script](services.Wrap(services.ErrGeneration, stage.Summarize, "fallback", "fallback script failed", ferr),
			stage.Issue{Stage: stage.Summarize, Code: "fallback_failed", Message: ferr.Error(), Fatal: true})
	}
	g.finish(&fallback, hosts, date)
	return stage.Recovered(fallback, stage.Issue{Stage: stage.Summarize, Code: code, Message: err.Error()})
}

var errNoClient = errors.New("script api not configured")

func (g *Generator) generateWithAPI(ctx context.Context, items []scrape.SourceItem, hosts []config.Host, date time.Time) (Script, error) {
	if g.client == nil || !g.client.Configured() {
		return Script{}, errNoClient
	}
	vars := NewVars(g.cfg, hosts, date)
	system := Expand(g.cfg.Prompts.System, vars)
	prompt := BuildPrompt(g.cfg.Prompts.Main, vars, items)

	reply, err := g.client.CompleteJSON(ctx, system, prompt)
	if err != nil {
		return Script{}, services.Wrap(services.ErrGeneration, stage.Summarize, "complete", "script api call failed", err)
	}
	lines, err := Parse(reply, hosts)
	if err != nil {
		return Script{}, services.Wrap(services.ErrGeneration, stage.Summarize, "parse", "unusable script reply", err)
	}
	lines = TrimToBudget(lines, g.cfg.WordBudget())
	script := Script{
		Title:  g.cfg.Podcast.Title,
		Date:   date,
		Origin: OriginLLM,
		Model:  g.client.Model(),
		Items:  len(items),
		Lines:  lines,
	}
	if err := script.Validate(hosts); err != nil {
		return Script{}, services.Wrap(services.ErrGeneration, stage.Summarize, "validate", "invalid script", err)
	}
	return script, nil
}

// finish prepends the optional templated intro and stamps generation time.
func (g *Generator) finish(s *Script, hosts []config.Host, date time.Time) {
	if g.cfg.Intro.Enabled {
		intro := strings.TrimSpace(Expand(g.cfg.Intro.Template, NewVars(g.cfg, hosts, date)))
		if intro != "" {
			s.Lines = renumber(append([]Line{{Speaker: hosts[0].Name, Text: intro}}, s.Lines...))
		}
	}
	s.GeneratedAt = g.now().UTC()
}

// Save writes script.json and the human readable script.txt into dir.
func Save(dir string, s Script) error {
	if err := fileutil.WriteJSON(filepath.Join(dir, JSONFile), s); err != nil {
		return fmt.Errorf("save script json: %w", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, TextFile), []byte(s.Dialogue()), 0o644); err != nil {
		return fmt.Errorf("save script text: %w", err)
	}
	return nil
}

// Load reads a script.json written by Save.
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("decode script: %w", err)
	}
	return s, nil
}
