package script

import (
	"fmt"
	"strings"
	"time"

	"morgonpodd/internal/config"
)

// Origins of a script.
const (
	OriginLLM      = "llm"
	OriginFallback = "fallback"
)

// Line is one speaker turn.
type Line struct {
	Speaker          string `json:"speaker"`
	Text             string `json:"text"`
	Sequence         int    `json:"sequence"`
	TransitionBefore bool   `json:"transition_before,omitempty"`
}

// Script is the ordered dialogue for one episode.
type Script struct {
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Origin      string    `json:"origin"`
	Model       string    `json:"model,omitempty"`
	Items       int       `json:"items"`
	Lines       []Line    `json:"lines"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Text is the line texts joined with newlines. Chunk planning reproduces
// exactly this string.
func (s Script) Text() string {
	parts := make([]string, len(s.Lines))
	for i, line := range s.Lines {
		parts[i] = line.Text
	}
	return strings.Join(parts, "\n")
}

// WordCount counts whitespace separated words across all lines.
func (s Script) WordCount() int {
	total := 0
	for _, line := range s.Lines {
		total += len(strings.Fields(line.Text))
	}
	return total
}

// Dialogue renders the script in "Name: text" form with transition markers.
func (s Script) Dialogue() string {
	var b strings.Builder
	for _, line := range s.Lines {
		if line.TransitionBefore {
			b.WriteString(transitionMarker)
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s\n", line.Speaker, line.Text)
	}
	return b.String()
}

// Validate checks the structural invariants: at least one line, strictly
// increasing sequence numbers, non-empty text and only configured speakers.
func (s Script) Validate(hosts []config.Host) error {
	if len(s.Lines) == 0 {
		return fmt.Errorf("script has no lines")
	}
	known := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		known[host.Name] = struct{}{}
	}
	prev := -1
	for i, line := range s.Lines {
		if _, ok := known[line.Speaker]; !ok {
			return fmt.Errorf("line %d: unknown speaker %q", i, line.Speaker)
		}
		if strings.TrimSpace(line.Text) == "" {
			return fmt.Errorf("line %d: empty text", i)
		}
		if line.Sequence <= prev {
			return fmt.Errorf("line %d: sequence %d does not increase", i, line.Sequence)
		}
		prev = line.Sequence
	}
	return nil
}

func renumber(lines []Line) []Line {
	for i := range lines {
		lines[i].Sequence = i
	}
	return lines
}

func validHosts(hosts []config.Host) error {
	if len(hosts) != config.RequiredHosts {
		return fmt.Errorf("expected %d hosts, got %d", config.RequiredHosts, len(hosts))
	}
	for i, host := range hosts {
		if strings.TrimSpace(host.Name) == "" {
			return fmt.Errorf("host %d has no name", i)
		}
	}
	if strings.EqualFold(hosts[0].Name, hosts[1].Name) {
		return fmt.Errorf("hosts share the name %q", hosts[0].Name)
	}
	return nil
}
