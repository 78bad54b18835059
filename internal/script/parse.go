package script

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"morgonpodd/internal/config"
	"morgonpodd/internal/services/llm"
)

var markerPattern = regexp.MustCompile(`(?i)^\[\s*(transition|övergång|musik|music|paus)\b[^\]]*\]$`)

var errEmptyScript = errors.New("script reply contained no dialogue")

type jsonLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type jsonScript struct {
	Lines []jsonLine `json:"lines"`
}

// Parse converts a model reply into script lines. Structured JSON replies are
// preferred; otherwise the reply is read as "Name: text" dialogue. Speaker
// names are matched case-insensitively against hosts and normalized to the
// configured spelling.
func Parse(content string, hosts []config.Host) ([]Line, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errEmptyScript
	}
	if strings.Contains(content, "{") {
		var payload jsonScript
		if err := llm.DecodeLLMJSON(content, &payload); err == nil && len(payload.Lines) > 0 {
			return parseJSONLines(payload.Lines, hosts)
		}
	}
	return parseDialogue(content, hosts)
}

func parseJSONLines(raw []jsonLine, hosts []config.Host) ([]Line, error) {
	lines := make([]Line, 0, len(raw))
	pendingTransition := false
	for i, entry := range raw {
		speaker := strings.TrimSpace(entry.Speaker)
		text := cleanText(entry.Text)
		if markerPattern.MatchString(speaker) || (text != "" && markerPattern.MatchString(text)) {
			pendingTransition = len(lines) > 0
			continue
		}
		if text == "" {
			continue
		}
		name, ok := matchHost(speaker, hosts)
		if !ok {
			return nil, fmt.Errorf("line %d: unknown speaker %q", i, speaker)
		}
		lines = append(lines, Line{Speaker: name, Text: text, TransitionBefore: pendingTransition})
		pendingTransition = false
	}
	if len(lines) == 0 {
		return nil, errEmptyScript
	}
	return renumber(lines), nil
}

func parseDialogue(content string, hosts []config.Host) ([]Line, error) {
	var lines []Line
	pendingTransition := false
	for _, raw := range strings.Split(content, "\n") {
		row := strings.TrimSpace(raw)
		if row == "" || strings.HasPrefix(row, "```") || strings.HasPrefix(row, "#") {
			continue
		}
		if markerPattern.MatchString(stripEmphasis(row)) {
			pendingTransition = len(lines) > 0
			continue
		}
		if name, text, ok := splitSpeaker(row, hosts); ok {
			if text == "" {
				continue
			}
			lines = append(lines, Line{Speaker: name, Text: text, TransitionBefore: pendingTransition})
			pendingTransition = false
			continue
		}
		// Rows without a known speaker prefix continue the previous turn.
		if len(lines) == 0 {
			continue
		}
		last := &lines[len(lines)-1]
		last.Text = last.Text + " " + cleanText(row)
	}
	if len(lines) == 0 {
		return nil, errEmptyScript
	}
	return renumber(lines), nil
}

func splitSpeaker(row string, hosts []config.Host) (string, string, bool) {
	idx := strings.Index(row, ":")
	if idx <= 0 {
		return "", "", false
	}
	name, ok := matchHost(stripEmphasis(row[:idx]), hosts)
	if !ok {
		return "", "", false
	}
	return name, cleanText(strings.TrimLeft(row[idx+1:], "* ")), true
}

func matchHost(candidate string, hosts []config.Host) (string, bool) {
	candidate = strings.TrimSpace(stripEmphasis(candidate))
	for _, host := range hosts {
		if strings.EqualFold(candidate, host.Name) {
			return host.Name, true
		}
	}
	return "", false
}

func stripEmphasis(s string) string {
	return strings.Trim(strings.TrimSpace(s), "*_ ")
}

func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.Join(strings.Fields(s), " ")
}

// TrimToBudget drops lines from the end of the script until the word count
// fits the budget, always keeping the final line so the sign-off survives.
func TrimToBudget(lines []Line, budgetWords int) []Line {
	if budgetWords <= 0 || len(lines) < 2 {
		return lines
	}
	total := 0
	for _, line := range lines {
		total += len(strings.Fields(line.Text))
	}
	if total <= budgetWords {
		return lines
	}
	last := lines[len(lines)-1]
	used := len(strings.Fields(last.Text))
	kept := make([]Line, 0, len(lines))
	for _, line := range lines[:len(lines)-1] {
		words := len(strings.Fields(line.Text))
		if used+words > budgetWords {
			break
		}
		kept = append(kept, line)
		used += words
	}
	if len(kept) == 0 {
		kept = append(kept, lines[0])
	}
	kept = append(kept, last)
	return renumber(kept)
}
