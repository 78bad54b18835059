package script

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"morgonpodd/internal/config"
	"morgonpodd/internal/scrape"
)

const transitionMarker = "[TRANSITION]"

// Vars are the named placeholders available to prompt and intro templates.
type Vars map[string]string

// NewVars builds the placeholder set for an episode.
func NewVars(cfg *config.Config, hosts []config.Host, date time.Time) Vars {
	vars := Vars{
		"podcast_title":  cfg.Podcast.Title,
		"date":           LongDate(date),
		"weekday":        Weekday(date),
		"target_minutes": strconv.Itoa(cfg.Podcast.MaxEpisodeMinutes),
		"target_words":   strconv.Itoa(cfg.WordBudget()),
	}
	for i, host := range hosts {
		prefix := fmt.Sprintf("host%d_", i+1)
		vars[prefix+"name"] = host.Name
		vars[prefix+"personality"] = host.Personality
		vars[prefix+"style"] = host.Style
	}
	return vars
}

// Expand substitutes {name} placeholders. Unknown placeholders are left as is
// so a typo in a template stays visible in the saved prompt.
func Expand(template string, vars Vars) string {
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// BuildPrompt renders the user prompt: the configured template followed by
// the episode date, the selected content grouped by source, and the output
// format instructions.
func BuildPrompt(template string, vars Vars, items []scrape.SourceItem) string {
	var b strings.Builder
	b.WriteString(Expand(template, vars))
	fmt.Fprintf(&b, "\n\nDagens datum: %s den %s\n\nDagens innehåll att diskutera:\n", vars["weekday"], vars["date"])

	current := ""
	for _, item := range items {
		if item.SourceName != current {
			current = item.SourceName
			fmt.Fprintf(&b, "\n%s (%s):\n", item.SourceName, item.SourceType)
		}
		fmt.Fprintf(&b, "- %s\n", item.Title)
		if body := strings.TrimSpace(item.Body); body != "" {
			fmt.Fprintf(&b, "  %s\n", body)
		}
	}

	host1, host2 := vars["host1_name"], vars["host2_name"]
	fmt.Fprintf(&b, `
Instruktioner:
1. Skapa ett naturligt samtal mellan %[1]s och %[2]s.
2. Låt dem diskutera nyheterna som ett äkta samtal, inte bara läsa upp punkter.
3. %[1]s börjar med hälsningar och en översikt, %[2]s fokuserar på analys och detaljer.
4. Avsluta med att båda värdarna säger adjö.
5. Skriv %[3]s på en egen rad där ett musikaliskt avbrott passar mellan ämnen.
6. Svara med JSON: {"lines":[{"speaker":"%[1]s","text":"..."},{"speaker":"%[2]s","text":"..."}]}
   Markera övergångar med {"speaker":"%[3]s"}.
`, host1, host2, transitionMarker)
	return b.String()
}

// SelectItems keeps every item at or above the high-priority threshold and
// then adds the remaining items in order while their estimated word cost
// fits the budget. Input order is preserved.
func SelectItems(items []scrape.SourceItem, highPriority, budgetWords int) []scrape.SourceItem {
	used := 0
	keep := make([]bool, len(items))
	for i, item := range items {
		if item.Priority <= highPriority {
			keep[i] = true
			used += itemCost(item)
		}
	}
	for i, item := range items {
		if keep[i] {
			continue
		}
		cost := itemCost(item)
		if used+cost > budgetWords {
			continue
		}
		keep[i] = true
		used += cost
	}
	selected := make([]scrape.SourceItem, 0, len(items))
	for i, item := range items {
		if keep[i] {
			selected = append(selected, item)
		}
	}
	return selected
}

// itemCost estimates how many spoken words discussing an item takes: the
// title and body read once, plus a fixed allowance for host banter.
func itemCost(item scrape.SourceItem) int {
	const banter = 40
	return len(strings.Fields(item.Title)) + len(strings.Fields(item.Body)) + banter
}
