package script

import (
	"fmt"
	"strings"
	"time"

	"morgonpodd/internal/config"
	"morgonpodd/internal/scrape"
)

const fallbackItemsPerTurn = 2

// Fallback builds a deterministic script from item titles: a greeting by the
// first host, the titles read in short alternating turns, and a sign-off by
// both hosts. The same inputs always produce the same script.
func Fallback(title string, date time.Time, items []scrape.SourceItem, hosts []config.Host) (Script, error) {
	if err := validHosts(hosts); err != nil {
		return Script{}, err
	}
	first, second := hosts[0].Name, hosts[1].Name

	lines := []Line{{
		Speaker: first,
		Text: fmt.Sprintf("God morgon och välkommen till %s! Det är %s den %s och här kommer en snabb överblick av vad som händer idag.",
			title, Weekday(date), LongDate(date)),
	}}

	titles := make([]string, 0, len(items))
	for _, item := range items {
		if t := strings.TrimSpace(item.Title); t != "" {
			titles = append(titles, strings.TrimRight(t, ".!? "))
		}
	}

	if len(titles) == 0 {
		lines = append(lines, Line{
			Speaker: second,
			Text:    "Vi har tyvärr inga nyheter att berätta om idag. Besök nyhetssajterna direkt för fullständig information.",
		})
	}
	speakers := [2]string{second, first}
	for turn := 0; turn*fallbackItemsPerTurn < len(titles); turn++ {
		start := turn * fallbackItemsPerTurn
		end := min(start+fallbackItemsPerTurn, len(titles))
		opener := "Vidare: "
		if turn == 0 {
			opener = "Först ut: "
		}
		lines = append(lines, Line{
			Speaker: speakers[turn%2],
			Text:    opener + strings.Join(titles[start:end], ". ") + ".",
		})
	}

	lines = append(lines,
		Line{Speaker: second, Text: "Det var allt för idag. Tack för att ni lyssnade!"},
		Line{Speaker: first, Text: "Ha en fantastisk dag, vi hörs igen imorgon!"},
	)

	return Script{
		Title:  title,
		Date:   date,
		Origin: OriginFallback,
		Items:  len(titles),
		Lines:  renumber(lines),
	}, nil
}
