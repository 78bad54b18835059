package feed

import (
	"time"

	"morgonpodd/internal/fileutil"
)

// Summary is the small JSON companion published next to the feed.
type Summary struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	EpisodeCount int       `json:"episode_count"`
	LastUpdated  time.Time `json:"last_updated"`
	FeedURL      string    `json:"feed_url,omitempty"`
	LatestID     string    `json:"latest_id,omitempty"`
	LatestTitle  string    `json:"latest_title,omitempty"`
}

// Summarize builds the companion summary for state.
func Summarize(state *State, ch Channel, now time.Time) Summary {
	s := Summary{
		Title:        ch.Title,
		Description:  ch.Description,
		EpisodeCount: len(state.Episodes),
		LastUpdated:  now.UTC(),
		FeedURL:      ch.FeedURL,
	}
	if latest, ok := state.Latest(); ok {
		s.LatestID = latest.ID
		s.LatestTitle = latest.Title
	}
	return s
}

// WriteSummary writes the summary atomically.
func WriteSummary(path string, summary Summary) error {
	return fileutil.WriteJSON(path, summary)
}
