package scrape

import "time"

// SourceItem is one scraped snippet. Items are immutable once scraped.
type SourceItem struct {
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	Link       string    `json:"link,omitempty"`
	SourceName string    `json:"source_name"`
	SourceType string    `json:"source_type"`
	Priority   int       `json:"priority"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// SourceError records why a source produced no items.
type SourceError struct {
	Source string `json:"source"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}
