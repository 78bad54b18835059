package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"morgonpodd/internal/config"
)

const (
	generator   = "morgonpodd/1.0"
	itunesNS    = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	atomNS      = "http://www.w3.org/2005/Atom"
	contentType = "application/rss+xml"
)

// Channel is the podcast-level metadata rendered into the feed.
type Channel struct {
	Title       string
	Description string
	Link        string
	FeedURL     string
	Language    string
	Author      string
	Email       string
	Category    string
	Explicit    bool
	ImageURL    string
}

// ChannelFromConfig derives channel metadata from configuration.
func ChannelFromConfig(cfg *config.Config) Channel {
	base := strings.TrimRight(cfg.Storage.PublicBaseURL, "/")
	if base == "" {
		base = cfg.Podcast.PublicURL
	}
	ch := Channel{
		Title:       cfg.Podcast.Title,
		Description: cfg.Podcast.Description,
		Link:        base,
		Language:    cfg.Podcast.Language,
		Author:      cfg.Podcast.Author,
		Email:       cfg.Podcast.Email,
		Category:    cfg.Podcast.Category,
		Explicit:    cfg.Podcast.Explicit,
	}
	if base != "" {
		ch.FeedURL = base + "/" + cfg.Storage.FeedKey
	}
	if image := strings.TrimSpace(cfg.Podcast.CoverImage); image != "" {
		if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") || base == "" {
			ch.ImageURL = image
		} else {
			ch.ImageURL = base + "/" + strings.TrimLeft(image, "/")
		}
	}
	return ch
}

type rssDoc struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	ITunesNS string     `xml:"xmlns:itunes,attr"`
	AtomNS   string     `xml:"xmlns:atom,attr"`
	Channel  rssChannel `xml:"channel"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type itunesOwner struct {
	Name  string `xml:"itunes:name"`
	Email string `xml:"itunes:email,omitempty"`
}

type itunesCategory struct {
	Text string `xml:"text,attr"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type rssImage struct {
	URL   string `xml:"url"`
	Title string `xml:"title"`
	Link  string `xml:"link"`
}

type rssChannel struct {
	Title          string          `xml:"title"`
	Link           string          `xml:"link"`
	Description    string          `xml:"description"`
	Language       string          `xml:"language,omitempty"`
	LastBuildDate  string          `xml:"lastBuildDate"`
	Generator      string          `xml:"generator"`
	AtomLink       *atomLink       `xml:"atom:link,omitempty"`
	Image          *rssImage       `xml:"image,omitempty"`
	ITunesAuthor   string          `xml:"itunes:author,omitempty"`
	ITunesSummary  string          `xml:"itunes:summary,omitempty"`
	ITunesExplicit string          `xml:"itunes:explicit"`
	ITunesOwner    *itunesOwner    `xml:"itunes:owner,omitempty"`
	ITunesCategory *itunesCategory `xml:"itunes:category,omitempty"`
	ITunesImage    *itunesImage    `xml:"itunes:image,omitempty"`
	Items          []rssItem       `xml:"item"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type rssItem struct {
	Title          string       `xml:"title"`
	Description    string       `xml:"description"`
	GUID           rssGUID      `xml:"guid"`
	PubDate        string       `xml:"pubDate"`
	Enclosure      rssEnclosure `xml:"enclosure"`
	ITunesDuration string       `xml:"itunes:duration"`
	ITunesEpisode  int          `xml:"itunes:episode"`
}

// Render builds the complete RSS 2.0 document with iTunes tags from state.
func Render(state *State, ch Channel, built time.Time) ([]byte, error) {
	doc := rssDoc{
		Version:  "2.0",
		ITunesNS: itunesNS,
		AtomNS:   atomNS,
		Channel: rssChannel{
			Title:          ch.Title,
			Link:           ch.Link,
			Description:    ch.Description,
			Language:       ch.Language,
			LastBuildDate:  built.UTC().Format(time.RFC1123Z),
			Generator:      generator,
			ITunesAuthor:   ch.Author,
			ITunesSummary:  ch.Description,
			ITunesExplicit: yesNo(ch.Explicit),
		},
	}
	if ch.FeedURL != "" {
		doc.Channel.AtomLink = &atomLink{Href: ch.FeedURL, Rel: "self", Type: contentType}
	}
	if ch.Author != "" {
		doc.Channel.ITunesOwner = &itunesOwner{Name: ch.Author, Email: ch.Email}
	}
	if ch.Category != "" {
		tag, _ := language.Parse(ch.Language)
		doc.Channel.ITunesCategory = &itunesCategory{Text: cases.Title(tag).String(ch.Category)}
	}
	if ch.ImageURL != "" {
		doc.Channel.ITunesImage = &itunesImage{Href: ch.ImageURL}
		doc.Channel.Image = &rssImage{URL: ch.ImageURL, Title: ch.Title, Link: ch.Link}
	}
	for _, ep := range state.Episodes {
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:          ep.Title,
			Description:    ep.Description,
			GUID:           rssGUID{IsPermaLink: false, Value: ep.ID},
			PubDate:        ep.PublishedAt.Format(time.RFC1123Z),
			Enclosure:      rssEnclosure{URL: ep.PublicURL, Length: ep.SizeBytes, Type: ep.MimeType},
			ITunesDuration: FormatDuration(ep.DurationMs),
			ITunesEpisode:  ep.Number,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode rss: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Verify parses a rendered document and checks it lists want episodes.
func Verify(doc []byte, want int) error {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("feed does not parse: %w", err)
	}
	if parsed.FeedType != "rss" {
		return fmt.Errorf("feed type %q, want rss", parsed.FeedType)
	}
	if len(parsed.Items) != want {
		return fmt.Errorf("feed lists %d items, want %d", len(parsed.Items), want)
	}
	for i, item := range parsed.Items {
		if len(item.Enclosures) == 0 || item.Enclosures[0].URL == "" {
			return fmt.Errorf("item %d (%s) has no enclosure", i, item.GUID)
		}
	}
	return nil
}

// FormatDuration renders milliseconds as HH:MM:SS.
func FormatDuration(ms int64) string {
	total := (ms + 500) / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
