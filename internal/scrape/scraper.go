package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"morgonpodd/internal/config"
	"morgonpodd/internal/logging"
	"morgonpodd/internal/services"
)

const (
	defaultTimeout   = 10 * time.Second
	maxDocumentBytes = 5 << 20
	minTitleRunes    = 10
	maxBodyRunes     = 1200
	userAgent        = "morgonpodd/1.0"
)

// Scraper fetches configured sources over HTTP.
type Scraper struct {
	client      *http.Client
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scraper) {
		if client != nil {
			s.client = client
		}
	}
}

// WithClock overrides the timestamp source for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Scraper.
func New(logger *slog.Logger, opts ...Option) *Scraper {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scraper{
		client:      &http.Client{Timeout: defaultTimeout},
		logger:      logging.NewComponentLogger(logger, "scraper"),
		now:         time.Now,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape fetches every source and returns items ordered by priority, then by
// configured source order.
func (s *Scraper) Scrape(ctx context.Context, sources []config.Source) ([]SourceItem, []SourceError) {
	logger := logging.WithContext(ctx, s.logger)
	results := make([][]SourceItem, len(sources))
	failures := make([]*SourceError, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			items, err := s.scrapeSource(gctx, src)
			if err != nil {
				failures[i] = &SourceError{Source: src.Name, URL: src.URL, Error: err.Error()}
				logging.WarnWithContext(logger, "source scrape failed", "source_failed",
					logging.String("source", src.Name),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the source URL and selector"),
					logging.String(logging.FieldImpact, "source contributes no items to today's episode"),
				)
				return nil
			}
			results[i] = items
			logger.Info("source scraped",
				logging.String("source", src.Name),
				logging.Int("items", len(items)),
			)
			return nil
		})
	}
	_ = g.Wait()

	var items []SourceItem
	for _, batch := range results {
		items = append(items, batch...)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Priority < items[j].Priority })

	var errs []SourceError
	for _, f := range failures {
		if f != nil {
			errs = append(errs, *f)
		}
	}
	return items, errs
}

func (s *Scraper) scrapeSource(ctx context.Context, src config.Source) ([]SourceItem, error) {
	body, err := s.fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(src.URL)

	var items []SourceItem
	switch src.Format {
	case "rss":
		items, err = s.parseFeed(body, src)
	default:
		items, err = s.parseHTML(body, base, src)
	}
	if err != nil {
		return nil, err
	}
	if src.ExtractBody {
		for i := range items {
			if items[i].Link == "" || items[i].Body != "" {
				continue
			}
			if text, err := s.extractArticle(ctx, items[i].Link); err == nil {
				items[i].Body = text
			} else {
				s.logger.Debug("article extraction failed", logging.String("link", items[i].Link), logging.Error(err))
			}
		}
	}
	return items, nil
}

func (s *Scraper) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrSource, "scrape", "build request", target, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrSource, "scrape", "fetch", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrSource, "scrape", "fetch", fmt.Sprintf("%s returned %s", target, resp.Status), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrSource, "scrape", "read body", target, err)
	}
	return body, nil
}

func (s *Scraper) parseHTML(body []byte, base *url.URL, src config.Source) ([]SourceItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrSource, "scrape", "parse html", src.Name, err)
	}
	fetched := s.now().UTC()
	seen := make(map[string]struct{})
	var items []SourceItem
	doc.Find(src.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := collapseSpace(sel.Text())
		if utf8.RuneCountInString(title) <= minTitleRunes {
			return true
		}
		if _, dup := seen[title]; dup {
			return true
		}
		seen[title] = struct{}{}
		items = append(items, SourceItem{
			Title:      title,
			Link:       resolveLink(base, linkFor(sel)),
			SourceName: src.Name,
			SourceType: src.Type,
			Priority:   src.Priority,
			FetchedAt:  fetched,
		})
		return len(items) < src.MaxItems
	})
	return items, nil
}

func (s *Scraper) parseFeed(body []byte, src config.Source) ([]SourceItem, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrSource, "scrape", "parse feed", src.Name, err)
	}
	fetched := s.now().UTC()
	var items []SourceItem
	for _, entry := range feed.Items {
		if len(items) >= src.MaxItems {
			break
		}
		title := collapseSpace(entry.Title)
		if title == "" {
			continue
		}
		items = append(items, SourceItem{
			Title:      title,
			Body:       truncateRunes(htmlText(entry.Description), maxBodyRunes),
			Link:       entry.Link,
			SourceName: src.Name,
			SourceType: src.Type,
			Priority:   src.Priority,
			FetchedAt:  fetched,
		})
	}
	return items, nil
}

func (s *Scraper) extractArticle(ctx context.Context, link string) (string, error) {
	body, err := s.fetch(ctx, link)
	if err != nil {
		return "", err
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", fmt.Errorf("extract article: %w", err)
	}
	return truncateRunes(collapseSpace(article.TextContent), maxBodyRunes), nil
}

func linkFor(sel *goquery.Selection) string {
	if href, ok := sel.Attr("href"); ok {
		return href
	}
	if href, ok := sel.Find("a[href]").First().Attr("href"); ok {
		return href
	}
	if href, ok := sel.Closest("a[href]").Attr("href"); ok {
		return href
	}
	return ""
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func htmlText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return collapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if idx := strings.LastIndexAny(cut, ".!?"); idx > limit/2 {
		return cut[:idx+1]
	}
	return strings.TrimSpace(cut) + "…"
}
