package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"morgonpodd/internal/config"
)

const userAgent = "morgonpodd/1.0"

// Event identifies a notification type.
type Event string

const (
	EventEpisodePublished Event = "episode_published"
	EventRunFailed        Event = "run_failed"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
// A bare topic name is published to ntfy.sh.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		topic = "https://ntfy.sh/" + strings.TrimLeft(topic, "/")
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	label := strings.TrimSpace(cfg.Podcast.Title)
	if label == "" {
		label = "Morgonpodd"
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		label:     label,
		published: cfg.Notifications.Published,
		errors:    cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	label     string
	published bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventEpisodePublished:
		if !n.published {
			return message{}, false
		}
		title := n.label + " - Episode Published"
		body := fmt.Sprintf("🎙️ %s", payload.text("title"))
		if d := payload.text("duration"); d != "" {
			body += fmt.Sprintf(" (%s)", d)
		}
		if issues := payload.text("issues"); issues != "" && issues != "0" {
			title += " (with issues)"
			body += fmt.Sprintf("\n%s issue(s) recorded", issues)
		}
		if url := payload.text("url"); url != "" {
			body += "\n" + url
		}
		return message{title: title, body: body, tags: []string{"morgonpodd", "episode", "published"}}, true
	case EventRunFailed:
		if !n.errors {
			return message{}, false
		}
		body := "❌ Run failed"
		if stage := payload.text("stage"); stage != "" {
			body += " at " + stage
		}
		body += ": " + orDefault(payload.text("error"), "unknown")
		if run := payload.text("runID"); run != "" {
			body += "\nRun: " + run
		}
		return message{title: n.label + " - Run Failed", body: body, tags: []string{"morgonpodd", "run", "failed"}, priority: "high"}, true
	case EventError:
		if !n.errors {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		builder.WriteString(orDefault(payload.text("error"), "unknown"))
		return message{title: n.label + " - Error", body: builder.String(), tags: []string{"morgonpodd", "error", "alert"}, priority: "high"}, true
	case EventTest:
		return message{title: n.label + " - Test", body: "🧪 Notification system test", tags: []string{"morgonpodd", "test"}, priority: "low"}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
