package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"morgonpodd/internal/config"
	"morgonpodd/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventEpisodePublished, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "episode published",
			event: notifications.EventEpisodePublished,
			payload: notifications.Payload{
				"title":    "Morgonpodd onsdag 14 oktober 2026",
				"duration": "00:11:42",
				"url":      "https://podd.example.com/episodes/morgonpodd-20261014.mp3",
				"issues":   0,
			},
			expectTitle:   "Morgonpodd - Episode Published",
			expectMessage: "🎙️ Morgonpodd onsdag 14 oktober 2026 (00:11:42)\nhttps://podd.example.com/episodes/morgonpodd-20261014.mp3",
			expectTags:    "morgonpodd,episode,published",
		},
		{
			name:  "episode published with issues",
			event: notifications.EventEpisodePublished,
			payload: notifications.Payload{
				"title":  "Morgonpodd",
				"issues": 2,
			},
			expectTitle:   "Morgonpodd - Episode Published (with issues)",
			expectMessage: "🎙️ Morgonpodd\n2 issue(s) recorded",
			expectTags:    "morgonpodd,episode,published",
		},
		{
			name:  "run failed",
			event: notifications.EventRunFailed,
			payload: notifications.Payload{
				"stage": "render",
				"error": "no chunk rendered",
				"runID": "20261014T040000Z",
			},
			expectTitle:    "Morgonpodd - Run Failed",
			expectMessage:  "❌ Run failed at render: no chunk rendered\nRun: 20261014T040000Z",
			expectTags:     "morgonpodd,run,failed",
			expectPriority: "high",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "schedule",
				"error":   "lock held",
			},
			expectTitle:    "Morgonpodd - Error",
			expectMessage:  "❌ Error with schedule: lock held",
			expectTags:     "morgonpodd,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Morgonpodd - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "morgonpodd,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsEventToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Published = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{
		notifications.EventEpisodePublished,
		notifications.EventRunFailed,
		notifications.EventError,
		notifications.Event("unknown"),
	} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}
