// Package elevenlabs is a minimal single-shot client for the ElevenLabs
// text-to-speech API. It performs exactly one HTTP request per call and
// classifies failures; retry policy belongs to the caller.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "https://api.elevenlabs.io"
	defaultModelID    = "eleven_multilingual_v2"
	defaultTimeout    = 60 * time.Second
	defaultSampleRate = 24000
	maxErrorBody      = 2048
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("elevenlabs: api key required")

// VoiceSettings mirrors the voice_settings request object.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Config captures the runtime settings for the speech API.
type Config struct {
	APIKey         string
	BaseURL        string
	ModelID        string
	SampleRate     int
	TimeoutSeconds int
	Voice          VoiceSettings
}

// Client issues text-to-speech requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a client.
func New(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ModelID = strings.TrimSpace(cfg.ModelID); cfg.ModelID == "" {
		cfg.ModelID = defaultModelID
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// SampleRate is the PCM rate requested from the API.
func (c *Client) SampleRate() int {
	return c.cfg.SampleRate
}

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Body       string
	RequestID  string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("elevenlabs: http %d", e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.RequestID != "" {
		msg += " (request_id=" + e.RequestID + ")"
	}
	return msg
}

// Retryable reports whether err is worth another attempt: 408, 429, 5xx and
// network timeouts. Cancellation is never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}

// RetryAfter extracts a server-requested delay from err, if any.
func RetryAfter(err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return 0
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize renders text with the given voice and returns raw 16-bit
// little-endian mono PCM at SampleRate.
func (c *Client) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voice id required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: text required")
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_%d",
		c.cfg.BaseURL, url.PathEscape(voiceID), c.cfg.SampleRate)
	encoded, err := json.Marshal(synthesisRequest{Text: text, ModelID: c.cfg.ModelID, VoiceSettings: c.cfg.Voice})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: new request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/pcm")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: http error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(audio) < 2 {
		return nil, &StatusError{StatusCode: http.StatusBadGateway, Body: "empty audio response", RequestID: resp.Header.Get("request-id")}
	}
	return audio, nil
}

// HealthCheck verifies the API key by fetching the account record.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	return c.get(ctx, "/v1/user")
}

// CheckVoice verifies that a voice id exists for this account.
func (c *Client) CheckVoice(ctx context.Context, voiceID string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	return c.get(ctx, "/v1/voices/"+url.PathEscape(strings.TrimSpace(voiceID)))
}

func (c *Client) get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("elevenlabs: new request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs: http error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RequestID:  resp.Header.Get("request-id"),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
