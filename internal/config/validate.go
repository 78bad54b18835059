package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// RequiredHosts is the number of host personas the dialogue format supports.
const RequiredHosts = 2

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePodcast(); err != nil {
		return err
	}
	if err := c.validateHosts(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePodcast() error {
	if c.Podcast.Title == "" {
		return errors.New("podcast.title must be set")
	}
	if _, err := language.Parse(c.Podcast.Language); err != nil {
		return fmt.Errorf("podcast.language %q is not a valid language tag: %w", c.Podcast.Language, err)
	}
	if _, err := time.Parse("15:04", c.Podcast.GenerateTime); err != nil {
		return fmt.Errorf("podcast.generate_time must use HH:MM, got %q", c.Podcast.GenerateTime)
	}
	if _, err := time.LoadLocation(c.Podcast.Timezone); err != nil {
		return fmt.Errorf("podcast.timezone %q: %w", c.Podcast.Timezone, err)
	}
	if c.Podcast.MaxEpisodeMinutes <= 0 {
		return errors.New("podcast.max_episode_minutes must be positive")
	}
	if c.Podcast.MaxRetained < 1 {
		return errors.New("podcast.max_retained must be at least 1")
	}
	if c.Podcast.HighPriority < 0 {
		return errors.New("podcast.high_priority must be zero or positive")
	}
	for _, r := range c.Podcast.Slug {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return fmt.Errorf("podcast.slug %q may only contain a-z, 0-9 and '-'", c.Podcast.Slug)
		}
	}
	return nil
}

func (c *Config) validateHosts() error {
	if len(c.Hosts) != RequiredHosts {
		return fmt.Errorf("hosts must define exactly %d entries, got %d", RequiredHosts, len(c.Hosts))
	}
	seen := make(map[string]struct{}, len(c.Hosts))
	for i, host := range c.Hosts {
		if host.Name == "" {
			return fmt.Errorf("hosts[%d].name must be set", i)
		}
		if strings.ContainsAny(host.Name, ":\n") {
			return fmt.Errorf("hosts[%d].name must not contain ':' or newlines", i)
		}
		key := strings.ToLower(host.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("hosts[%d].name %q is duplicated", i, host.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (c *Config) validateSources() error {
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d].name must be set", i)
		}
		parsed, err := url.Parse(src.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("sources[%d].url must be an absolute URL", i)
		}
		switch src.Format {
		case "html", "rss":
		default:
			return fmt.Errorf("sources[%d].format must be html or rss", i)
		}
	}
	return nil
}

func (c *Config) validateTTS() error {
	if c.TTS.MaxCharsPerChunk < 100 {
		return errors.New("tts.max_chars_per_chunk must be at least 100")
	}
	if c.TTS.Concurrency < 1 || c.TTS.Concurrency > 8 {
		return errors.New("tts.concurrency must be between 1 and 8")
	}
	if c.TTS.MaxAttempts < 1 {
		return errors.New("tts.max_attempts must be at least 1")
	}
	if c.TTS.RetryBaseMillis < 0 || c.TTS.RetryMaxMillis < 0 {
		return errors.New("tts retry delays must not be negative")
	}
	switch c.TTS.SampleRate {
	case 16000, 22050, 24000, 44100:
	default:
		return fmt.Errorf("tts.sample_rate %d is not supported", c.TTS.SampleRate)
	}
	switch c.TTS.FailurePolicy {
	case FailurePolicySilence, FailurePolicyAbort:
	default:
		return fmt.Errorf("tts.failure_policy must be %q or %q", FailurePolicySilence, FailurePolicyAbort)
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.GapMillis < 0 {
		return errors.New("audio.gap_ms must not be negative")
	}
	if c.Audio.TransitionEvery < 0 {
		return errors.New("audio.transition_every must not be negative")
	}
	if c.Audio.DurationToleranceMS <= 0 {
		return errors.New("audio.duration_tolerance_ms must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set for the local backend")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set for the s3 backend")
		}
		if c.Storage.PublicBaseURL == "" {
			return errors.New("storage.public_base_url (or podcast.public_url) must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q", StorageLocal, StorageS3)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
