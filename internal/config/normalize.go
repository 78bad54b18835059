package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultSourceSelector = "h2"
	defaultSourceMaxItems = 5
	defaultSourcePriority = 3
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePodcast()
	c.normalizeHosts()
	c.normalizeSources()
	c.normalizeLLM()
	c.normalizeTTS()
	c.normalizeAudio()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.FeedState) == "" {
		c.Paths.FeedState = filepath.Join(c.Paths.WorkDir, "feed_state.json")
	}
	if c.Paths.FeedState, err = expandPath(c.Paths.FeedState); err != nil {
		return fmt.Errorf("paths.feed_state: %w", err)
	}
	if strings.TrimSpace(c.Paths.MusicCatalog) == "" {
		c.Paths.MusicCatalog = filepath.Join(c.Paths.WorkDir, "music", "catalog.yaml")
	}
	if c.Paths.MusicCatalog, err = expandPath(c.Paths.MusicCatalog); err != nil {
		return fmt.Errorf("paths.music_catalog: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizePodcast() {
	c.Podcast.Title = strings.TrimSpace(c.Podcast.Title)
	if value, ok := os.LookupEnv("PODCAST_TITLE"); ok && strings.TrimSpace(value) != "" {
		c.Podcast.Title = strings.TrimSpace(value)
	}
	if c.Podcast.Author == "" {
		if value, ok := os.LookupEnv("PODCAST_AUTHOR"); ok {
			c.Podcast.Author = strings.TrimSpace(value)
		}
	}
	if c.Podcast.Email == "" {
		if value, ok := os.LookupEnv("PODCAST_EMAIL"); ok {
			c.Podcast.Email = strings.TrimSpace(value)
		}
	}
	if c.Podcast.PublicURL == "" {
		if value, ok := os.LookupEnv("CLOUDFLARE_R2_PUBLIC_URL"); ok {
			c.Podcast.PublicURL = strings.TrimSpace(value)
		}
	}
	c.Podcast.PublicURL = strings.TrimRight(strings.TrimSpace(c.Podcast.PublicURL), "/")
	c.Podcast.Language = strings.TrimSpace(c.Podcast.Language)
	if c.Podcast.Language == "" {
		c.Podcast.Language = defaultPodcastLanguage
	}
	c.Podcast.Slug = strings.ToLower(strings.TrimSpace(c.Podcast.Slug))
	if c.Podcast.Slug == "" {
		c.Podcast.Slug = defaultPodcastSlug
	}
	c.Podcast.GenerateTime = strings.TrimSpace(c.Podcast.GenerateTime)
	if c.Podcast.GenerateTime == "" {
		c.Podcast.GenerateTime = defaultGenerateTime
	}
	c.Podcast.Timezone = strings.TrimSpace(c.Podcast.Timezone)
	if c.Podcast.Timezone == "" {
		c.Podcast.Timezone = defaultTimezone
	}
	if c.Podcast.WordsPerMinute <= 0 {
		c.Podcast.WordsPerMinute = defaultWordsPerMinute
	}
	if c.Podcast.MaxRetained == 0 {
		c.Podcast.MaxRetained = defaultMaxRetained
	}
}

func (c *Config) normalizeHosts() {
	for i := range c.Hosts {
		c.Hosts[i].Name = strings.TrimSpace(c.Hosts[i].Name)
		c.Hosts[i].VoiceID = strings.TrimSpace(c.Hosts[i].VoiceID)
		c.Hosts[i].Personality = strings.TrimSpace(c.Hosts[i].Personality)
		c.Hosts[i].Style = strings.TrimSpace(c.Hosts[i].Style)
	}
	if c.Prompts.System = strings.TrimSpace(c.Prompts.System); c.Prompts.System == "" {
		c.Prompts.System = defaultSystemPrompt
	}
	if c.Prompts.Main = strings.TrimSpace(c.Prompts.Main); c.Prompts.Main == "" {
		c.Prompts.Main = defaultMainPrompt
	}
	if c.Intro.Template = strings.TrimSpace(c.Intro.Template); c.Intro.Template == "" {
		c.Intro.Template = defaultIntroTemplate
	}
}

func (c *Config) normalizeSources() {
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		src.URL = strings.TrimSpace(src.URL)
		src.Type = strings.ToLower(strings.TrimSpace(src.Type))
		if src.Type == "" {
			src.Type = "news"
		}
		src.Format = strings.ToLower(strings.TrimSpace(src.Format))
		if src.Format == "" {
			src.Format = "html"
		}
		src.Selector = strings.TrimSpace(src.Selector)
		if src.Selector == "" && src.Format == "html" {
			src.Selector = defaultSourceSelector
		}
		if src.MaxItems <= 0 {
			src.MaxItems = defaultSourceMaxItems
		}
		if src.Priority <= 0 {
			src.Priority = defaultSourcePriority
		}
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeTTS() {
	if c.TTS.APIKey == "" {
		if value, ok := os.LookupEnv("ELEVENLABS_API_KEY"); ok {
			c.TTS.APIKey = strings.TrimSpace(value)
		}
	}
	c.TTS.BaseURL = strings.TrimRight(strings.TrimSpace(c.TTS.BaseURL), "/")
	if c.TTS.BaseURL == "" {
		c.TTS.BaseURL = defaultTTSBaseURL
	}
	if c.TTS.ModelID = strings.TrimSpace(c.TTS.ModelID); c.TTS.ModelID == "" {
		c.TTS.ModelID = defaultTTSModelID
	}
	c.TTS.FailurePolicy = strings.ToLower(strings.TrimSpace(c.TTS.FailurePolicy))
	if c.TTS.FailurePolicy == "" {
		c.TTS.FailurePolicy = FailurePolicySilence
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
	fallback := ""
	if value, ok := os.LookupEnv("ELEVENLABS_VOICE_ID"); ok {
		fallback = strings.TrimSpace(value)
	}
	for i := range c.Hosts {
		if c.Hosts[i].VoiceID == "" {
			c.Hosts[i].VoiceID = fallback
		}
	}
}

func (c *Config) normalizeAudio() {
	if c.Audio.FFmpegBinary = strings.TrimSpace(c.Audio.FFmpegBinary); c.Audio.FFmpegBinary == "" {
		c.Audio.FFmpegBinary = "ffmpeg"
	}
	if c.Audio.FFprobeBinary = strings.TrimSpace(c.Audio.FFprobeBinary); c.Audio.FFprobeBinary == "" {
		c.Audio.FFprobeBinary = "ffprobe"
	}
	if c.Audio.MP3Bitrate = strings.TrimSpace(c.Audio.MP3Bitrate); c.Audio.MP3Bitrate == "" {
		c.Audio.MP3Bitrate = defaultMP3Bitrate
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	if c.Storage.Backend == StorageLocal && strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = filepath.Join(c.Paths.WorkDir, "public")
	}
	if c.Storage.LocalDir != "" {
		var err error
		if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
			return fmt.Errorf("storage.local_dir: %w", err)
		}
	}
	if c.Storage.AccessKeyID == "" {
		if value, ok := os.LookupEnv("R2_ACCESS_KEY_ID"); ok {
			c.Storage.AccessKeyID = strings.TrimSpace(value)
		}
	}
	if c.Storage.SecretAccessKey == "" {
		if value, ok := os.LookupEnv("R2_SECRET_ACCESS_KEY"); ok {
			c.Storage.SecretAccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.Bucket == "" {
		if value, ok := os.LookupEnv("R2_BUCKET_NAME"); ok {
			c.Storage.Bucket = strings.TrimSpace(value)
		}
	}
	if c.Storage.Endpoint == "" {
		if value, ok := os.LookupEnv("R2_ENDPOINT_URL"); ok {
			c.Storage.Endpoint = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Storage.Region) == "" {
		c.Storage.Region = "auto"
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	if c.Storage.PublicBaseURL == "" {
		c.Storage.PublicBaseURL = c.Podcast.PublicURL
	}
	c.Storage.EpisodePrefix = strings.Trim(strings.TrimSpace(c.Storage.EpisodePrefix), "/")
	if c.Storage.FeedKey = strings.TrimLeft(strings.TrimSpace(c.Storage.FeedKey), "/"); c.Storage.FeedKey == "" {
		c.Storage.FeedKey = defaultFeedKey
	}
	if strings.TrimSpace(c.Storage.CacheControl) == "" {
		c.Storage.CacheControl = defaultCacheControl
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
