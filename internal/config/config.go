package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths groups the on-disk locations the pipeline reads and writes.
type Paths struct {
	WorkDir      string `toml:"work_dir" json:"work_dir"`
	LogDir       string `toml:"log_dir" json:"log_dir"`
	FeedState    string `toml:"feed_state" json:"feed_state"`
	MusicCatalog string `toml:"music_catalog" json:"music_catalog"`
	APIBind      string `toml:"api_bind" json:"api_bind"`
}

// Podcast holds channel metadata and episode sizing.
type Podcast struct {
	Title             string `toml:"title" json:"title"`
	Description       string `toml:"description" json:"description"`
	Author            string `toml:"author" json:"author"`
	Email             string `toml:"email" json:"email"`
	Language          string `toml:"language" json:"language"`
	Category          string `toml:"category" json:"category"`
	Explicit          bool   `toml:"explicit" json:"explicit"`
	CoverImage        string `toml:"cover_image" json:"cover_image"`
	PublicURL         string `toml:"public_url" json:"public_url"`
	Slug              string `toml:"slug" json:"slug"`
	GenerateTime      string `toml:"generate_time" json:"generate_time"`
	Timezone          string `toml:"timezone" json:"timezone"`
	MaxEpisodeMinutes int    `toml:"max_episode_minutes" json:"max_episode_minutes"`
	WordsPerMinute    int    `toml:"words_per_minute" json:"words_per_minute"`
	HighPriority      int    `toml:"high_priority" json:"high_priority"`
	MaxRetained       int    `toml:"max_retained" json:"max_retained"`
}

// Host describes one conversational persona.
type Host struct {
	Name        string `toml:"name" json:"name"`
	VoiceID     string `toml:"voice_id" json:"voice_id"`
	Personality string `toml:"personality" json:"personality"`
	Style       string `toml:"style" json:"style"`
}

// Prompts carries the script generation templates.
type Prompts struct {
	System string `toml:"system" json:"system"`
	Main   string `toml:"main" json:"main"`
}

// Intro controls the optional templated greeting spoken by the first host.
type Intro struct {
	Enabled  bool   `toml:"enabled" json:"enabled"`
	Template string `toml:"template" json:"template"`
}

// Source is one scrape target.
type Source struct {
	Name        string `toml:"name" json:"name"`
	URL         string `toml:"url" json:"url"`
	Type        string `toml:"type" json:"type"`
	Format      string `toml:"format" json:"format"`
	Selector    string `toml:"selector" json:"selector"`
	MaxItems    int    `toml:"max_items" json:"max_items"`
	Priority    int    `toml:"priority" json:"priority"`
	ExtractBody bool   `toml:"extract_body" json:"extract_body"`
}

// LLM configures the script generation API.
type LLM struct {
	APIKey         string  `toml:"api_key" json:"api_key"`
	BaseURL        string  `toml:"base_url" json:"base_url"`
	Model          string  `toml:"model" json:"model"`
	Temperature    float64 `toml:"temperature" json:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds" json:"timeout_seconds"`
	RetryAttempts  int     `toml:"retry_attempts" json:"retry_attempts"`
}

// TTS configures the speech synthesis API and the render stage.
type TTS struct {
	APIKey           string  `toml:"api_key" json:"api_key"`
	BaseURL          string  `toml:"base_url" json:"base_url"`
	ModelID          string  `toml:"model_id" json:"model_id"`
	SampleRate       int     `toml:"sample_rate" json:"sample_rate"`
	MaxCharsPerChunk int     `toml:"max_chars_per_chunk" json:"max_chars_per_chunk"`
	Concurrency      int     `toml:"concurrency" json:"concurrency"`
	MaxAttempts      int     `toml:"max_attempts" json:"max_attempts"`
	RetryBaseMillis  int     `toml:"retry_base_ms" json:"retry_base_ms"`
	RetryMaxMillis   int     `toml:"retry_max_ms" json:"retry_max_ms"`
	FailurePolicy    string  `toml:"failure_policy" json:"failure_policy"`
	TimeoutSeconds   int     `toml:"timeout_seconds" json:"timeout_seconds"`
	Stability        float64 `toml:"stability" json:"stability"`
	SimilarityBoost  float64 `toml:"similarity_boost" json:"similarity_boost"`
	Style            float64 `toml:"style" json:"style"`
	SpeakerBoost     bool    `toml:"speaker_boost" json:"speaker_boost"`
}

// Audio configures assembly and encoding.
type Audio struct {
	GapMillis           int    `toml:"gap_ms" json:"gap_ms"`
	TransitionEvery     int    `toml:"transition_every" json:"transition_every"`
	DurationToleranceMS int    `toml:"duration_tolerance_ms" json:"duration_tolerance_ms"`
	EncodeMP3           bool   `toml:"encode_mp3" json:"encode_mp3"`
	MP3Bitrate          string `toml:"mp3_bitrate" json:"mp3_bitrate"`
	FFmpegBinary        string `toml:"ffmpeg_binary" json:"ffmpeg_binary"`
	FFprobeBinary       string `toml:"ffprobe_binary" json:"ffprobe_binary"`
}

// Storage configures where the episode audio and feed document are published.
type Storage struct {
	Backend         string `toml:"backend" json:"backend"`
	LocalDir        string `toml:"local_dir" json:"local_dir"`
	Bucket          string `toml:"bucket" json:"bucket"`
	Endpoint        string `toml:"endpoint" json:"endpoint"`
	Region          string `toml:"region" json:"region"`
	AccessKeyID     string `toml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" json:"secret_access_key"`
	PublicBaseURL   string `toml:"public_base_url" json:"public_base_url"`
	EpisodePrefix   string `toml:"episode_prefix" json:"episode_prefix"`
	FeedKey         string `toml:"feed_key" json:"feed_key"`
	CacheControl    string `toml:"cache_control" json:"cache_control"`
}

// Notifications configures ntfy delivery.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" json:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout" json:"request_timeout"`
	Published      bool   `toml:"published" json:"published"`
	Errors         bool   `toml:"errors" json:"errors"`
}

// Logging configures log output.
type Logging struct {
	Format        string `toml:"format" json:"format"`
	Level         string `toml:"level" json:"level"`
	RetentionDays int    `toml:"retention_days" json:"retention_days"`
}

// Config encapsulates all configuration values for morgonpodd.
type Config struct {
	Paths         Paths         `toml:"paths" json:"paths"`
	Podcast       Podcast       `toml:"podcast" json:"podcast"`
	Hosts         []Host        `toml:"hosts" json:"hosts"`
	Prompts       Prompts       `toml:"prompts" json:"prompts"`
	Intro         Intro         `toml:"intro" json:"intro"`
	Sources       []Source      `toml:"sources" json:"sources"`
	LLM           LLM           `toml:"llm" json:"llm"`
	TTS           TTS           `toml:"tts" json:"tts"`
	Audio         Audio         `toml:"audio" json:"audio"`
	Storage       Storage       `toml:"storage" json:"storage"`
	Notifications Notifications `toml:"notifications" json:"notifications"`
	Logging       Logging       `toml:"logging" json:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads configuration from disk, applies defaults, normalizes paths, and validates values.
// It returns the resolved configuration, the path used, whether the file existed, and an error.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	// Hosts and sources are replaced wholesale when the file declares them.
	cfg.Hosts = nil
	cfg.Sources = nil

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	} else {
		if err := toml.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = defaultHosts()
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("morgonpodd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for runtime operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.LogDir, c.RunsDir(), filepath.Dir(c.Paths.FeedState)}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunsDir is the parent directory of all per-run artifact directories.
func (c *Config) RunsDir() string {
	return filepath.Join(c.Paths.WorkDir, "runs")
}

// LockPath is the single-instance lock file guarding pipeline runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, "morgonpodd.lock")
}

// LedgerPath is the SQLite run history database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.WorkDir, "runs.db")
}

// Location resolves the configured podcast timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Podcast.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WordBudget is the target spoken word count for one episode.
func (c *Config) WordBudget() int {
	return c.Podcast.MaxEpisodeMinutes * c.Podcast.WordsPerMinute
}

// VoiceMap returns the speaker name to voice ID mapping for the configured hosts.
func (c *Config) VoiceMap() map[string]string {
	voices := make(map[string]string, len(c.Hosts))
	for _, host := range c.Hosts {
		voices[host.Name] = host.VoiceID
	}
	return voices
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
