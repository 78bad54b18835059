package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"morgonpodd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// API keys are cleared so nothing reaches a real service by accident.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.FeedState = filepath.Join(base, "work", "feed_state.json")
	cfgVal.Paths.MusicCatalog = filepath.Join(base, "music", "catalog.yaml")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Storage.LocalDir = filepath.Join(base, "public")
	cfgVal.Podcast.PublicURL = "https://podd.example.com"
	cfgVal.Storage.PublicBaseURL = "https://podd.example.com"
	cfgVal.Hosts[0].VoiceID = "voice-anna"
	cfgVal.Hosts[1].VoiceID = "voice-erik"
	cfgVal.LLM.APIKey = ""
	cfgVal.TTS.APIKey = ""
	cfgVal.TTS.RetryBaseMillis = 1
	cfgVal.TTS.RetryMaxMillis = 2
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLLM points the script API at baseURL with a test key.
func WithLLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = "test"
		b.cfg.LLM.BaseURL = baseURL
	}
}

// WithTTS points the speech API at baseURL with a test key.
func WithTTS(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TTS.APIKey = "test"
		b.cfg.TTS.BaseURL = baseURL
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
