package pipeline

import (
	"context"
	"log/slog"
	"time"

	"morgonpodd/internal/audio"
	"morgonpodd/internal/config"
	"morgonpodd/internal/media/ffprobe"
	"morgonpodd/internal/notifications"
	"morgonpodd/internal/runlog"
	"morgonpodd/internal/scrape"
	"morgonpodd/internal/script"
	"morgonpodd/internal/services/elevenlabs"
	"morgonpodd/internal/services/llm"
	"morgonpodd/internal/storage"
)

// LLMClient builds the script API client from cfg.
func LLMClient(cfg *config.Config) *llm.Client {
	opts := []llm.Option{}
	if cfg.LLM.RetryAttempts > 0 {
		opts = append(opts, llm.WithRetryMaxAttempts(cfg.LLM.RetryAttempts))
	}
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, opts...)
}

// SpeechClient builds the speech API client from cfg.
func SpeechClient(cfg *config.Config) *elevenlabs.Client {
	return elevenlabs.New(elevenlabs.Config{
		APIKey:         cfg.TTS.APIKey,
		BaseURL:        cfg.TTS.BaseURL,
		ModelID:        cfg.TTS.ModelID,
		SampleRate:     cfg.TTS.SampleRate,
		TimeoutSeconds: cfg.TTS.TimeoutSeconds,
		Voice: elevenlabs.VoiceSettings{
			Stability:       cfg.TTS.Stability,
			SimilarityBoost: cfg.TTS.SimilarityBoost,
			Style:           cfg.TTS.Style,
			UseSpeakerBoost: cfg.TTS.SpeakerBoost,
		},
	})
}

// FFprobeDuration returns a Prober backed by the configured ffprobe binary.
func FFprobeDuration(binary string) Prober {
	return func(ctx context.Context, path string) (int64, error) {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		result, err := ffprobe.Inspect(ctx, binary, path)
		if err != nil {
			return 0, err
		}
		return result.DurationMillis(), nil
	}
}

// NewFromConfig wires the production collaborators. ledger may be nil.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, ledger *runlog.Store) (*Orchestrator, error) {
	uploader, err := storage.New(cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, Deps{
		Scraper:   scrape.New(logger),
		Generator: script.NewGenerator(cfg, LLMClient(cfg), logger),
		Synth:     SpeechClient(cfg),
		Uploader:  uploader,
		Ledger:    ledger,
		Notifier:  notifications.NewService(cfg),
		Decoder:   audio.FFmpegDecoder{Binary: cfg.Audio.FFmpegBinary},
		Encoder:   audio.MP3Encoder{Binary: cfg.Audio.FFmpegBinary, Bitrate: cfg.Audio.MP3Bitrate},
		Prober:    FFprobeDuration(cfg.Audio.FFprobeBinary),
		Logger:    logger,
	})
}
