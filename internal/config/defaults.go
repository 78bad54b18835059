package config

const (
	defaultConfigPath          = "~/.config/morgonpodd/config.toml"
	defaultWorkDir             = "~/.local/share/morgonpodd"
	defaultLogDir              = "~/.local/share/morgonpodd/logs"
	defaultAPIBind             = "127.0.0.1:7488"
	defaultPodcastTitle        = "Morgonpodd"
	defaultPodcastDescription  = "Din dagliga dos av nyheter, teknik och väder."
	defaultPodcastAuthor       = "Morgonpodd"
	defaultPodcastLanguage     = "sv"
	defaultPodcastCategory     = "News"
	defaultPodcastSlug         = "morgonpodd"
	defaultGenerateTime        = "06:00"
	defaultTimezone            = "Europe/Stockholm"
	defaultMaxEpisodeMinutes   = 12
	defaultWordsPerMinute      = 150
	defaultHighPriority        = 1
	defaultMaxRetained         = 50
	defaultIntroTemplate       = "Välkommen till {podcast_title}! Idag är det {date}."
	defaultLLMBaseURL          = "https://api.openai.com/v1"
	defaultLLMModel            = "gpt-4o-mini"
	defaultLLMTemperature      = 0.7
	defaultLLMTimeoutSeconds   = 120
	defaultLLMRetryAttempts    = 3
	defaultTTSBaseURL          = "https://api.elevenlabs.io"
	defaultTTSModelID          = "eleven_multilingual_v2"
	defaultTTSSampleRate       = 24000
	defaultMaxCharsPerChunk    = 1500
	defaultTTSConcurrency      = 3
	defaultTTSMaxAttempts      = 3
	defaultTTSRetryBaseMillis  = 1000
	defaultTTSRetryMaxMillis   = 10000
	defaultTTSTimeoutSeconds   = 60
	defaultGapMillis           = 300
	defaultDurationToleranceMS = 50
	defaultMP3Bitrate          = "128k"
	defaultEpisodePrefix       = "episodes"
	defaultFeedKey             = "feed.xml"
	defaultCacheControl        = "public, max-age=3600"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Failure policies for chunks that still fail after all render attempts.
const (
	FailurePolicySilence = "silence"
	FailurePolicyAbort   = "abort"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

const defaultSystemPrompt = "Du är en professionell AI som hjälper till att skapa naturliga samtal mellan poddvärdar på svenska."

const defaultMainPrompt = `Du skapar ett naturligt samtal mellan {host1_name} och {host2_name}, två professionella poddvärdar.

{host1_name}: {host1_personality}, {host1_style}
{host2_name}: {host2_personality}, {host2_style}

Skapa ett engagerande samtal där värdarna diskuterar dagens nyheter på ett naturligt sätt.
Samtalet ska vara cirka {target_minutes} minuter långt (ungefär {target_words} ord).`

func defaultHosts() []Host {
	return []Host{
		{Name: "Anna", Personality: "Energisk morgonvärd", Style: "varm och konversationell"},
		{Name: "Erik", Personality: "Analytisk och noggrann", Style: "informativ men lättsam"},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Podcast: Podcast{
			Title:             defaultPodcastTitle,
			Description:       defaultPodcastDescription,
			Author:            defaultPodcastAuthor,
			Language:          defaultPodcastLanguage,
			Category:          defaultPodcastCategory,
			Slug:              defaultPodcastSlug,
			GenerateTime:      defaultGenerateTime,
			Timezone:          defaultTimezone,
			MaxEpisodeMinutes: defaultMaxEpisodeMinutes,
			WordsPerMinute:    defaultWordsPerMinute,
			HighPriority:      defaultHighPriority,
			MaxRetained:       defaultMaxRetained,
		},
		Hosts: defaultHosts(),
		Prompts: Prompts{
			System: defaultSystemPrompt,
			Main:   defaultMainPrompt,
		},
		Intro: Intro{
			Template: defaultIntroTemplate,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Temperature:    defaultLLMTemperature,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			RetryAttempts:  defaultLLMRetryAttempts,
		},
		TTS: TTS{
			BaseURL:          defaultTTSBaseURL,
			ModelID:          defaultTTSModelID,
			SampleRate:       defaultTTSSampleRate,
			MaxCharsPerChunk: defaultMaxCharsPerChunk,
			Concurrency:      defaultTTSConcurrency,
			MaxAttempts:      defaultTTSMaxAttempts,
			RetryBaseMillis:  defaultTTSRetryBaseMillis,
			RetryMaxMillis:   defaultTTSRetryMaxMillis,
			FailurePolicy:    FailurePolicySilence,
			TimeoutSeconds:   defaultTTSTimeoutSeconds,
			Stability:        0.5,
			SimilarityBoost:  0.75,
			Style:            0.4,
			SpeakerBoost:     true,
		},
		Audio: Audio{
			GapMillis:           defaultGapMillis,
			DurationToleranceMS: defaultDurationToleranceMS,
			MP3Bitrate:          defaultMP3Bitrate,
			FFmpegBinary:        "ffmpeg",
			FFprobeBinary:       "ffprobe",
		},
		Storage: Storage{
			Backend:       StorageLocal,
			Region:        "auto",
			EpisodePrefix: defaultEpisodePrefix,
			FeedKey:       defaultFeedKey,
			CacheControl:  defaultCacheControl,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Published:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
