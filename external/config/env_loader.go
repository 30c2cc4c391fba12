package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/kikitori/internal/config"
)

type envConfig struct {
	Env                      string `env:"ENV" envDefault:"production"`
	TranscribeLanguage       string `env:"TRANSCRIBE_LANGUAGE,required"`
	MaxTranscribeDurationMin int    `env:"MAX_TRANSCRIBE_DURATION_MIN" envDefault:"120"`
	DatabaseURL              string `env:"DATABASE_URL,required"`
	TranscriptTimezone       string `env:"TRANSCRIPT_TIMEZONE" envDefault:"Asia/Tokyo"`
	TranscriptWebhookURL     string `env:"TRANSCRIPT_WEBHOOK_URL"`
	MetricsAddr              string `env:"METRICS_ADDR" envDefault:":9090"`

	DiscordToken   string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID string `env:"DISCORD_GUILD_ID,required"`

	TranscriberBackend string        `env:"TRANSCRIBER_BACKEND" envDefault:"http"`
	STTEndpoint        string        `env:"STT_ENDPOINT" envDefault:"https://api.elevenlabs.io/v1/speech-to-text"`
	STTAPIKey          string        `env:"STT_API_KEY"`
	STTAPIKeyHeader    string        `env:"STT_API_KEY_HEADER" envDefault:"xi-api-key"`
	STTModelID         string        `env:"STT_MODEL_ID" envDefault:"scribe_v1"`
	STTRequestTimeout  time.Duration `env:"STT_REQUEST_TIMEOUT" envDefault:"10s"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"asia-northeast1"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`

	WindowDuration              time.Duration `env:"WINDOW_DURATION" envDefault:"5s"`
	TargetSampleRate            int           `env:"TARGET_SAMPLE_RATE" envDefault:"16000"`
	MinFlushDuration            time.Duration `env:"MIN_FLUSH_DURATION" envDefault:"500ms"`
	ParticipantDiscoveryTimeout time.Duration `env:"PARTICIPANT_DISCOVERY_TIMEOUT" envDefault:"30s"`
	TranscriptQueueCapacity     int           `env:"TRANSCRIPT_QUEUE_CAPACITY" envDefault:"32"`
	SpeakerAMarker              string        `env:"SPEAKER_A_MARKER" envDefault:"interviewer"`
	SpeakerBMarker              string        `env:"SPEAKER_B_MARKER" envDefault:"candidate"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                         raw.Env,
		TranscribeLanguage:          raw.TranscribeLanguage,
		MaxTranscribeDurationMin:    raw.MaxTranscribeDurationMin,
		DatabaseURL:                 raw.DatabaseURL,
		TranscriptTimezone:          raw.TranscriptTimezone,
		TranscriptWebhookURL:        raw.TranscriptWebhookURL,
		MetricsAddr:                 raw.MetricsAddr,
		DiscordToken:                raw.DiscordToken,
		DiscordGuildID:              raw.DiscordGuildID,
		TranscriberBackend:          raw.TranscriberBackend,
		STTEndpoint:                 raw.STTEndpoint,
		STTAPIKey:                   raw.STTAPIKey,
		STTAPIKeyHeader:             raw.STTAPIKeyHeader,
		STTModelID:                  raw.STTModelID,
		STTRequestTimeout:           raw.STTRequestTimeout,
		GoogleCloudProjectID:        raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON:  raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:   raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:      raw.GoogleCloudSpeechModel,
		WindowDuration:              raw.WindowDuration,
		TargetSampleRate:            raw.TargetSampleRate,
		MinFlushDuration:            raw.MinFlushDuration,
		ParticipantDiscoveryTimeout: raw.ParticipantDiscoveryTimeout,
		TranscriptQueueCapacity:     raw.TranscriptQueueCapacity,
		SpeakerAMarker:              raw.SpeakerAMarker,
		SpeakerBMarker:              raw.SpeakerBMarker,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
