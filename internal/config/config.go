package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	TranscriberBackendHTTP        = "http"
	TranscriberBackendCloudSpeech = "cloud_speech"

	// MaxSTTRequestTimeout bounds a single batch transcription call.
	MaxSTTRequestTimeout = 10 * time.Second
)

type Config struct {
	Env                      string
	TranscribeLanguage       string
	MaxTranscribeDurationMin int
	DatabaseURL              string
	TranscriptTimezone       string
	TranscriptWebhookURL     string
	MetricsAddr              string

	DiscordToken   string
	DiscordGuildID string

	TranscriberBackend string
	STTEndpoint        string
	STTAPIKey          string
	STTAPIKeyHeader    string
	STTModelID         string
	STTRequestTimeout  time.Duration

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string

	WindowDuration              time.Duration
	TargetSampleRate            int
	MinFlushDuration            time.Duration
	ParticipantDiscoveryTimeout time.Duration
	TranscriptQueueCapacity     int
	SpeakerAMarker              string
	SpeakerBMarker              string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.MaxTranscribeDurationMin <= 0 {
		return fmt.Errorf("MAX_TRANSCRIBE_DURATION_MIN must be positive, got %d", c.MaxTranscribeDurationMin)
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	if err := c.validateTranscriber(); err != nil {
		return err
	}
	return c.validatePipeline()
}

func (c *Config) validateTranscriber() error {
	switch c.TranscriberBackend {
	case TranscriberBackendHTTP:
		if c.STTEndpoint == "" {
			return fmt.Errorf("STT_ENDPOINT is required when TRANSCRIBER_BACKEND=%s", TranscriberBackendHTTP)
		}
		if c.STTAPIKey == "" {
			return fmt.Errorf("STT_API_KEY is required when TRANSCRIBER_BACKEND=%s", TranscriberBackendHTTP)
		}
	case TranscriberBackendCloudSpeech:
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when TRANSCRIBER_BACKEND=%s", TranscriberBackendCloudSpeech)
		}
	default:
		return fmt.Errorf("TRANSCRIBER_BACKEND must be %q or %q, got %q", TranscriberBackendHTTP, TranscriberBackendCloudSpeech, c.TranscriberBackend)
	}
	if c.STTRequestTimeout <= 0 || c.STTRequestTimeout > MaxSTTRequestTimeout {
		return fmt.Errorf("STT_REQUEST_TIMEOUT must be within (0, %s], got %s", MaxSTTRequestTimeout, c.STTRequestTimeout)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WINDOW_DURATION must be positive, got %s", c.WindowDuration)
	}
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("TARGET_SAMPLE_RATE must be positive, got %d", c.TargetSampleRate)
	}
	if c.MinFlushDuration < 0 || c.MinFlushDuration > c.WindowDuration {
		return fmt.Errorf("MIN_FLUSH_DURATION must be within [0, WINDOW_DURATION], got %s", c.MinFlushDuration)
	}
	if c.ParticipantDiscoveryTimeout <= 0 {
		return fmt.Errorf("PARTICIPANT_DISCOVERY_TIMEOUT must be positive, got %s", c.ParticipantDiscoveryTimeout)
	}
	if c.TranscriptQueueCapacity <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_CAPACITY must be positive, got %d", c.TranscriptQueueCapacity)
	}
	a := strings.ToLower(strings.TrimSpace(c.SpeakerAMarker))
	b := strings.ToLower(strings.TrimSpace(c.SpeakerBMarker))
	if a == "" || b == "" {
		return fmt.Errorf("SPEAKER_A_MARKER and SPEAKER_B_MARKER are required")
	}
	if a == b {
		return fmt.Errorf("SPEAKER_A_MARKER and SPEAKER_B_MARKER must differ, both are %q", a)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "TRANSCRIBE_LANGUAGE", value: c.TranscribeLanguage},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "TRANSCRIPT_TIMEZONE", value: c.TranscriptTimezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
