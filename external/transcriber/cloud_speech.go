package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/metrics"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	backendCloudSpeech    = "cloud_speech"
	speechAPIEndpointPort = 443
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
	Timeout         time.Duration
	Metrics         *metrics.Metrics
}

// CloudSpeechTranscriber sends each window as a synchronous Recognize call
// against the project's default recognizer.
type CloudSpeechTranscriber struct {
	client     *speech.Client
	recognizer string
	language   string
	model      string
	timeout    time.Duration
	metrics    *metrics.Metrics
}

func NewCloudSpeechTranscriber(ctx context.Context, cfg CloudSpeechConfig) (transcriber.Transcriber, error) {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	slog.Info("cloud speech transcriber ready", "location", location, "model", cfg.Model, "language", cfg.Language)
	return &CloudSpeechTranscriber{
		client:     client,
		recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", cfg.ProjectID, location),
		language:   cfg.Language,
		model:      strings.TrimSpace(cfg.Model),
		timeout:    cfg.Timeout,
		metrics:    cfg.Metrics,
	}, nil
}

func (t *CloudSpeechTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) string {
	if len(pcm) == 0 {
		return ""
	}
	requestID := uuid.NewString()
	started := time.Now()
	t.metrics.TranscriptionStarted()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	text, err := t.recognize(ctx, pcm, sampleRate)
	outcome := classifyCloudSpeechOutcome(text, err)
	t.metrics.TranscriptionFinished(backendCloudSpeech, outcome, time.Since(started))

	switch outcome {
	case metrics.OutcomeSuccess:
		slog.Debug("window transcribed", "request_id", requestID, "window_bytes", len(pcm), "text_length", len(text), "elapsed", time.Since(started))
	case metrics.OutcomeEmpty:
		slog.Debug("no speech transcribed in window", "request_id", requestID, "window_bytes", len(pcm))
	case metrics.OutcomeHTTP:
		slog.Error("cloud speech rejected window", "request_id", requestID, "code", status.Code(err).String(), "error", err)
	default:
		slog.Warn("cloud speech request failed", "request_id", requestID, "outcome", outcome, "error", err)
	}
	return text
}

func (t *CloudSpeechTranscriber) recognize(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Recognizer: t.recognizer,
		Config: &speechpb.RecognitionConfig{
			Model:         t.model,
			LanguageCodes: []string{t.language},
			DecodingConfig: &speechpb.RecognitionConfig_AutoDecodingConfig{
				AutoDecodingConfig: &speechpb.AutoDetectDecodingConfig{},
			},
			Features: &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{
			Content: audio.EncodeWAV(pcm, sampleRate),
		},
	})
	if err != nil {
		return "", err
	}
	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if s := strings.TrimSpace(alts[0].GetTranscript()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}

func (t *CloudSpeechTranscriber) Close() error {
	return t.client.Close()
}

// classifyCloudSpeechOutcome maps gRPC status codes onto the same outcome
// labels the HTTP backend reports.
func classifyCloudSpeechOutcome(text string, err error) string {
	if err == nil {
		if text == "" {
			return metrics.OutcomeEmpty
		}
		return metrics.OutcomeSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return metrics.OutcomeNetwork
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Unknown:
		return metrics.OutcomeNetwork
	case codes.Internal, codes.DataLoss:
		return metrics.OutcomeDecode
	default:
		return metrics.OutcomeHTTP
	}
}
