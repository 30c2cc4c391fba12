package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/metrics"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"github.com/google/uuid"
)

const (
	backendHTTP           = "http"
	defaultRequestTimeout = 10 * time.Second
	maxErrorBodyBytes     = 512
)

type HTTPBatchConfig struct {
	Endpoint     string
	APIKey       string
	APIKeyHeader string
	ModelID      string
	LanguageCode string
	Timeout      time.Duration
	Metrics      *metrics.Metrics
}

// HTTPBatchTranscriber posts one WAV window per request as multipart form
// data with fields audio, model_id and language_code, and reads the "text"
// field of the JSON response.
type HTTPBatchTranscriber struct {
	cfg    HTTPBatchConfig
	client *http.Client
}

type batchResponse struct {
	Text *string `json:"text"`
}

func NewHTTPBatchTranscriber(cfg HTTPBatchConfig) transcriber.Transcriber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "xi-api-key"
	}
	return &HTTPBatchTranscriber{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (t *HTTPBatchTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) string {
	if len(pcm) == 0 {
		slog.Debug("skipping transcription of empty window")
		return ""
	}
	requestID := uuid.NewString()
	started := time.Now()
	t.cfg.Metrics.TranscriptionStarted()

	text, outcome, err := t.do(ctx, requestID, pcm, sampleRate)
	t.cfg.Metrics.TranscriptionFinished(backendHTTP, outcome, time.Since(started))

	switch outcome {
	case metrics.OutcomeSuccess:
		slog.Debug("window transcribed", "request_id", requestID, "window_bytes", len(pcm), "text_length", len(text), "elapsed", time.Since(started))
	case metrics.OutcomeEmpty:
		slog.Debug("no speech transcribed in window", "request_id", requestID, "window_bytes", len(pcm))
	case metrics.OutcomeHTTP:
		slog.Error("transcription service returned error status", "request_id", requestID, "error", err)
	default:
		slog.Warn("transcription request failed", "request_id", requestID, "outcome", outcome, "error", err)
	}
	return text
}

func (t *HTTPBatchTranscriber) do(ctx context.Context, requestID string, pcm []byte, sampleRate int) (string, string, error) {
	body, contentType, err := t.multipartBody(pcm, sampleRate)
	if err != nil {
		return "", metrics.OutcomeNetwork, fmt.Errorf("build multipart body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, body)
	if err != nil {
		return "", metrics.OutcomeNetwork, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if t.cfg.APIKey != "" {
		req.Header.Set(t.cfg.APIKeyHeader, t.cfg.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", metrics.OutcomeNetwork, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if !isHTTPSuccessStatus(resp.StatusCode) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", metrics.OutcomeHTTP, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", metrics.OutcomeDecode, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Text == nil {
		return "", metrics.OutcomeDecode, errors.New("response has no text field")
	}
	text := strings.TrimSpace(*parsed.Text)
	if text == "" {
		return "", metrics.OutcomeEmpty, nil
	}
	return text, metrics.OutcomeSuccess, nil
}

func (t *HTTPBatchTranscriber) multipartBody(pcm []byte, sampleRate int) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("audio", "window.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio.EncodeWAV(pcm, sampleRate)); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("model_id", t.cfg.ModelID); err != nil {
		return nil, "", err
	}
	if t.cfg.LanguageCode != "" {
		if err := mw.WriteField("language_code", t.cfg.LanguageCode); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// Close releases pooled connections. In-flight requests are not interrupted.
func (t *HTTPBatchTranscriber) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
