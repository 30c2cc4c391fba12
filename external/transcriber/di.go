package transcriber

import (
	"context"
	"fmt"

	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/metrics"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Factory, error) {
		c := do.MustInvoke[*config.Config](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		return NewFactory(c, m)
	})
}

// NewFactory selects the backend named by TRANSCRIBER_BACKEND. Each call of
// the returned factory opens a fresh client owned by one pipeline run.
func NewFactory(c *config.Config, m *metrics.Metrics) (transcriber.Factory, error) {
	switch c.TranscriberBackend {
	case config.TranscriberBackendHTTP:
		return func() (transcriber.Transcriber, error) {
			return NewHTTPBatchTranscriber(HTTPBatchConfig{
				Endpoint:     c.STTEndpoint,
				APIKey:       c.STTAPIKey,
				APIKeyHeader: c.STTAPIKeyHeader,
				ModelID:      c.STTModelID,
				LanguageCode: c.TranscribeLanguage,
				Timeout:      c.STTRequestTimeout,
				Metrics:      m,
			}), nil
		}, nil
	case config.TranscriberBackendCloudSpeech:
		return func() (transcriber.Transcriber, error) {
			return NewCloudSpeechTranscriber(context.Background(), CloudSpeechConfig{
				ProjectID:       c.GoogleCloudProjectID,
				CredentialsJSON: c.GoogleCloudCredentialsJSON,
				Language:        c.TranscribeLanguage,
				Location:        c.GoogleCloudSpeechLocation,
				Model:           c.GoogleCloudSpeechModel,
				Timeout:         c.STTRequestTimeout,
				Metrics:         m,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown transcriber backend %q", c.TranscriberBackend)
	}
}
