package transcriber

import "context"

// Transcriber turns one window of mono PCM16 into text.
//
// Transcribe never returns an error: empty input, transport failures,
// non-2xx responses and unusable bodies all yield "" and are logged by the
// implementation. Implementations are safe for concurrent use and hold a
// connection pool until Close.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) string
	Close() error
}

// Factory builds a Transcriber owned by a single pipeline run.
type Factory func() (Transcriber, error)
