package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/metrics"
	"github.com/foxseedlab/kikitori/internal/transcriber"
)

type WorkerState int32

const (
	StateIdle WorkerState = iota
	StateAccumulating
	StateFlushing
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type workerConfig struct {
	speaker       Speaker
	identity      string
	windowBytes   int
	minFlushBytes int
	sampleRate    int
	transcriber   transcriber.Transcriber
	mux           *Multiplexer
	metrics       *metrics.Metrics
}

// SpeakerWorker owns one speaker's buffer. Full windows are transcribed in
// their own goroutines so accumulation never waits on the network, while a
// completion chain keeps that speaker's transcripts in window order.
type SpeakerWorker struct {
	cfg        workerConfig
	normalizer *audio.Normalizer
	buffer     *audio.SpeakerBuffer

	state       atomic.Int32
	outstanding atomic.Int64

	// Only touched by the Run goroutine.
	seq  int
	prev chan struct{}
}

// newSpeakerWorker expects the caller to have acquired a multiplexer
// registration on the worker's behalf; Run releases it on return.
func newSpeakerWorker(cfg workerConfig) *SpeakerWorker {
	return &SpeakerWorker{
		cfg:        cfg,
		normalizer: audio.NewNormalizer(cfg.sampleRate),
		buffer:     audio.NewSpeakerBuffer(cfg.windowBytes),
	}
}

func (w *SpeakerWorker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Outstanding is the number of windows whose transcription has not finished.
func (w *SpeakerWorker) Outstanding() int {
	return int(w.outstanding.Load())
}

// Run consumes frames until ctx is cancelled or the frame channel closes.
// Transcriptions already started keep running on a context detached from
// ctx and are bounded by the transcriber's own timeout.
func (w *SpeakerWorker) Run(ctx context.Context, frames <-chan audio.Frame) {
	defer w.cfg.mux.Release()
	w.cfg.metrics.SpeakerStarted()
	defer w.cfg.metrics.SpeakerStopped()

	taskCtx := context.WithoutCancel(ctx)
	slog.Info("speaker worker started", "speaker", w.cfg.speaker.String(), "identity", w.cfg.identity, "window_bytes", w.buffer.Target())

	for {
		select {
		case <-ctx.Done():
			w.stop(taskCtx, "pipeline stopped")
			return
		case frame, ok := <-frames:
			if !ok {
				w.stop(taskCtx, "participant disconnected")
				return
			}
			w.handleFrame(taskCtx, frame)
		}
	}
}

func (w *SpeakerWorker) handleFrame(ctx context.Context, frame audio.Frame) {
	chunk := w.normalizer.Normalize(frame)
	w.cfg.metrics.FrameNormalized(len(chunk) == 0)
	if len(chunk) == 0 {
		return
	}
	w.state.Store(int32(StateAccumulating))

	window, full := w.buffer.Append(chunk)
	for full {
		w.flush(ctx, window)
		window, full = w.buffer.Append(nil)
	}
}

func (w *SpeakerWorker) flush(ctx context.Context, window []byte) {
	w.state.Store(int32(StateFlushing))
	w.cfg.metrics.WindowFlushed(w.cfg.speaker.String())
	w.dispatch(ctx, window)
	w.state.Store(int32(StateAccumulating))
}

func (w *SpeakerWorker) dispatch(ctx context.Context, window []byte) {
	if !w.cfg.mux.Acquire() {
		slog.Warn("multiplexer closed; dropping window", "speaker", w.cfg.speaker.String())
		return
	}
	w.seq++
	seq := w.seq
	capturedAt := time.Now()
	prev := w.prev
	done := make(chan struct{})
	w.prev = done
	w.outstanding.Add(1)

	go func() {
		defer w.cfg.mux.Release()
		defer w.outstanding.Add(-1)
		defer close(done)

		text := w.cfg.transcriber.Transcribe(ctx, window, w.cfg.sampleRate)
		if prev != nil {
			<-prev
		}
		if text == "" {
			return
		}
		t := Transcript{
			Text:       text,
			Speaker:    w.cfg.speaker,
			Identity:   w.cfg.identity,
			Sequence:   seq,
			CapturedAt: capturedAt,
			IsFinal:    true,
		}
		if !w.cfg.mux.Submit(t) {
			slog.Debug("transcript dropped after consumer aborted", "speaker", w.cfg.speaker.String(), "sequence", seq)
			return
		}
		w.cfg.metrics.TranscriptEmitted(w.cfg.speaker.String())
	}()
}

func (w *SpeakerWorker) stop(ctx context.Context, reason string) {
	tail := w.buffer.Len()
	flushed := tail > 0 && tail >= w.cfg.minFlushBytes
	if flushed {
		w.flush(ctx, w.buffer.Remainder())
	} else {
		w.buffer.Remainder()
	}
	if tail > 0 {
		w.cfg.metrics.TailFlush(w.cfg.speaker.String(), flushed)
	}
	w.state.Store(int32(StateStopped))
	slog.Info("speaker worker stopped",
		"speaker", w.cfg.speaker.String(),
		"identity", w.cfg.identity,
		"reason", reason,
		"windows", w.seq,
		"tail_bytes", tail,
		"tail_flushed", flushed,
	)
}
