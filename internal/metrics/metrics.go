package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeHTTP    = "http_error"
	OutcomeNetwork = "network_error"
	OutcomeDecode  = "decode_error"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	FramesNormalized      prometheus.Counter
	FramesDropped         prometheus.Counter
	WindowsFlushed        *prometheus.CounterVec
	TailFlushes           *prometheus.CounterVec
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	TranscriptionInFlight prometheus.Gauge
	TranscriptsEmitted    *prometheus.CounterVec
	ActiveSpeakers        prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FramesNormalized: f.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_frames_normalized_total",
			Help: "Total number of audio frames converted to canonical PCM",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "kikitori_frames_dropped_total",
			Help: "Total number of frames that normalized to an empty chunk",
		}),
		WindowsFlushed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kikitori_windows_flushed_total",
			Help: "Total number of full windows handed to transcription",
		}, []string{"speaker"}),
		TailFlushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kikitori_tail_flushes_total",
			Help: "Partial windows flushed or discarded at worker stop",
		}, []string{"speaker", "action"}),
		TranscriptionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kikitori_transcription_requests_total",
			Help: "Batch transcription requests by outcome",
		}, []string{"backend", "outcome"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kikitori_transcription_duration_seconds",
			Help:    "Latency of batch transcription requests",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 10},
		}),
		TranscriptionInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "kikitori_transcriptions_in_flight",
			Help: "Transcription requests currently outstanding",
		}),
		TranscriptsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kikitori_transcripts_emitted_total",
			Help: "Final transcripts delivered to the multiplexer",
		}, []string{"speaker"}),
		ActiveSpeakers: f.NewGauge(prometheus.GaugeOpts{
			Name: "kikitori_active_speakers",
			Help: "Speaker workers currently running",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameNormalized(empty bool) {
	if m == nil {
		return
	}
	if empty {
		m.FramesDropped.Inc()
		return
	}
	m.FramesNormalized.Inc()
}

func (m *Metrics) WindowFlushed(speaker string) {
	if m == nil {
		return
	}
	m.WindowsFlushed.WithLabelValues(speaker).Inc()
}

func (m *Metrics) TailFlush(speaker string, flushed bool) {
	if m == nil {
		return
	}
	action := "discarded"
	if flushed {
		action = "flushed"
	}
	m.TailFlushes.WithLabelValues(speaker, action).Inc()
}

func (m *Metrics) TranscriptionStarted() {
	if m == nil {
		return
	}
	m.TranscriptionInFlight.Inc()
}

func (m *Metrics) TranscriptionFinished(backend, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionInFlight.Dec()
	m.TranscriptionRequests.WithLabelValues(backend, outcome).Inc()
	m.TranscriptionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) TranscriptEmitted(speaker string) {
	if m == nil {
		return
	}
	m.TranscriptsEmitted.WithLabelValues(speaker).Inc()
}

func (m *Metrics) SpeakerStarted() {
	if m == nil {
		return
	}
	m.ActiveSpeakers.Inc()
}

func (m *Metrics) SpeakerStopped() {
	if m == nil {
		return
	}
	m.ActiveSpeakers.Dec()
}
