package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/metrics"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"github.com/google/uuid"
)

var (
	ErrDiscoveryTimeout  = errors.New("participant discovery timed out")
	ErrNoTrackedSpeakers = errors.New("no participant matched a speaker role")
	ErrAlreadyStarted    = errors.New("pipeline already started")
)

const (
	DefaultDiscoveryTimeout = 30 * time.Second
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultQueueCapacity    = 32
	DefaultMinFlushBytes    = 500 * audio.DefaultSampleRate * audio.BytesPerSample / 1000
	minParticipants         = 2
)

type Options struct {
	Connector    Connector
	Transcribers transcriber.Factory
	Markers      RoleMarkers

	SampleRate       int
	WindowBytes      int
	MinFlushBytes    int
	DiscoveryTimeout time.Duration
	PollInterval     time.Duration
	QueueCapacity    int

	Metrics *metrics.Metrics
}

type trackedSpeaker struct {
	speaker  Speaker
	identity string
}

// Pipeline runs one session: it connects the room, waits for participants,
// starts a SpeakerWorker per tracked role and exposes their merged output.
// A Pipeline can be started once.
type Pipeline struct {
	opts  Options
	runID string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	workers []*SpeakerWorker
}

func NewPipeline(opts Options) *Pipeline {
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.DefaultSampleRate
	}
	if opts.WindowBytes <= 0 {
		opts.WindowBytes = audio.DefaultWindowBytes
	}
	if opts.MinFlushBytes < 0 {
		opts.MinFlushBytes = DefaultMinFlushBytes
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.Markers == (RoleMarkers{}) {
		opts.Markers = DefaultRoleMarkers()
	}
	return &Pipeline{
		opts:  opts,
		runID: uuid.NewString(),
		done:  make(chan struct{}),
	}
}

func (p *Pipeline) RunID() string {
	return p.runID
}

// Start connects and discovers participants, then returns the transcript
// stream. The stream closes after Stop once in-flight transcriptions have
// drained. Cancelling ctx aborts the stream and stops the run.
func (p *Pipeline) Start(ctx context.Context) (<-chan Transcript, error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	p.started = true
	p.mu.Unlock()

	out, err := p.start(ctx)
	if err != nil {
		close(p.done)
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) start(ctx context.Context) (<-chan Transcript, error) {
	log := slog.With("run_id", p.runID)

	room, err := p.opts.Connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect room: %w", err)
	}

	participants, err := p.discover(ctx, room)
	if err != nil {
		_ = room.Close()
		return nil, err
	}

	tracked := assignRoles(participants, p.opts.Markers)
	frames := make(map[Speaker]<-chan audio.Frame, len(tracked))
	for _, ts := range tracked {
		ch, err := room.AudioFrames(ts.identity)
		if err != nil {
			log.Warn("audio track unavailable; speaker not tracked", "speaker", ts.speaker.String(), "identity", ts.identity, "error", err)
			continue
		}
		frames[ts.speaker] = ch
	}
	if len(frames) == 0 {
		_ = room.Close()
		return nil, ErrNoTrackedSpeakers
	}

	stt, err := p.opts.Transcribers()
	if err != nil {
		_ = room.Close()
		return nil, fmt.Errorf("create transcriber: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	mux := NewMultiplexer(p.opts.QueueCapacity)
	mux.Acquire()

	p.mu.Lock()
	p.cancel = cancel
	for _, ts := range tracked {
		ch, ok := frames[ts.speaker]
		if !ok {
			continue
		}
		mux.Acquire()
		w := newSpeakerWorker(workerConfig{
			speaker:       ts.speaker,
			identity:      ts.identity,
			windowBytes:   p.opts.WindowBytes,
			minFlushBytes: p.opts.MinFlushBytes,
			sampleRate:    p.opts.SampleRate,
			transcriber:   stt,
			mux:           mux,
			metrics:       p.opts.Metrics,
		})
		p.workers = append(p.workers, w)
		go w.Run(runCtx, ch)
	}
	p.mu.Unlock()
	mux.Release()

	go func() {
		select {
		case <-ctx.Done():
			log.Info("consumer cancelled; aborting pipeline", "reason", ctx.Err())
			mux.Abort()
			cancel()
		case <-mux.Closed():
		}
	}()

	go func() {
		<-mux.Closed()
		cancel()
		if err := stt.Close(); err != nil {
			log.Warn("failed to close transcriber", "error", err)
		}
		if err := room.Close(); err != nil {
			log.Warn("failed to close room", "error", err)
		}
		log.Info("pipeline finished")
		close(p.done)
	}()

	log.Info("pipeline started", "speakers", len(frames))
	return mux.Output(), nil
}

// Stop stops accepting frames. Workers flush eligible tails and the output
// closes once every outstanding transcription has finished.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Done is closed when the run has fully shut down or failed to start.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) Workers() []*SpeakerWorker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*SpeakerWorker(nil), p.workers...)
}

func (p *Pipeline) discover(ctx context.Context, room Room) ([]Participant, error) {
	deadline := time.NewTimer(p.opts.DiscoveryTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		participants := room.Participants()
		if len(participants) >= minParticipants {
			slog.Info("participants discovered", "run_id", p.runID, "count", len(participants))
			return participants, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %d of %d participants after %s", ErrDiscoveryTimeout, len(participants), minParticipants, p.opts.DiscoveryTimeout)
		case <-ticker.C:
		}
	}
}

// assignRoles maps participants to roles. When two identities resolve to
// the same role the lexicographically first one wins.
func assignRoles(participants []Participant, markers RoleMarkers) []trackedSpeaker {
	ids := make([]string, 0, len(participants))
	for _, pt := range participants {
		ids = append(ids, pt.Identity)
	}
	sort.Strings(ids)

	var tracked []trackedSpeaker
	taken := make(map[Speaker]bool, 2)
	for _, id := range ids {
		speaker, ok := ResolveSpeaker(id, markers)
		if !ok {
			slog.Debug("participant not tracked", "identity", id)
			continue
		}
		if taken[speaker] {
			slog.Warn("duplicate speaker role; ignoring participant", "speaker", speaker.String(), "identity", id)
			continue
		}
		taken[speaker] = true
		tracked = append(tracked, trackedSpeaker{speaker: speaker, identity: id})
	}
	return tracked
}
