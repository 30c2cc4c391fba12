package pipeline

import "sync"

// Multiplexer fans transcripts from every producer into one bounded channel.
//
// Producers register with Acquire and leave with Release. The output channel
// closes once the last registered producer releases, so in-flight
// transcriptions drain before the consumer sees the end of the stream.
type Multiplexer struct {
	out     chan Transcript
	aborted chan struct{}
	closed  chan struct{}

	abortOnce sync.Once
	mu        sync.Mutex
	producers int
	finished  bool
}

func NewMultiplexer(capacity int) *Multiplexer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Multiplexer{
		out:     make(chan Transcript, capacity),
		aborted: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Acquire registers a producer. It reports false once the output is closed.
func (m *Multiplexer) Acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return false
	}
	m.producers++
	return true
}

func (m *Multiplexer) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished || m.producers == 0 {
		return
	}
	m.producers--
	if m.producers == 0 {
		m.finished = true
		close(m.out)
		close(m.closed)
	}
}

// Submit blocks while the queue is full. It returns false if the consumer
// aborted before the transcript could be queued.
func (m *Multiplexer) Submit(t Transcript) bool {
	select {
	case <-m.aborted:
		return false
	default:
	}
	select {
	case m.out <- t:
		return true
	case <-m.aborted:
		return false
	}
}

// Abort unblocks producers when the consumer stops reading.
func (m *Multiplexer) Abort() {
	m.abortOnce.Do(func() { close(m.aborted) })
}

func (m *Multiplexer) Output() <-chan Transcript {
	return m.out
}

// Closed is closed together with the output channel.
func (m *Multiplexer) Closed() <-chan struct{} {
	return m.closed
}
