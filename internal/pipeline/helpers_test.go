package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/kikitori/internal/audio"
)

const testRate = 16000

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// monoFrame is 10ms of constant-valued mono PCM at 16 kHz.
func monoFrame(value int16) audio.Frame {
	samples := make([]int16, testRate/100)
	for i := range samples {
		samples[i] = value
	}
	return audio.Frame{SampleRate: testRate, Channels: 1, Format: audio.SampleFormatS16, Samples: samples}
}

func feed(frames chan<- audio.Frame, value int16, d time.Duration) {
	for range int(d / (10 * time.Millisecond)) {
		frames <- monoFrame(value)
	}
}

func collect(t *testing.T, out <-chan Transcript, timeout time.Duration) []Transcript {
	t.Helper()
	var got []Transcript
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case tr, ok := <-out:
			if !ok {
				return got
			}
			got = append(got, tr)
		case <-timer.C:
			t.Fatalf("output did not close within %s; received %d transcripts", timeout, len(got))
		}
	}
}

type transcribeCall struct {
	bytes      int
	firstValue int16
}

// fakeTranscriber names each window after its first sample value.
type fakeTranscriber struct {
	mu     sync.Mutex
	calls  []transcribeCall
	delay  func(firstValue int16) time.Duration
	empty  func(call int) bool
	closed bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) string {
	if len(pcm) == 0 {
		return ""
	}
	first := int16(binary.LittleEndian.Uint16(pcm))
	f.mu.Lock()
	f.calls = append(f.calls, transcribeCall{bytes: len(pcm), firstValue: first})
	n := len(f.calls)
	f.mu.Unlock()

	if f.delay != nil {
		time.Sleep(f.delay(first))
	}
	if f.empty != nil && f.empty(n) {
		return ""
	}
	return fmt.Sprintf("value-%d", first)
}

func (f *fakeTranscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTranscriber) Calls() []transcribeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcribeCall(nil), f.calls...)
}

func (f *fakeTranscriber) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeRoom struct {
	mu           sync.Mutex
	participants []Participant
	streams      map[string]chan audio.Frame
	closed       bool
}

func newFakeRoom(identities ...string) *fakeRoom {
	r := &fakeRoom{streams: map[string]chan audio.Frame{}}
	for _, id := range identities {
		r.join(id)
	}
	return r
}

func (r *fakeRoom) join(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = append(r.participants, Participant{ID: identity, Identity: identity})
	r.streams[identity] = make(chan audio.Frame)
}

func (r *fakeRoom) stream(identity string) chan audio.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[identity]
}

func (r *fakeRoom) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Participant(nil), r.participants...)
}

func (r *fakeRoom) AudioFrames(identity string) (<-chan audio.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.streams[identity]
	if !ok {
		return nil, errors.New("unknown participant")
	}
	return ch, nil
}

func (r *fakeRoom) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRoom) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
