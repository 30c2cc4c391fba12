package discord

import (
	"errors"
	"testing"
	"time"

	"github.com/foxseedlab/kikitori/internal/audio"
)

type stubDecoder struct {
	closed bool
}

func (d *stubDecoder) Decode(packet []byte) (audio.Frame, error) {
	if packet[0] == 0xff {
		return audio.Frame{}, errors.New("corrupt packet")
	}
	return audio.Frame{
		SampleRate: 48000,
		Channels:   2,
		Format:     audio.SampleFormatS16,
		Samples:    []int16{int16(packet[0]), int16(packet[0])},
	}, nil
}

func (d *stubDecoder) Close() { d.closed = true }

func newTestRoom(t *testing.T) (*voiceRoom, *int) {
	t.Helper()
	created := 0
	c := &Client{
		decoders: func() (audio.Decoder, error) {
			created++
			return &stubDecoder{}, nil
		},
		frameQueue: 4,
	}
	r := newVoiceRoom(c, "guild-1", "vc-1")
	r.rememberName("user-1", "Interviewer Alice")
	r.rememberName("user-2", "Candidate Bob")
	return r, &created
}

func receiveFrame(t *testing.T, ch <-chan audio.Frame) audio.Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			t.Fatal("stream closed unexpectedly")
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
	}
	return audio.Frame{}
}

func expectClosed(t *testing.T, ch <-chan audio.Frame) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected stream to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("stream was not closed")
	}
}

func TestVoiceRoom_RoutesPacketsBySSRC(t *testing.T) {
	r, created := newTestRoom(t)
	defer r.Close()

	alice, err := r.AudioFrames("Interviewer Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bob, err := r.AudioFrames("Candidate Bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.trackSSRC(100, "user-1")
	r.trackSSRC(200, "user-2")

	r.dispatch(100, []byte{1})
	r.dispatch(200, []byte{2})
	r.dispatch(100, []byte{3})

	if f := receiveFrame(t, alice); f.Samples[0] != 1 {
		t.Fatalf("unexpected first alice frame: %v", f.Samples)
	}
	if f := receiveFrame(t, alice); f.Samples[0] != 3 {
		t.Fatalf("unexpected second alice frame: %v", f.Samples)
	}
	if f := receiveFrame(t, bob); f.Samples[0] != 2 {
		t.Fatalf("unexpected bob frame: %v", f.Samples)
	}
	if *created != 2 {
		t.Fatalf("expected one decoder per ssrc, got %d", *created)
	}
}

func TestVoiceRoom_DropsUnknownAndCorruptPackets(t *testing.T) {
	r, created := newTestRoom(t)
	defer r.Close()

	alice, _ := r.AudioFrames("Interviewer Alice")
	r.trackSSRC(100, "user-1")
	r.trackSSRC(300, "user-3")

	r.dispatch(999, []byte{9})
	r.dispatch(300, []byte{9})
	r.dispatch(100, []byte{0xff})
	r.dispatch(100, []byte{4})

	if f := receiveFrame(t, alice); f.Samples[0] != 4 {
		t.Fatalf("unexpected frame: %v", f.Samples)
	}
	if *created != 1 {
		t.Fatalf("expected decoder only for the tracked ssrc, got %d", *created)
	}
}

func TestVoiceRoom_UnknownIdentity(t *testing.T) {
	r, _ := newTestRoom(t)
	defer r.Close()

	if _, err := r.AudioFrames("nobody"); err == nil {
		t.Fatal("expected error for unknown identity")
	}
}

func TestVoiceRoom_LeaveClosesOnlyThatStream(t *testing.T) {
	r, _ := newTestRoom(t)
	defer r.Close()

	alice, _ := r.AudioFrames("Interviewer Alice")
	bob, _ := r.AudioFrames("Candidate Bob")
	r.trackSSRC(200, "user-2")

	r.participantLeft("user-1")
	expectClosed(t, alice)

	r.dispatch(200, []byte{5})
	if f := receiveFrame(t, bob); f.Samples[0] != 5 {
		t.Fatalf("unexpected frame: %v", f.Samples)
	}
}

func TestVoiceRoom_CloseEndsAllStreams(t *testing.T) {
	r, _ := newTestRoom(t)

	alice, _ := r.AudioFrames("Interviewer Alice")
	bob, _ := r.AudioFrames("Candidate Bob")
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	expectClosed(t, alice)
	expectClosed(t, bob)

	if err := r.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if _, err := r.AudioFrames("Interviewer Alice"); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestVoiceRoom_DuplicateDisplayNameKeepsFirstUser(t *testing.T) {
	r, _ := newTestRoom(t)
	defer r.Close()

	r.rememberName("user-9", "Interviewer Alice")
	if got := r.identities["Interviewer Alice"]; got != "user-1" {
		t.Fatalf("expected first user to keep identity, got %s", got)
	}
}
