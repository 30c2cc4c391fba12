package audio

import (
	"encoding/binary"
	"testing"
)

func decodePCM16(t *testing.T, b []byte) []int16 {
	t.Helper()
	if len(b)%2 != 0 {
		t.Fatalf("pcm length must be even, got %d", len(b))
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestNormalize_EmptyFrame(t *testing.T) {
	n := NewNormalizer(16000)

	got := n.Normalize(Frame{SampleRate: 48000, Channels: 2})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected non-nil empty chunk, got %v", got)
	}
	again := n.Normalize(Frame{SampleRate: 48000, Channels: 2})
	if len(again) != 0 {
		t.Fatalf("expected empty chunk on repeat, got %d bytes", len(again))
	}
}

func TestNormalize_MalformedFramesReturnEmpty(t *testing.T) {
	n := NewNormalizer(16000)
	cases := map[string]Frame{
		"zero rate":      {SampleRate: 0, Channels: 1, Samples: []int16{1, 2}},
		"three channels": {SampleRate: 48000, Channels: 3, Samples: []int16{1, 2, 3}},
		"odd stereo":     {SampleRate: 48000, Channels: 2, Samples: []int16{1, 2, 3}},
		"float format":   {SampleRate: 48000, Channels: 1, Format: SampleFormatF32, Samples: []int16{1}},
		"zero channels":  {SampleRate: 48000, Channels: 0, Samples: []int16{1}},
		"negative rate":  {SampleRate: -16000, Channels: 1, Samples: []int16{1}},
	}
	for name, frame := range cases {
		if got := n.Normalize(frame); len(got) != 0 {
			t.Fatalf("%s: expected empty chunk, got %d bytes", name, len(got))
		}
	}
}

func TestNormalize_PassThroughAtTargetRate(t *testing.T) {
	n := NewNormalizer(16000)
	in := []int16{0, 100, -100, 32767, -32768}

	got := decodePCM16(t, n.Normalize(Frame{SampleRate: 16000, Channels: 1, Samples: in}))
	if len(got) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(got))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, in[i], got[i])
		}
	}
}

func TestNormalize_StereoAveragesChannels(t *testing.T) {
	n := NewNormalizer(16000)
	in := []int16{100, 300, -100, -301, 32767, 32767}

	got := decodePCM16(t, n.Normalize(Frame{SampleRate: 16000, Channels: 2, Samples: in}))
	want := []int16{200, -200, 32767}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestNormalize_48kStereoFrameTo16kMono(t *testing.T) {
	n := NewNormalizer(16000)
	// 20ms at 48kHz stereo, as delivered by an opus decoder.
	samples := make([]int16, 960*2)
	for i := range 960 {
		samples[2*i] = int16(i % 3 * 30)
		samples[2*i+1] = int16(i % 3 * 30)
	}

	out := n.Normalize(Frame{SampleRate: 48000, Channels: 2, Samples: samples})
	if len(out) != 320*2 {
		t.Fatalf("expected 640 bytes, got %d", len(out))
	}
	got := decodePCM16(t, out)
	for i, s := range got {
		if s != 30 {
			t.Fatalf("sample %d: expected block average 30, got %d", i, s)
		}
	}
}

func TestNormalize_NonIntegerRatioUsesInterpolation(t *testing.T) {
	n := NewNormalizer(16000)
	samples := make([]int16, 441)
	for i := range samples {
		samples[i] = 1000
	}

	got := decodePCM16(t, n.Normalize(Frame{SampleRate: 44100, Channels: 1, Samples: samples}))
	if len(got) != 160 {
		t.Fatalf("expected 160 samples, got %d", len(got))
	}
	for i, s := range got {
		if s != 1000 {
			t.Fatalf("sample %d: expected 1000, got %d", i, s)
		}
	}
}

func TestNormalize_UpsamplesLowerRate(t *testing.T) {
	n := NewNormalizer(16000)

	got := decodePCM16(t, n.Normalize(Frame{SampleRate: 8000, Channels: 1, Samples: []int16{0, 100, 200}}))
	want := []int16{0, 50, 100, 150, 200, 200}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestNormalize_IsDeterministic(t *testing.T) {
	n := NewNormalizer(16000)
	frame := Frame{SampleRate: 48000, Channels: 2, Samples: []int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}}

	a := n.Normalize(frame)
	b := n.Normalize(frame)
	if string(a) != string(b) {
		t.Fatal("expected identical output for identical frames")
	}
}
