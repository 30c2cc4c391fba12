package audio

import (
	"bytes"
	"testing"
)

func sequentialBytes(start, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(start + i)
	}
	return b
}

func TestSpeakerBuffer_FlushesOnlyAtTarget(t *testing.T) {
	buf := NewSpeakerBuffer(10)

	if _, ok := buf.Append(sequentialBytes(0, 4)); ok {
		t.Fatal("did not expect a window after 4 bytes")
	}
	if _, ok := buf.Append(sequentialBytes(4, 5)); ok {
		t.Fatal("did not expect a window after 9 bytes")
	}
	window, ok := buf.Append(sequentialBytes(9, 1))
	if !ok {
		t.Fatal("expected a window at exactly 10 bytes")
	}
	if !bytes.Equal(window, sequentialBytes(0, 10)) {
		t.Fatalf("unexpected window: %v", window)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer after exact flush, got %d", buf.Len())
	}
}

func TestSpeakerBuffer_CarriesOverflowIntoNextWindow(t *testing.T) {
	buf := NewSpeakerBuffer(10)
	buf.Append(sequentialBytes(0, 7))

	window, ok := buf.Append(sequentialBytes(7, 6))
	if !ok {
		t.Fatal("expected a window after overshoot")
	}
	if !bytes.Equal(window, sequentialBytes(0, 10)) {
		t.Fatalf("unexpected window: %v", window)
	}
	if buf.Len() != 3 {
		t.Fatalf("expected 3 overflow bytes, got %d", buf.Len())
	}

	next, ok := buf.Append(sequentialBytes(13, 7))
	if !ok {
		t.Fatal("expected second window")
	}
	if !bytes.Equal(next, sequentialBytes(10, 10)) {
		t.Fatalf("overflow was not carried forward intact: %v", next)
	}
}

func TestSpeakerBuffer_NoLossNoDuplication(t *testing.T) {
	const target = 64
	buf := NewSpeakerBuffer(target)
	var input, output []byte
	sizes := []int{1, 7, 63, 64, 65, 128, 3, 200, 5}
	offset := 0
	for _, size := range sizes {
		chunk := sequentialBytes(offset, size)
		offset += size
		input = append(input, chunk...)
		for w, ok := buf.Append(chunk); ok; w, ok = buf.Append(nil) {
			if len(w) != target {
				t.Fatalf("window length %d, want %d", len(w), target)
			}
			output = append(output, w...)
		}
	}
	if len(output)%target != 0 {
		t.Fatalf("emitted bytes %d are not whole windows", len(output))
	}
	if len(output)+buf.Len() != len(input) {
		t.Fatalf("emitted %d + buffered %d != appended %d", len(output), buf.Len(), len(input))
	}
	output = append(output, buf.Remainder()...)
	if !bytes.Equal(output, input) {
		t.Fatal("windows plus remainder do not reproduce the appended stream")
	}
}

func TestSpeakerBuffer_OversizedChunkDrainsMultipleWindows(t *testing.T) {
	buf := NewSpeakerBuffer(4)

	var windows [][]byte
	for w, ok := buf.Append(sequentialBytes(0, 11)); ok; w, ok = buf.Append(nil) {
		windows = append(windows, w)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if buf.Len() != 3 {
		t.Fatalf("expected 3 bytes left, got %d", buf.Len())
	}
}

func TestSpeakerBuffer_WindowDoesNotAliasBuffer(t *testing.T) {
	buf := NewSpeakerBuffer(4)
	window, _ := buf.Append([]byte{1, 2, 3, 4, 5})
	buf.Append([]byte{9, 9, 9})

	if !bytes.Equal(window, []byte{1, 2, 3, 4}) {
		t.Fatalf("window was mutated by later appends: %v", window)
	}
}

func TestSpeakerBuffer_RemainderResets(t *testing.T) {
	buf := NewSpeakerBuffer(10)
	buf.Append([]byte{1, 2, 3})

	tail := buf.Remainder()
	if !bytes.Equal(tail, []byte{1, 2, 3}) {
		t.Fatalf("unexpected remainder: %v", tail)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d", buf.Len())
	}
}

func TestNewSpeakerBuffer_DefaultTarget(t *testing.T) {
	buf := NewSpeakerBuffer(0)
	if buf.Target() != 160000 {
		t.Fatalf("expected default target 160000, got %d", buf.Target())
	}
}
