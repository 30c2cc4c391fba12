package audio

// SpeakerBuffer accumulates normalized PCM for one speaker until a window of
// exactly target bytes is available.
//
// A SpeakerBuffer has a single owner and is not safe for concurrent use.
type SpeakerBuffer struct {
	target int
	acc    []byte
}

func NewSpeakerBuffer(target int) *SpeakerBuffer {
	if target <= 0 {
		target = DefaultWindowBytes
	}
	return &SpeakerBuffer{
		target: target,
		acc:    make([]byte, 0, target),
	}
}

// Append adds chunk and returns a full window when one is available. The
// returned slice is exactly Target bytes and owned by the caller; any bytes
// past the window boundary stay buffered as the start of the next window.
//
// A single chunk can carry more than one window of audio. Callers drain the
// extra windows by calling Append(nil) until it reports false.
func (b *SpeakerBuffer) Append(chunk []byte) ([]byte, bool) {
	b.acc = append(b.acc, chunk...)
	if len(b.acc) < b.target {
		return nil, false
	}
	window := make([]byte, b.target)
	copy(window, b.acc[:b.target])

	overflow := len(b.acc) - b.target
	next := make([]byte, overflow, max(b.target, overflow))
	copy(next, b.acc[b.target:])
	b.acc = next
	return window, true
}

// Remainder hands out the partial window and leaves the buffer empty.
func (b *SpeakerBuffer) Remainder() []byte {
	tail := b.acc
	b.acc = make([]byte, 0, b.target)
	return tail
}

func (b *SpeakerBuffer) Len() int {
	return len(b.acc)
}

func (b *SpeakerBuffer) Target() int {
	return b.target
}
