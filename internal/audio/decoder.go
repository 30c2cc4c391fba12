package audio

// Decoder turns one compressed transport packet into a PCM16 frame.
type Decoder interface {
	Decode(packet []byte) (Frame, error)
	Close()
}

type DecoderFactory func() (Decoder, error)
