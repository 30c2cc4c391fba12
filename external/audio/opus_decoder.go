//go:build opus

package audio

import (
	"fmt"

	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/hraban/opus"
)

const (
	sampleRate = 48000
	channels   = 2
	// Discord never sends frames longer than 120ms.
	maxFrameMs      = 120
	maxFrameSamples = sampleRate * maxFrameMs * channels / 1000
)

type opusDecoder struct {
	dec *opus.Decoder
	pcm []int16
}

func NewOpusDecoder() (audio.Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, pcm: make([]int16, maxFrameSamples)}, nil
}

func (d *opusDecoder) Decode(packet []byte) (audio.Frame, error) {
	if len(packet) == 0 {
		return audio.Frame{SampleRate: sampleRate, Channels: channels, Format: audio.SampleFormatS16}, nil
	}
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("decode opus packet: %w", err)
	}
	samples := make([]int16, n*channels)
	copy(samples, d.pcm[:n*channels])
	return audio.Frame{
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     audio.SampleFormatS16,
		Samples:    samples,
	}, nil
}

func (d *opusDecoder) Close() {
	d.dec = nil
}
