// Package audio converts transport frames into the canonical waveform
// used for transcription: mono, 16-bit little-endian PCM at a fixed rate.
package audio

import "time"

type SampleFormat int

const (
	SampleFormatS16 SampleFormat = iota
	SampleFormatF32
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatS16:
		return "s16"
	case SampleFormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// Frame is one short block of interleaved samples as delivered by the
// transport. Samples holds Channels values per sample instant.
type Frame struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
	Samples    []int16
}

const (
	BytesPerSample     = 2
	WAVHeaderSize      = 44
	DefaultSampleRate  = 16000
	DefaultWindowBytes = 5 * DefaultSampleRate * BytesPerSample
)

// PCMBytes returns the byte length of d worth of mono PCM16 at sampleRate.
func PCMBytes(d time.Duration, sampleRate int) int {
	samples := int64(d) * int64(sampleRate) / int64(time.Second)
	return int(samples) * BytesPerSample
}

// PCMDuration is the inverse of PCMBytes.
func PCMDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := int64(n / BytesPerSample)
	return time.Duration(samples * int64(time.Second) / int64(sampleRate))
}
