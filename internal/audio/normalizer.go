package audio

import (
	"encoding/binary"
	"log/slog"
)

// Normalizer converts transport frames into mono PCM16 at TargetRate.
//
// Stereo input is mixed down by averaging left and right (truncated toward
// zero). When the source rate is an integer multiple of the target rate each
// block of rate/target samples is averaged; any other ratio is resampled by
// linear interpolation. Every frame is processed independently, so the same
// frame always yields the same bytes.
type Normalizer struct {
	TargetRate int
}

func NewNormalizer(targetRate int) *Normalizer {
	if targetRate <= 0 {
		targetRate = DefaultSampleRate
	}
	return &Normalizer{TargetRate: targetRate}
}

// Normalize never fails: malformed or empty frames produce an empty chunk.
func (n *Normalizer) Normalize(frame Frame) []byte {
	if len(frame.Samples) == 0 {
		return []byte{}
	}
	if reason := malformedReason(frame); reason != "" {
		slog.Warn("dropping malformed audio frame",
			"reason", reason,
			"sample_rate", frame.SampleRate,
			"channels", frame.Channels,
			"format", frame.Format.String(),
			"samples", len(frame.Samples))
		return []byte{}
	}
	mono := downmix(frame.Samples, frame.Channels)
	resampled := resample(mono, frame.SampleRate, n.TargetRate)
	return encodePCM16(resampled)
}

func malformedReason(frame Frame) string {
	switch {
	case frame.Format != SampleFormatS16:
		return "unsupported sample format"
	case frame.SampleRate <= 0:
		return "non-positive sample rate"
	case frame.Channels != 1 && frame.Channels != 2:
		return "unsupported channel count"
	case len(frame.Samples)%frame.Channels != 0:
		return "sample count is not a multiple of channel count"
	default:
		return ""
	}
}

func downmix(samples []int16, channels int) []int16 {
	if channels == 1 {
		return samples
	}
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		mono[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
	}
	return mono
}

func resample(samples []int16, from, to int) []int16 {
	if from == to {
		return samples
	}
	if from > to && from%to == 0 {
		return decimate(samples, from/to)
	}
	return interpolate(samples, from, to)
}

// decimate averages each block of factor samples. A trailing partial block
// is averaged over the samples it has.
func decimate(samples []int16, factor int) []int16 {
	out := make([]int16, 0, (len(samples)+factor-1)/factor)
	for start := 0; start < len(samples); start += factor {
		end := min(start+factor, len(samples))
		var sum int64
		for _, s := range samples[start:end] {
			sum += int64(s)
		}
		out = append(out, int16(sum/int64(end-start)))
	}
	return out
}

func interpolate(samples []int16, from, to int) []int16 {
	outLen := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]int16, outLen)
	last := len(samples) - 1
	for i := range out {
		// position in source samples, in units of 1/to
		pos := int64(i) * int64(from)
		idx := int(pos / int64(to))
		frac := pos % int64(to)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		a := int64(samples[idx])
		b := int64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac/int64(to))
	}
	return out
}

func encodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
