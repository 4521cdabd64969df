package audio

import (
	"math"
	"time"
)

// Default pipeline parameters. These match the classifier's training
// preprocessing and must not change unless the model is retrained.
const (
	DefaultSampleRate = 16000
	WindowSeconds     = 3
	WindowSamples     = DefaultSampleRate * WindowSeconds
)

// Buffer is a mono PCM clip with normalized float samples in [-1, 1].
// A Buffer is immutable once produced; stages hand off ownership rather
// than mutating in place.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the clip length as wall time
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// DownmixInt16 converts interleaved 16-bit PCM to normalized mono floats by
// averaging across channels per sample
func DownmixInt16(frames []int16, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	n := len(frames) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var acc float32
		for ch := 0; ch < channels; ch++ {
			acc += float32(frames[i*channels+ch]) / 32768.0
		}
		out[i] = acc / float32(channels)
	}
	return out
}

// RMS computes the root mean square of a frame
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Energy returns frame energy as positive dB below full scale, floored to
// avoid log of zero on silence
func Energy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	mean := sum / float64(len(samples))
	return math.Log10(math.Max(mean, 1e-8)) * -10
}

// ZeroCrossRate returns the fraction of adjacent sample pairs that change sign
func ZeroCrossRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	count := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0 && samples[i] < 0) || (samples[i-1] < 0 && samples[i] >= 0) {
			count++
		}
	}
	return float64(count) / float64(len(samples))
}
