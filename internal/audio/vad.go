package audio

import "math"

// DefaultTrimThresholdDb is the silence threshold inherited from the
// classifier's training preprocessing.
const DefaultTrimThresholdDb = -40.0

// TrimSilence drops leading and trailing samples whose instantaneous level
// stays below thresholdDb. Per-sample level is 20*log10(max(|x|, 1e-5)).
// If nothing exceeds the threshold the input is returned unchanged so the
// pipeline never sees an empty buffer.
func TrimSilence(samples []float32, thresholdDb float64) []float32 {
	first, last := -1, -1
	for i, s := range samples {
		if sampleDb(s) > thresholdDb {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	if first == -1 {
		return samples
	}
	return samples[first : last+1]
}

func sampleDb(s float32) float64 {
	return 20 * math.Log10(math.Max(math.Abs(float64(s)), 1e-5))
}
