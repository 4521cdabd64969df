package audio

// Resample converts samples from srcRate to dstRate using linear
// interpolation. This trades fidelity for speed: minor aliasing is acceptable
// because the classifier is robust to it, but this is not a sinc resampler
// and should not be reused where transparency matters.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 {
		return samples
	}

	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(float64(len(samples)) * ratio)
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		s0 := sampleAt(samples, idx)
		s1 := sampleAt(samples, idx+1)
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}

	return out
}

// sampleAt treats out-of-range indices as silence
func sampleAt(samples []float32, i int) float32 {
	if i < 0 || i >= len(samples) {
		return 0
	}
	return samples[i]
}
