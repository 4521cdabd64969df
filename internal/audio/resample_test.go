package audio

import (
	"math"
	"testing"
)

func TestResample_NoOpWhenRatesMatch(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := Resample(in, 16000, 16000)
	if len(out) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d changed: %f != %f", i, out[i], in[i])
		}
	}
}

func TestResample_Downsample(t *testing.T) {
	in := make([]float32, 32000)
	out := Resample(in, 32000, 16000)
	if len(out) != 16000 {
		t.Errorf("Expected 16000 samples after 2:1 downsample, got %d", len(out))
	}
}

func TestResample_Upsample(t *testing.T) {
	in := make([]float32, 8000)
	out := Resample(in, 8000, 16000)
	if len(out) != 16000 {
		t.Errorf("Expected 16000 samples after 1:2 upsample, got %d", len(out))
	}
}

func TestResample_LinearInterpolation(t *testing.T) {
	// Doubling the rate of a ramp should interpolate midpoints
	in := []float32{0, 1, 2, 3}
	out := Resample(in, 1, 2)
	// The final position falls past the last source sample and blends toward silence
	want := []float32{0, 0.5, 1, 1.5, 2, 2.5, 3, 1.5}
	if len(out) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(out))
	}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], out[i])
		}
	}
}

func TestResample_OutOfRangeIsSilence(t *testing.T) {
	in := []float32{1}
	out := Resample(in, 1, 4)
	// Positions past the single source sample interpolate toward zero
	for i := 1; i < len(out); i++ {
		if out[i] > 1 {
			t.Errorf("Sample %d exceeds source amplitude: %f", i, out[i])
		}
	}
}
