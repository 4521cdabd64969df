package audio

import "testing"

func TestTrimSilence_RemovesLeadingAndTrailing(t *testing.T) {
	samples := make([]float32, 300)
	for i := 100; i < 200; i++ {
		samples[i] = 0.5
	}

	out := TrimSilence(samples, DefaultTrimThresholdDb)
	if len(out) != 100 {
		t.Errorf("Expected 100 samples after trim, got %d", len(out))
	}
	if out[0] != 0.5 || out[len(out)-1] != 0.5 {
		t.Error("Trimmed slice should start and end with voiced samples")
	}
}

func TestTrimSilence_AllSilentReturnsInput(t *testing.T) {
	samples := make([]float32, 100)
	out := TrimSilence(samples, DefaultTrimThresholdDb)
	if len(out) != 100 {
		t.Errorf("All-silent input must pass through unchanged, got %d samples", len(out))
	}
}

func TestTrimSilence_NeverEmpty(t *testing.T) {
	// Quiet but non-zero audio below threshold still returns the input
	samples := []float32{0.001, 0.002, 0.001}
	out := TrimSilence(samples, DefaultTrimThresholdDb)
	if len(out) == 0 {
		t.Fatal("TrimSilence must never return an empty buffer")
	}
}

func TestTrimSilence_KeepsInteriorSilence(t *testing.T) {
	samples := make([]float32, 300)
	samples[50] = 0.5
	samples[250] = 0.5

	out := TrimSilence(samples, DefaultTrimThresholdDb)
	if len(out) != 201 {
		t.Errorf("Expected 201 samples spanning first to last voiced, got %d", len(out))
	}
}

func TestEnergy_SilentFrameFloored(t *testing.T) {
	samples := make([]float32, 1024)
	e := Energy(samples)
	// mean floored at 1e-8 gives exactly 80 dB below full scale
	if e != 80 {
		t.Errorf("Expected floored energy 80, got %f", e)
	}
}

func TestZeroCrossRate(t *testing.T) {
	samples := []float32{1, -1, 1, -1}
	zcr := ZeroCrossRate(samples)
	if zcr != 0.75 {
		t.Errorf("Expected ZCR 0.75, got %f", zcr)
	}
}
