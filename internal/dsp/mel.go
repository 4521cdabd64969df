// Package dsp computes log-mel spectrogram features for classifier input.
//
// The constants and filterbank math here mirror the preprocessing the model
// was trained with. Any change to frame size, hop, mel count, window
// function, or normalization silently shifts the score distribution, so
// treat every formula in this package as frozen.
package dsp

import (
	"errors"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// Config holds the spectrogram parameters
type Config struct {
	SampleRate int
	FrameSize  int // FFT size, also the analysis window length
	HopSize    int
	MelBands   int
	FMin       float64
	FMax       float64
}

// DefaultConfig returns the parameters the classifier was trained with
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		FrameSize:  1024,
		HopSize:    256,
		MelBands:   64,
		FMin:       0,
		FMax:       8000,
	}
}

var ErrTooShort = errors.New("dsp: input shorter than one analysis frame")

// Extractor converts PCM windows into normalized log-mel spectrograms.
// The Hann window and mel filterbank are precomputed at construction, so a
// single Extractor can be shared across calls. Extract itself is stateless
// and safe for concurrent use.
type Extractor struct {
	cfg        Config
	hann       []float64
	filterbank [][]float64 // [mel][fftBin]
}

// NewExtractor precomputes the window function and filterbank for cfg
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 || cfg.HopSize <= 0 || cfg.MelBands <= 0 {
		return nil, errors.New("dsp: sample rate, frame size, hop size and mel bands must be positive")
	}
	if cfg.FMax <= cfg.FMin {
		return nil, errors.New("dsp: fMax must exceed fMin")
	}
	if cfg.FMax > float64(cfg.SampleRate)/2+1e-9 {
		// Nyquist is the hard ceiling; the default 8 kHz cap sits exactly on it
		return nil, errors.New("dsp: fMax exceeds Nyquist frequency")
	}
	e := &Extractor{cfg: cfg}
	e.hann = hannWindow(cfg.FrameSize)
	e.filterbank = melFilterbank(cfg)
	return e, nil
}

// FrameCount returns how many analysis frames n samples produce
func (e *Extractor) FrameCount(n int) int {
	if n < e.cfg.FrameSize {
		return 0
	}
	return 1 + (n-e.cfg.FrameSize)/e.cfg.HopSize
}

// MelBands returns the number of mel bands per frame
func (e *Extractor) MelBands() int {
	return e.cfg.MelBands
}

// Extract computes the normalized log-mel spectrogram of samples. The result
// is indexed [mel][time] and is globally normalized to zero mean and unit
// variance across the whole spectrogram.
func (e *Extractor) Extract(samples []float32) ([][]float64, error) {
	frames := e.FrameCount(len(samples))
	if frames == 0 {
		return nil, ErrTooShort
	}

	spec := make([][]float64, e.cfg.MelBands)
	for m := range spec {
		spec[m] = make([]float64, frames)
	}

	windowed := make([]float64, e.cfg.FrameSize)
	power := make([]float64, e.cfg.FrameSize/2+1)

	for f := 0; f < frames; f++ {
		off := f * e.cfg.HopSize
		for i := 0; i < e.cfg.FrameSize; i++ {
			windowed[i] = float64(samples[off+i]) * e.hann[i]
		}

		spectrum := fft.FFTReal(windowed)
		for i := range power {
			re := real(spectrum[i])
			im := imag(spectrum[i])
			power[i] = re*re + im*im
		}

		for m := 0; m < e.cfg.MelBands; m++ {
			var energy float64
			for bin, w := range e.filterbank[m] {
				if w != 0 {
					energy += w * power[bin]
				}
			}
			spec[m][f] = 10 * math.Log10(math.Max(energy, 1e-9))
		}
	}

	normalize(spec)
	return spec, nil
}

// hannWindow returns an n-point Hann window
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// hzToMel converts frequency in Hz to the mel scale
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// melToHz converts mel-scale frequency back to Hz
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterbank builds triangular filters spaced evenly on the mel scale.
// Center frequencies map to FFT bins via floor((nFft+1)*hz/sampleRate), and
// degenerate ramps are widened to at least one bin so no filter is empty.
func melFilterbank(cfg Config) [][]float64 {
	nBins := cfg.FrameSize/2 + 1
	melLo := hzToMel(cfg.FMin)
	melHi := hzToMel(cfg.FMax)

	points := make([]int, cfg.MelBands+2)
	for i := range points {
		mel := melLo + (melHi-melLo)*float64(i)/float64(cfg.MelBands+1)
		hz := melToHz(mel)
		points[i] = int(math.Floor(float64(cfg.FrameSize+1) * hz / float64(cfg.SampleRate)))
	}

	bank := make([][]float64, cfg.MelBands)
	for m := 0; m < cfg.MelBands; m++ {
		filter := make([]float64, nBins)
		lo, mid, hi := points[m], points[m+1], points[m+2]

		upDen := math.Max(1, float64(mid-lo))
		downDen := math.Max(1, float64(hi-mid))
		for bin := lo; bin <= hi && bin < nBins; bin++ {
			if bin <= mid {
				filter[bin] = float64(bin-lo) / upDen
			} else {
				filter[bin] = float64(hi-bin) / downDen
			}
		}
		bank[m] = filter
	}
	return bank
}

// normalize scales spec in place to zero mean and unit variance, flooring
// the variance so a constant input does not divide by zero
func normalize(spec [][]float64) {
	var sum float64
	var n int
	for _, row := range spec {
		for _, v := range row {
			sum += v
		}
		n += len(row)
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)

	var varSum float64
	for _, row := range spec {
		for _, v := range row {
			d := v - mean
			varSum += d * d
		}
	}
	std := math.Sqrt(math.Max(varSum/float64(n), 1e-5))

	for _, row := range spec {
		for i, v := range row {
			row[i] = (v - mean) / std
		}
	}
}
