// Package classifier turns spectrogram features into deepfake probabilities.
package classifier

import (
	"context"
	"errors"
	"math"
)

// ErrInference wraps any failure to obtain a score from the model
var ErrInference = errors.New("classifier: inference failed")

// Tensor is a dense row-major float tensor in NCHW layout
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// Scorer produces a raw model logit for a feature tensor. Implementations
// talk to the actual model runtime; the Adapter owns pre and post processing.
type Scorer interface {
	Score(ctx context.Context, t Tensor) (float32, error)
	Close() error
}

// Adapter converts a [mel][time] spectrogram into model input, runs the
// scorer, and maps the logit to a calibrated probability in [0, 1]
type Adapter struct {
	scorer Scorer
}

// NewAdapter wraps a scorer with tensor packing and output calibration
func NewAdapter(scorer Scorer) *Adapter {
	return &Adapter{scorer: scorer}
}

// Probability scores one spectrogram window. The returned value is always in
// [0, 1]; any scorer failure is reported wrapped in ErrInference.
func (a *Adapter) Probability(ctx context.Context, spec [][]float64) (float32, error) {
	if len(spec) == 0 || len(spec[0]) == 0 {
		return 0, errors.Join(ErrInference, errors.New("empty spectrogram"))
	}

	logit, err := a.scorer.Score(ctx, Pack(spec))
	if err != nil {
		return 0, errors.Join(ErrInference, err)
	}
	return Sigmoid(logit), nil
}

// WarmUp primes the model runtime with a dummy tensor so the first real call
// does not pay lazy-initialization latency. Failure is non-fatal.
func (a *Adapter) WarmUp(ctx context.Context) error {
	dummy := make([][]float64, 64)
	for i := range dummy {
		dummy[i] = make([]float64, 10)
	}
	_, err := a.scorer.Score(ctx, Pack(dummy))
	if err != nil {
		return errors.Join(ErrInference, err)
	}
	return nil
}

// Close releases the underlying scorer
func (a *Adapter) Close() error {
	return a.scorer.Close()
}

// Pack lays spec out as a batch-1 single-channel NCHW tensor, mel bands as
// rows and frames as columns
func Pack(spec [][]float64) Tensor {
	mels := len(spec)
	frames := len(spec[0])
	data := make([]float32, mels*frames)
	for m, row := range spec {
		for f, v := range row {
			data[m*frames+f] = float32(v)
		}
	}
	return Tensor{
		Shape: [4]int64{1, 1, int64(mels), int64(frames)},
		Data:  data,
	}
}

// Sigmoid maps a logit to (0, 1), clamped against float rounding at the tails
func Sigmoid(logit float32) float32 {
	p := 1 / (1 + math.Exp(-float64(logit)))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return float32(p)
}
