package classifier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veristream/callshield/internal/classifier"
	"github.com/veristream/callshield/internal/classifier/mock"
)

func TestSigmoid(t *testing.T) {
	require.InDelta(t, 0.5, classifier.Sigmoid(0), 1e-6)
	require.Greater(t, classifier.Sigmoid(2), float32(0.5))
	require.Less(t, classifier.Sigmoid(-2), float32(0.5))

	// Extreme logits must clamp cleanly instead of overflowing
	require.Equal(t, float32(1), classifier.Sigmoid(1000))
	require.Equal(t, float32(0), classifier.Sigmoid(-1000))
}

func TestPack_Layout(t *testing.T) {
	spec := [][]float64{
		{1, 2, 3},
		{4, 5, 6},
	}
	tensor := classifier.Pack(spec)

	require.Equal(t, [4]int64{1, 1, 2, 3}, tensor.Shape)
	// Row-major: mel band rows are contiguous
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Data)
}

func TestAdapter_Probability(t *testing.T) {
	scorer := mock.NewScorer(0)
	adapter := classifier.NewAdapter(scorer)

	p, err := adapter.Probability(context.Background(), [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	require.InDelta(t, 0.5, p, 1e-6)

	tensor := scorer.Tensor(0)
	require.Equal(t, [4]int64{1, 1, 2, 2}, tensor.Shape)
}

func TestAdapter_ProbabilityBounds(t *testing.T) {
	for _, logit := range []float32{-50, -1, 0, 1, 50} {
		scorer := mock.NewScorer(logit)
		adapter := classifier.NewAdapter(scorer)

		p, err := adapter.Probability(context.Background(), [][]float64{{0}})
		require.NoError(t, err)
		require.GreaterOrEqual(t, p, float32(0))
		require.LessOrEqual(t, p, float32(1))
	}
}

func TestAdapter_WrapsScorerError(t *testing.T) {
	scorer := mock.NewScorer(0)
	scorer.FailOn(0, errors.New("runtime crashed"))
	adapter := classifier.NewAdapter(scorer)

	_, err := adapter.Probability(context.Background(), [][]float64{{0}})
	require.ErrorIs(t, err, classifier.ErrInference)
}

func TestAdapter_EmptySpectrogram(t *testing.T) {
	adapter := classifier.NewAdapter(mock.NewScorer(0))

	_, err := adapter.Probability(context.Background(), nil)
	require.ErrorIs(t, err, classifier.ErrInference)
}

func TestAdapter_WarmUp(t *testing.T) {
	scorer := mock.NewScorer(0)
	adapter := classifier.NewAdapter(scorer)

	require.NoError(t, adapter.WarmUp(context.Background()))
	require.Equal(t, 1, scorer.Calls())

	tensor := scorer.Tensor(0)
	require.Equal(t, int64(64), tensor.Shape[2])
}

func TestAdapter_Close(t *testing.T) {
	scorer := mock.NewScorer(0)
	adapter := classifier.NewAdapter(scorer)

	require.NoError(t, adapter.Close())
	require.True(t, scorer.Closed())
}
