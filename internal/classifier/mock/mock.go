// Package mock provides a scripted scorer for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/veristream/callshield/internal/classifier"
)

// Scorer replays scripted logits in order and records every tensor it was
// asked to score. Once the script is exhausted it keeps returning the last
// logit, so tests only script the interesting prefix.
type Scorer struct {
	mu      sync.Mutex
	logits  []float32
	next    int
	errs    map[int]error // call index to injected error
	tensors []classifier.Tensor
	closed  bool
}

// NewScorer builds a scorer serving the given logits
func NewScorer(logits ...float32) *Scorer {
	return &Scorer{logits: logits, errs: map[int]error{}}
}

// FailOn injects err on the n-th Score call (zero-based)
func (s *Scorer) FailOn(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[n] = err
}

func (s *Scorer) Score(ctx context.Context, t classifier.Tensor) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.tensors)
	s.tensors = append(s.tensors, t)

	if err, ok := s.errs[call]; ok {
		return 0, err
	}
	if len(s.logits) == 0 {
		return 0, errors.New("mock scorer has no scripted logits")
	}
	if s.next < len(s.logits) {
		logit := s.logits[s.next]
		s.next++
		return logit, nil
	}
	return s.logits[len(s.logits)-1], nil
}

func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns how many Score calls were made
func (s *Scorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tensors)
}

// Tensor returns the tensor from the n-th Score call
func (s *Scorer) Tensor(n int) classifier.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tensors[n]
}

// Closed reports whether Close has been called
func (s *Scorer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
