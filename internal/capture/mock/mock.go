// Package mock provides scripted capture sources for tests.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/veristream/callshield/internal/capture"
)

// Source replays scripted PCM frames, then returns io.EOF. It records how
// many times Close was called so tests can assert exactly-once release.
type Source struct {
	mu         sync.Mutex
	frames     [][]float32
	next       int
	readErr    error
	errAfter   int // reads to serve before readErr fires, -1 disables
	reads      int
	closeCount int
	block      bool
}

// NewSource builds a source that serves frames in order
func NewSource(frames ...[]float32) *Source {
	return &Source{frames: frames, errAfter: -1}
}

// NewBlockingSource builds a source that blocks on context cancellation
// instead of returning io.EOF once its frames run out, mimicking a live
// call that has gone quiet
func NewBlockingSource(frames ...[]float32) *Source {
	return &Source{frames: frames, errAfter: -1, block: true}
}

// FailAfter makes Read return err once n successful reads have been served
func (s *Source) FailAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errAfter = n
	s.readErr = err
}

func (s *Source) Read(ctx context.Context, buf []float32) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.errAfter >= 0 && s.reads >= s.errAfter {
		err := s.readErr
		s.mu.Unlock()
		return 0, err
	}
	if s.next >= len(s.frames) {
		block := s.block
		s.mu.Unlock()
		if block {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 0, io.EOF
	}
	n := copy(buf, s.frames[s.next])
	s.next++
	s.reads++
	s.mu.Unlock()
	return n, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return nil
}

// CloseCount returns how many times Close has been called
func (s *Source) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// Device hands out a fixed source, or fails with OpenErr
type Device struct {
	Src     capture.Source
	OpenErr error
}

func (d *Device) Open(ctx context.Context) (capture.Source, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	return d.Src, nil
}
