package audio

import "sync"

// FixedWindow forces samples to exactly targetLen: shorter input is
// right-padded with zeros, longer input keeps the first targetLen samples.
// Truncating from the start (not the center) matches the classifier's
// training preprocessing and must be preserved for score compatibility.
func FixedWindow(samples []float32, targetLen int) []float32 {
	switch {
	case len(samples) == targetLen:
		return samples
	case len(samples) < targetLen:
		out := make([]float32, targetLen)
		copy(out, samples)
		return out
	default:
		return samples[:targetLen]
	}
}

// SlidingWindow is a thread-safe ring buffer holding the most recent
// window-length of audio. It slides rather than drains: snapshots copy the
// current contents without consuming them, so a read arriving mid-score
// never mutates the slice being analyzed.
type SlidingWindow struct {
	mu      sync.Mutex
	buf     []float32
	pos     int // next write index
	filled  int // valid samples, up to len(buf)
	pending int // samples pushed since the last snapshot
}

// NewSlidingWindow creates a sliding window holding size samples
func NewSlidingWindow(size int) *SlidingWindow {
	return &SlidingWindow{buf: make([]float32, size)}
}

// Push appends samples, overwriting the oldest audio once full
func (w *SlidingWindow) Push(samples []float32) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range samples {
		w.buf[w.pos] = s
		w.pos = (w.pos + 1) % len(w.buf)
		if w.filled < len(w.buf) {
			w.filled++
		}
	}
	w.pending += len(samples)
	if w.pending > len(w.buf) {
		w.pending = len(w.buf)
	}
}

// Pending returns how many new samples arrived since the last snapshot
func (w *SlidingWindow) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Snapshot copies the window contents oldest-first, zero-padded on the right
// when the window has not filled yet, and resets the pending counter.
// The returned slice is owned by the caller.
func (w *SlidingWindow) Snapshot() []float32 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]float32, len(w.buf))
	if w.filled < len(w.buf) {
		// Not yet wrapped: contents live in buf[0:filled]
		copy(out, w.buf[:w.filled])
	} else {
		n := copy(out, w.buf[w.pos:])
		copy(out[n:], w.buf[:w.pos])
	}
	w.pending = 0
	return out
}

// Filled returns how many valid samples the window currently holds
func (w *SlidingWindow) Filled() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filled
}

// Reset clears the window
func (w *SlidingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pos = 0
	w.filled = 0
	w.pending = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}
