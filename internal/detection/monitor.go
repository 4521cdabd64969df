package detection

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veristream/callshield/internal/audio"
	"github.com/veristream/callshield/internal/capture"
	"github.com/veristream/callshield/internal/classifier"
	"github.com/veristream/callshield/internal/dsp"
	"github.com/veristream/callshield/internal/observability"
	"github.com/veristream/callshield/internal/resilience"
	"github.com/veristream/callshield/internal/settings"
)

// maxConsecutiveFailures is how many scoring errors in a row fail a session.
// A single slow inference should not kill a live call, a dead model server
// should.
const maxConsecutiveFailures = 3

// MonitorConfig holds the tunables of the streaming pipeline
type MonitorConfig struct {
	SampleRate       int
	WindowSamples    int
	CaptureFrameSize int
	ScoreInterval    int           // New samples between scoring passes
	Cooldown         time.Duration // Minimum spacing between alerts per session
	ReadTimeout      time.Duration
	Model            ModelInfo
}

// Monitor runs at most one detection session at a time over live call
// audio. It accumulates capture frames in a sliding window, scores the
// window every ScoreInterval samples, and routes over-threshold scores
// through the dispatcher subject to the cooldown.
type Monitor struct {
	cfg        MonitorConfig
	extractor  *dsp.Extractor
	adapter    *classifier.Adapter
	settings   settings.Provider
	store      Store
	dispatcher *Dispatcher
	logger     zerolog.Logger

	// now is swappable so cooldown behavior is testable without sleeping
	now func() time.Time

	mu      sync.Mutex
	current *activeSession
}

// activeSession is the mutable state of one running session
type activeSession struct {
	session     Session
	threshold   float32
	cancel      context.CancelFunc
	done        chan struct{}
	lastAlertAt time.Time // Zero until the first alert fires
	consecFails int
	samplesRead int64
	metrics     *observability.SessionMetrics
	failure     error
}

// NewMonitor assembles the streaming detection pipeline
func NewMonitor(
	cfg MonitorConfig,
	extractor *dsp.Extractor,
	adapter *classifier.Adapter,
	prefs settings.Provider,
	st Store,
	dispatcher *Dispatcher,
) *Monitor {
	return &Monitor{
		cfg:        cfg,
		extractor:  extractor,
		adapter:    adapter,
		settings:   prefs,
		store:      st,
		dispatcher: dispatcher,
		logger:     observability.GetLogger().With().Str("component", "monitor").Logger(),
		now:        time.Now,
	}
}

// finished reports whether the capture loop has exited
func (as *activeSession) finished() bool {
	select {
	case <-as.done:
		return true
	default:
		return false
	}
}

// Active reports whether a session is currently running
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && !m.current.finished()
}

// Start begins monitoring a call, capturing from the given device. It
// refuses to start when detection is disabled in settings, when a session is
// already running, or when the capture device cannot be opened; in all three
// cases no session state is created and the monitor stays idle.
func (m *Monitor) Start(ctx context.Context, callID string, device capture.Device) (string, error) {
	prefs := m.settings.Current()
	if !prefs.DetectionEnabled {
		return "", ErrDetectionDisabled
	}

	m.mu.Lock()
	if m.current != nil && !m.current.finished() {
		m.mu.Unlock()
		return "", ErrSessionActive
	}
	m.current = nil
	m.mu.Unlock()

	src, err := device.Open(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			m.logger.Warn().Str("call_id", callID).Msg("Audio capture permission denied")
			return "", err
		}
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	as := &activeSession{
		session: Session{
			ID:        uuid.New().String(),
			CallID:    callID,
			StartedAt: m.now().UTC(),
			Status:    StatusRunning,
		},
		threshold: prefs.AlertThreshold,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	as.metrics = observability.NewSessionMetrics(as.session.ID)

	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		cancel()
		src.Close()
		return "", ErrSessionActive
	}
	m.current = as
	m.mu.Unlock()

	if err := m.saveSession(&as.session); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist session start")
	}
	as.metrics.RecordSessionStart()
	m.logger.Info().
		Str("session_id", as.session.ID).
		Str("call_id", callID).
		Msg("Detection session started")

	go m.run(runCtx, as, src)
	return as.session.ID, nil
}

// Stop ends the current session and returns its final record. The session
// result reflects every window scored before Stop was called.
func (m *Monitor) Stop() (*Session, error) {
	m.mu.Lock()
	as := m.current
	m.mu.Unlock()
	if as == nil {
		return nil, ErrNoSession
	}

	as.cancel()
	<-as.done

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	snapshot := as.session
	return &snapshot, nil
}

// run is the capture loop. It owns the source and always closes it exactly
// once on exit, whatever path led there.
func (m *Monitor) run(ctx context.Context, as *activeSession, src capture.Source) {
	defer close(as.done)
	defer src.Close()
	defer m.finalize(as)

	window := audio.NewSlidingWindow(m.cfg.WindowSamples)
	buf := make([]float32, m.cfg.CaptureFrameSize)

	for {
		readCtx := ctx
		var cancelRead context.CancelFunc
		if m.cfg.ReadTimeout > 0 {
			readCtx, cancelRead = context.WithTimeout(ctx, m.cfg.ReadTimeout)
		}
		n, err := src.Read(readCtx, buf)
		if cancelRead != nil {
			cancelRead()
		}

		if n > 0 {
			window.Push(buf[:n])
			as.samplesRead += int64(n)
			as.metrics.RecordAudioSamples(n)
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			// Call ended or Stop was requested; score whatever is pending
			// if a full window ever accumulated, then finish cleanly
			if window.Filled() == m.cfg.WindowSamples && window.Pending() > 0 {
				m.scoreWindow(ctx, as, window)
			}
			return
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// A stalled read is not fatal; the call may just be silent
			continue
		default:
			m.logger.Error().Err(err).Str("session_id", as.session.ID).Msg("Capture read failed")
			as.metrics.RecordError("capture_read", "monitor")
			as.failure = err
			return
		}

		if window.Filled() == m.cfg.WindowSamples && window.Pending() >= m.cfg.ScoreInterval {
			if !m.scoreWindow(ctx, as, window) {
				return
			}
		}
	}
}

// scoreWindow runs one extraction and inference pass. It returns false when
// the session should stop because of repeated inference failures.
func (m *Monitor) scoreWindow(ctx context.Context, as *activeSession, window *audio.SlidingWindow) bool {
	as.metrics.RecordScoreStart()
	samples := window.Snapshot()

	spec, err := m.extractor.Extract(samples)
	var probability float32
	if err == nil {
		probability, err = m.adapter.Probability(ctx, spec)
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		as.metrics.RecordScoreEnd(false)
		as.metrics.RecordError("scoring", "monitor")
		as.consecFails++
		m.logger.Warn().
			Err(err).
			Int("consecutive_failures", as.consecFails).
			Str("session_id", as.session.ID).
			Msg("Scoring pass failed")
		if as.consecFails >= maxConsecutiveFailures {
			as.failure = err
			return false
		}
		return true
	}
	as.consecFails = 0
	as.metrics.RecordScoreEnd(true)

	// Threshold changes apply to in-flight sessions; enable/disable only
	// gates session start
	as.threshold = m.settings.Current().AlertThreshold

	now := m.now()
	offset := m.windowOffset(as)
	result := Result{
		CallID:      as.session.CallID,
		Probability: probability,
		IsFake:      probability >= as.threshold,
		Offset:      offset,
		ScoredAt:    now.UTC(),
		Model:       m.cfg.Model,
	}

	as.session.WindowCount++
	as.session.Probabilities = append(as.session.Probabilities, probability)
	if probability > as.session.PeakScore {
		as.session.PeakScore = probability
	}
	as.session.Final = &result

	m.handleScore(as, probability, offset, now)
	return true
}

// handleScore applies the threshold and cooldown to one score. A score at or
// above the threshold raises an alert unless a previous alert fired within
// the cooldown window.
func (m *Monitor) handleScore(as *activeSession, probability float32, offset float64, now time.Time) {
	if probability < as.threshold {
		return
	}

	if !as.lastAlertAt.IsZero() && now.Sub(as.lastAlertAt) < m.cfg.Cooldown {
		as.metrics.RecordSuppressedAlert()
		m.logger.Debug().
			Str("session_id", as.session.ID).
			Float32("probability", probability).
			Msg("Alert suppressed by cooldown")
		return
	}

	alert, err := m.dispatcher.Dispatch(&as.session, probability, offset, now.UTC())
	if err != nil {
		as.metrics.RecordError("dispatch", "monitor")
	}
	if alert != nil {
		as.lastAlertAt = now
		as.session.AlertCount++
		as.metrics.RecordAlert(string(alert.Severity))
	}
}

// windowOffset returns the start of the current analysis window in seconds
// from session start
func (m *Monitor) windowOffset(as *activeSession) float64 {
	start := as.samplesRead - int64(m.cfg.WindowSamples)
	if start < 0 {
		start = 0
	}
	return float64(start) / float64(m.cfg.SampleRate)
}

// finalize closes out the session record once the capture loop exits
func (m *Monitor) finalize(as *activeSession) {
	as.session.EndedAt = m.now().UTC()
	if as.failure != nil {
		as.session.Status = StatusFailed
	} else {
		as.session.Status = StatusCompleted
	}

	if as.session.Final != nil {
		if err := resilience.Retry(func() error {
			return m.store.SaveResult(as.session.Final)
		}, nil, nil); err != nil {
			m.logger.Error().Err(err).Msg("Failed to persist final result")
		}
	}
	if err := m.saveSession(&as.session); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist session end")
	}

	m.dispatcher.Forget(as.session.ID)
	as.metrics.RecordSessionEnd(string(as.session.Status))
	m.logger.Info().
		Str("session_id", as.session.ID).
		Str("status", string(as.session.Status)).
		Int("windows", as.session.WindowCount).
		Int("alerts", as.session.AlertCount).
		Float32("peak", as.session.PeakScore).
		Msg("Detection session ended")
}

func (m *Monitor) saveSession(s *Session) error {
	return resilience.Retry(func() error {
		return m.store.SaveSession(s)
	}, nil, nil)
}
