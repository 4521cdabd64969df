package detection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veristream/callshield/internal/capture"
	capmock "github.com/veristream/callshield/internal/capture/mock"
	"github.com/veristream/callshield/internal/classifier"
	clsmock "github.com/veristream/callshield/internal/classifier/mock"
	"github.com/veristream/callshield/internal/dsp"
	"github.com/veristream/callshield/internal/observability"
	"github.com/veristream/callshield/internal/settings"
)

var errNotFound = errors.New("not found")

// memStore is an in-memory Store for pipeline tests
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	results  map[string]*Result
	alerts   map[string]*AlertEvent
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]*Session{},
		results:  map[string]*Result{},
		alerts:   map[string]*AlertEvent{},
	}
}

func (s *memStore) SaveSession(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memStore) GetSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) SaveResult(r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.results[r.CallID] = &cp
	return nil
}

func (s *memStore) GetResult(callID string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[callID]
	if !ok {
		return nil, errNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) SaveAlert(a *AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

func (s *memStore) GetAlert(id string) (*AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) ListAlerts(sessionID string) ([]*AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*AlertEvent
	for _, a := range s.alerts {
		if a.SessionID == sessionID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) AcknowledgeAlert(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return errNotFound
	}
	a.Acknowledged = true
	a.AcknowledgedAt = at
	return nil
}

func (s *memStore) Close() error { return nil }

// memNotifier records delivered alerts
type memNotifier struct {
	mu     sync.Mutex
	alerts []*AlertEvent
	err    error
}

func (n *memNotifier) Notify(a *AlertEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	cp := *a
	n.alerts = append(n.alerts, &cp)
	return nil
}

func (n *memNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// testPipeline bundles a monitor with small windows so a handful of frames
// exercises the full capture-score-alert path
type testPipeline struct {
	monitor    *Monitor
	store      *memStore
	notifier   *memNotifier
	dispatcher *Dispatcher
	device     capture.Device
}

func newTestPipeline(t *testing.T, scorer classifier.Scorer, device capture.Device, prefs settings.Provider) *testPipeline {
	t.Helper()

	extractor, err := dsp.NewExtractor(dsp.Config{
		SampleRate: 8000,
		FrameSize:  256,
		HopSize:    128,
		MelBands:   8,
		FMin:       0,
		FMax:       4000,
	})
	require.NoError(t, err)

	st := newMemStore()
	notifier := &memNotifier{}
	dispatcher := NewDispatcher(st, notifier, nil)

	monitor := NewMonitor(MonitorConfig{
		SampleRate:       8000,
		WindowSamples:    512,
		CaptureFrameSize: 256,
		ScoreInterval:    256,
		Cooldown:         10 * time.Second,
		ReadTimeout:      time.Second,
		Model:            ModelInfo{Version: "0.0.1", SampleRate: 8000, WindowSec: 1},
	}, extractor, classifier.NewAdapter(scorer), prefs, st, dispatcher)

	return &testPipeline{monitor: monitor, store: st, notifier: notifier, dispatcher: dispatcher, device: device}
}

func enabledPrefs() *settings.Static {
	return settings.NewStatic(settings.Settings{DetectionEnabled: true, AlertThreshold: 0.7})
}

func frames(n, size int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		f := make([]float32, size)
		for j := range f {
			f[j] = 0.3
		}
		out[i] = f
	}
	return out
}

func waitForStop(t *testing.T, p *testPipeline) *Session {
	t.Helper()
	require.Eventually(t, func() bool {
		return !p.monitor.Active()
	}, 2*time.Second, 5*time.Millisecond, "session did not finish")

	sess, err := p.monitor.Stop()
	require.NoError(t, err)
	return sess
}

func TestMonitor_StartDisabled(t *testing.T) {
	prefs := settings.NewStatic(settings.Settings{DetectionEnabled: false})
	p := newTestPipeline(t, clsmock.NewScorer(0), &capmock.Device{}, prefs)

	_, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.ErrorIs(t, err, ErrDetectionDisabled)
	require.False(t, p.monitor.Active())
}

func TestMonitor_PermissionDeniedStaysIdle(t *testing.T) {
	device := &capmock.Device{OpenErr: capture.ErrPermissionDenied}
	p := newTestPipeline(t, clsmock.NewScorer(0), device, enabledPrefs())

	_, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.ErrorIs(t, err, capture.ErrPermissionDenied)
	require.False(t, p.monitor.Active())
	require.Empty(t, p.store.sessions)
}

func TestMonitor_RejectsConcurrentSession(t *testing.T) {
	src := capmock.NewBlockingSource(frames(1, 256)...)
	p := newTestPipeline(t, clsmock.NewScorer(0), &capmock.Device{Src: src}, enabledPrefs())

	_, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.NoError(t, err)
	defer p.monitor.Stop()

	_, err = p.monitor.Start(context.Background(), "call-2", p.device)
	require.ErrorIs(t, err, ErrSessionActive)
}

func TestMonitor_CompletesOnCallEnd(t *testing.T) {
	// Three 256-sample frames fill the 512-sample window and then slide it
	// once, producing exactly two scoring passes before EOF
	src := capmock.NewSource(frames(3, 256)...)
	scorer := clsmock.NewScorer(0) // Logit 0 scores 0.5, below threshold
	p := newTestPipeline(t, scorer, &capmock.Device{Src: src}, enabledPrefs())

	id, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.NoError(t, err)

	sess := waitForStop(t, p)
	require.Equal(t, id, sess.ID)
	require.Equal(t, StatusCompleted, sess.Status)
	require.Equal(t, 2, sess.WindowCount)
	require.Equal(t, 0, sess.AlertCount)
	require.InDelta(t, 0.5, sess.PeakScore, 1e-6)
	require.Equal(t, 1, src.CloseCount(), "source must be released exactly once")

	stored, err := p.store.GetSession(id)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)

	// Final result for the call is persisted
	final, err := p.store.GetResult("call-1")
	require.NoError(t, err)
	require.False(t, final.IsFake)
	require.Equal(t, "0.0.1", final.Model.Version)
}

func TestMonitor_AlertsOnHighScore(t *testing.T) {
	src := capmock.NewSource(frames(3, 256)...)
	scorer := clsmock.NewScorer(3) // Logit 3 scores ~0.95
	p := newTestPipeline(t, scorer, &capmock.Device{Src: src}, enabledPrefs())

	_, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.NoError(t, err)

	sess := waitForStop(t, p)
	require.Equal(t, StatusCompleted, sess.Status)
	require.Equal(t, 2, sess.WindowCount)

	// Both windows score over threshold but the cooldown allows only one alert
	require.Equal(t, 1, sess.AlertCount)
	require.Equal(t, 1, p.notifier.count())
	require.Len(t, p.store.alerts, 1)
	for _, a := range p.store.alerts {
		require.Equal(t, SeverityCritical, a.Severity)
		require.Equal(t, sess.ID, a.SessionID)
	}
}

func TestMonitor_RecordsProbabilitySequence(t *testing.T) {
	// Two scoring passes with distinct logits; the session must keep every
	// window score in production order, not just the peak and the final one
	src := capmock.NewSource(frames(3, 256)...)
	scorer := clsmock.NewScorer(3, -3) // ~0.95 then ~0.05
	p := newTestPipeline(t, scorer, &capmock.Device{Src: src}, enabledPrefs())

	id, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.NoError(t, err)

	sess := waitForStop(t, p)
	require.Len(t, sess.Probabilities, 2)
	require.InDelta(t, 0.9526, sess.Probabilities[0], 1e-3)
	require.InDelta(t, 0.0474, sess.Probabilities[1], 1e-3)
	require.Equal(t, sess.Probabilities[0], sess.PeakScore)
	require.Equal(t, sess.Probabilities[1], sess.Final.Probability)

	stored, err := p.store.GetSession(id)
	require.NoError(t, err)
	require.Equal(t, sess.Probabilities, stored.Probabilities)
}

func TestMonitor_CooldownExpiry(t *testing.T) {
	p := newTestPipeline(t, clsmock.NewScorer(0), &capmock.Device{}, enabledPrefs())

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := base
	p.monitor.now = func() time.Time { return now }

	as := &activeSession{
		session:   Session{ID: "sess-1", CallID: "call-1", Status: StatusRunning},
		threshold: 0.7,
		metrics:   observability.NewSessionMetrics("sess-1"),
	}

	// t=0s: 0.9 fires
	p.monitor.handleScore(as, 0.9, 0, now)
	require.Equal(t, 1, as.session.AlertCount)

	// t=2s: 0.95 suppressed by the 10s cooldown
	now = base.Add(2 * time.Second)
	p.monitor.handleScore(as, 0.95, 2, now)
	require.Equal(t, 1, as.session.AlertCount)

	// t=12s: below threshold, nothing fires even though cooldown expired
	now = base.Add(12 * time.Second)
	p.monitor.handleScore(as, 0.2, 12, now)
	require.Equal(t, 1, as.session.AlertCount)

	// t=13s: over threshold again and past cooldown
	now = base.Add(13 * time.Second)
	p.monitor.handleScore(as, 0.85, 13, now)
	require.Equal(t, 2, as.session.AlertCount)

	require.Equal(t, 2, p.notifier.count())
}

func TestMonitor_FailsAfterRepeatedInferenceErrors(t *testing.T) {
	src := capmock.NewSource(frames(10, 256)...)
	scorer := clsmock.NewScorer(0)
	for i := 0; i < 5; i++ {
		scorer.FailOn(i, errors.New("model server down"))
	}
	p := newTestPipeline(t, scorer, &capmock.Device{Src: src}, enabledPrefs())

	id, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.NoError(t, err)

	sess := waitForStop(t, p)
	require.Equal(t, StatusFailed, sess.Status)
	require.Equal(t, 1, src.CloseCount())

	stored, err := p.store.GetSession(id)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, stored.Status)
}

func TestMonitor_RecoverableInferenceError(t *testing.T) {
	src := capmock.NewSource(frames(4, 256)...)
	scorer := clsmock.NewScorer(0)
	scorer.FailOn(0, errors.New("transient timeout"))
	p := newTestPipeline(t, scorer, &capmock.Device{Src: src}, enabledPrefs())

	_, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.NoError(t, err)

	sess := waitForStop(t, p)
	// One failure out of three passes is tolerated
	require.Equal(t, StatusCompleted, sess.Status)
	require.Equal(t, 2, sess.WindowCount)
}

func TestMonitor_CaptureErrorFailsSession(t *testing.T) {
	src := capmock.NewSource(frames(10, 256)...)
	src.FailAfter(1, errors.New("stream torn down"))
	p := newTestPipeline(t, clsmock.NewScorer(0), &capmock.Device{Src: src}, enabledPrefs())

	_, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.NoError(t, err)

	sess := waitForStop(t, p)
	require.Equal(t, StatusFailed, sess.Status)
	require.Equal(t, 1, src.CloseCount())
}

func TestMonitor_StopWithoutSession(t *testing.T) {
	p := newTestPipeline(t, clsmock.NewScorer(0), &capmock.Device{}, enabledPrefs())

	_, err := p.monitor.Stop()
	require.ErrorIs(t, err, ErrNoSession)
}

func TestMonitor_RestartAfterCompletedSession(t *testing.T) {
	src1 := capmock.NewSource(frames(3, 256)...)
	p := newTestPipeline(t, clsmock.NewScorer(0), &capmock.Device{Src: src1}, enabledPrefs())

	_, err := p.monitor.Start(context.Background(), "call-1", p.device)
	require.NoError(t, err)
	waitForStop(t, p)

	_, err = p.monitor.Start(context.Background(), "call-2", p.device)
	require.NoError(t, err)
	p.monitor.Stop()
}

func TestSeverityFor(t *testing.T) {
	require.Equal(t, SeverityInfo, SeverityFor(0.7))
	require.Equal(t, SeverityWarning, SeverityFor(0.8))
	require.Equal(t, SeverityWarning, SeverityFor(0.89))
	require.Equal(t, SeverityCritical, SeverityFor(0.9))
	require.Equal(t, SeverityCritical, SeverityFor(1.0))
}
