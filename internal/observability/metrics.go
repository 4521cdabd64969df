package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callshield_active_sessions",
		Help: "Number of detection sessions currently running",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callshield_sessions_total",
		Help: "Total number of detection sessions by final status",
	}, []string{"status"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callshield_session_duration_seconds",
		Help:    "Duration of detection sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Scoring metrics
	windowsScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callshield_windows_scored_total",
		Help: "Total number of analysis windows scored",
	}, []string{"status"})

	scoringLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callshield_scoring_latency_seconds",
		Help:    "Feature extraction plus inference latency per window",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
	})

	// Alert metrics
	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callshield_alerts_total",
		Help: "Total number of alerts dispatched",
	}, []string{"severity"})

	alertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callshield_alerts_suppressed_total",
		Help: "Over-threshold scores suppressed by the cooldown window",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callshield_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "callshield_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callshield_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioSamplesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callshield_audio_samples_total",
		Help: "Total audio samples captured across all sessions",
	})
)

// SessionMetrics tracks metrics for a single detection session
type SessionMetrics struct {
	sessionID  string
	startTime  time.Time
	scoreStart time.Time
	mu         sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a detection session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a detection session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
}

// RecordSessionEnd records the end of a detection session with its final status
func (m *SessionMetrics) RecordSessionEnd(status string) {
	activeSessions.Dec()
	sessionsTotal.WithLabelValues(status).Inc()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordScoreStart marks the beginning of a scoring pass
func (m *SessionMetrics) RecordScoreStart() {
	m.mu.Lock()
	m.scoreStart = time.Now()
	m.mu.Unlock()
}

// RecordScoreEnd records the outcome of a scoring pass
func (m *SessionMetrics) RecordScoreEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.scoreStart.IsZero() {
		scoringLatency.Observe(time.Since(m.scoreStart).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	windowsScored.WithLabelValues(status).Inc()
}

// RecordAlert records a dispatched alert
func (m *SessionMetrics) RecordAlert(severity string) {
	alertsTotal.WithLabelValues(severity).Inc()
}

// RecordSuppressedAlert records an over-threshold score suppressed by cooldown
func (m *SessionMetrics) RecordSuppressedAlert() {
	alertsSuppressed.Inc()
}

// RecordError records an error
func (m *SessionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioSamples records captured audio samples
func (m *SessionMetrics) RecordAudioSamples(n int) {
	audioSamplesCaptured.Add(float64(n))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
