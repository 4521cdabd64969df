// Package detection implements real-time and offline deepfake scoring of
// call audio, alert dispatch, and session lifecycle tracking.
package detection

import (
	"errors"
	"time"
)

// Sentinel errors surfaced by the monitor
var (
	ErrDetectionDisabled = errors.New("detection: disabled in settings")
	ErrSessionActive     = errors.New("detection: a session is already running")
	ErrNoSession         = errors.New("detection: no active session")
)

// SessionStatus tracks how a monitoring session ended
type SessionStatus string

const (
	StatusRunning   SessionStatus = "RUNNING"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusFailed    SessionStatus = "FAILED"
)

// Severity grades an alert by how confident the model is
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityFor maps a probability to an alert severity. Thresholds follow
// the alerting tiers: above 0.9 is treated as near-certain synthesis.
func SeverityFor(probability float32) Severity {
	switch {
	case probability >= 0.9:
		return SeverityCritical
	case probability >= 0.8:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// AlertAction records how an alert reached the user
type AlertAction string

const (
	ActionNotified AlertAction = "NOTIFIED"
	ActionVibrated AlertAction = "VIBRATED"
	ActionLogged   AlertAction = "LOGGED"
)

// ModelInfo identifies the classifier that produced a score
type ModelInfo struct {
	Version    string `json:"version" msgpack:"version"`
	SampleRate int    `json:"sample_rate" msgpack:"sample_rate"`
	WindowSec  int    `json:"window_sec" msgpack:"window_sec"`
}

// Result is one scored window. Offset is seconds from session start to the
// beginning of the window that produced this score.
type Result struct {
	CallID      string    `json:"call_id" msgpack:"call_id"`
	Probability float32   `json:"probability" msgpack:"probability"`
	IsFake      bool      `json:"is_fake" msgpack:"is_fake"`
	Offset      float64   `json:"offset_sec" msgpack:"offset_sec"`
	ScoredAt    time.Time `json:"scored_at" msgpack:"scored_at"`
	Model       ModelInfo `json:"model" msgpack:"model"`
}

// Session is the persistent record of one monitored call. Probabilities
// holds every window score in the order it was produced.
type Session struct {
	ID            string        `json:"id" msgpack:"id"`
	CallID        string        `json:"call_id" msgpack:"call_id"`
	StartedAt     time.Time     `json:"started_at" msgpack:"started_at"`
	EndedAt       time.Time     `json:"ended_at,omitempty" msgpack:"ended_at"`
	Status        SessionStatus `json:"status" msgpack:"status"`
	WindowCount   int           `json:"window_count" msgpack:"window_count"`
	AlertCount    int           `json:"alert_count" msgpack:"alert_count"`
	PeakScore     float32       `json:"peak_score" msgpack:"peak_score"`
	Probabilities []float32     `json:"probabilities" msgpack:"probabilities"`
	Final         *Result       `json:"final,omitempty" msgpack:"final"`
}

// AlertEvent is a raised deepfake alert, persisted and delivered at most
// once per cooldown period per session
type AlertEvent struct {
	ID             string        `json:"id" msgpack:"id"`
	SessionID      string        `json:"session_id" msgpack:"session_id"`
	CallID         string        `json:"call_id" msgpack:"call_id"`
	Probability    float32       `json:"probability" msgpack:"probability"`
	Severity       Severity      `json:"severity" msgpack:"severity"`
	Actions        []AlertAction `json:"actions" msgpack:"actions"`
	RaisedAt       time.Time     `json:"raised_at" msgpack:"raised_at"`
	Offset         float64       `json:"offset_sec" msgpack:"offset_sec"`
	Acknowledged   bool          `json:"acknowledged" msgpack:"acknowledged"`
	AcknowledgedAt time.Time     `json:"acknowledged_at,omitempty" msgpack:"acknowledged_at"`
}

// FileReport is the outcome of offline analysis of a recording
type FileReport struct {
	Path            string    `json:"path"`
	Probability     float32   `json:"probability"`
	IsFake          bool      `json:"is_fake"`
	Explanation     string    `json:"explanation"`
	DurationSec     float64   `json:"duration_sec"`
	EnergyDb        float64   `json:"energy_db"`
	ZeroCross       float64   `json:"zero_cross_rate"`
	SpectrogramPath string    `json:"spectrogram_path,omitempty"`
	Model           ModelInfo `json:"model"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}
