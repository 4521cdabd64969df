package detection

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veristream/callshield/internal/observability"
	"github.com/veristream/callshield/internal/resilience"
)

// Dispatcher raises alerts: it persists the event, pushes it to the user
// channel, and records metrics. Dispatch is idempotent per session and
// window offset, so a retried scoring pass cannot double-alert.
type Dispatcher struct {
	store    Store
	notifier Notifier
	retry    *resilience.RetryConfig
	logger   zerolog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDispatcher creates a dispatcher writing through the given store and
// notifier. retry may be nil to use defaults.
func NewDispatcher(st Store, notifier Notifier, retry *resilience.RetryConfig) *Dispatcher {
	return &Dispatcher{
		store:    st,
		notifier: notifier,
		retry:    retry,
		logger:   observability.GetLogger().With().Str("component", "dispatcher").Logger(),
		seen:     make(map[string]struct{}),
	}
}

// Dispatch raises an alert for an over-threshold score. A duplicate call for
// the same session and offset returns (nil, nil) without side effects.
func (d *Dispatcher) Dispatch(sess *Session, probability float32, offset float64, at time.Time) (*AlertEvent, error) {
	key := fmt.Sprintf("%s@%.3f", sess.ID, offset)

	d.mu.Lock()
	if _, dup := d.seen[key]; dup {
		d.mu.Unlock()
		return nil, nil
	}
	d.seen[key] = struct{}{}
	d.mu.Unlock()

	alert := &AlertEvent{
		ID:          uuid.New().String(),
		SessionID:   sess.ID,
		CallID:      sess.CallID,
		Probability: probability,
		Severity:    SeverityFor(probability),
		Actions:     []AlertAction{ActionLogged},
		RaisedAt:    at,
		Offset:      offset,
	}

	if err := d.notifier.Notify(alert); err != nil {
		// Notification is best effort; the persisted record still carries
		// the alert even if the user channel is down
		d.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to notify user")
	} else {
		alert.Actions = append(alert.Actions, ActionNotified)
	}

	err := resilience.Retry(func() error {
		return d.store.SaveAlert(alert)
	}, d.retry, nil)
	if err != nil {
		d.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to persist alert")
		return alert, fmt.Errorf("failed to persist alert %s: %w", alert.ID, err)
	}

	d.logger.Info().
		Str("alert_id", alert.ID).
		Str("session_id", sess.ID).
		Str("severity", string(alert.Severity)).
		Float32("probability", probability).
		Msg("Alert dispatched")
	return alert, nil
}

// Forget drops the idempotency records of a finished session
func (d *Dispatcher) Forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.seen {
		if len(key) > len(sessionID) && key[:len(sessionID)] == sessionID && key[len(sessionID)] == '@' {
			delete(d.seen, key)
		}
	}
}
