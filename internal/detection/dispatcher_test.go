package detection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veristream/callshield/internal/resilience"
)

func TestDispatcher_Dispatch(t *testing.T) {
	st := newMemStore()
	notifier := &memNotifier{}
	d := NewDispatcher(st, notifier, nil)

	sess := &Session{ID: "sess-1", CallID: "call-1"}
	at := time.Now().UTC()

	alert, err := d.Dispatch(sess, 0.92, 3.5, at)
	require.NoError(t, err)
	require.NotNil(t, alert)
	require.Equal(t, SeverityCritical, alert.Severity)
	require.Equal(t, "sess-1", alert.SessionID)
	require.Equal(t, "call-1", alert.CallID)
	require.Contains(t, alert.Actions, ActionNotified)
	require.Contains(t, alert.Actions, ActionLogged)

	stored, err := st.GetAlert(alert.ID)
	require.NoError(t, err)
	require.Equal(t, alert.Probability, stored.Probability)
	require.Equal(t, 1, notifier.count())
}

func TestDispatcher_IdempotentPerOffset(t *testing.T) {
	st := newMemStore()
	notifier := &memNotifier{}
	d := NewDispatcher(st, notifier, nil)

	sess := &Session{ID: "sess-1", CallID: "call-1"}
	at := time.Now().UTC()

	first, err := d.Dispatch(sess, 0.92, 3.5, at)
	require.NoError(t, err)
	require.NotNil(t, first)

	dup, err := d.Dispatch(sess, 0.92, 3.5, at.Add(time.Second))
	require.NoError(t, err)
	require.Nil(t, dup, "same session and offset must not alert twice")
	require.Equal(t, 1, notifier.count())
	require.Len(t, st.alerts, 1)

	// A different offset in the same session is a new alert
	second, err := d.Dispatch(sess, 0.95, 7.5, at.Add(2*time.Second))
	require.NoError(t, err)
	require.NotNil(t, second)
}

func TestDispatcher_NotifyFailureStillPersists(t *testing.T) {
	st := newMemStore()
	notifier := &memNotifier{err: errors.New("notification channel down")}
	d := NewDispatcher(st, notifier, nil)

	sess := &Session{ID: "sess-1", CallID: "call-1"}
	alert, err := d.Dispatch(sess, 0.85, 1.0, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, alert)

	// Delivery failed, so the only recorded action is the log entry
	require.Equal(t, []AlertAction{ActionLogged}, alert.Actions)

	stored, err := st.GetAlert(alert.ID)
	require.NoError(t, err)
	require.Equal(t, []AlertAction{ActionLogged}, stored.Actions)
}

func TestDispatcher_PersistFailureReported(t *testing.T) {
	st := newMemStore()
	st.saveErr = errors.New("disk full")
	d := NewDispatcher(st, &memNotifier{}, &resilience.RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1,
	})

	sess := &Session{ID: "sess-1", CallID: "call-1"}
	alert, err := d.Dispatch(sess, 0.85, 1.0, time.Now().UTC())
	require.Error(t, err)
	require.NotNil(t, alert, "the alert still reached the user even if persistence failed")
}

func TestDispatcher_Forget(t *testing.T) {
	st := newMemStore()
	d := NewDispatcher(st, &memNotifier{}, nil)

	sess := &Session{ID: "sess-1", CallID: "call-1"}
	at := time.Now().UTC()

	_, err := d.Dispatch(sess, 0.9, 3.5, at)
	require.NoError(t, err)

	d.Forget("sess-1")

	// After forgetting, the same offset can alert again
	again, err := d.Dispatch(sess, 0.9, 3.5, at)
	require.NoError(t, err)
	require.NotNil(t, again)
}
