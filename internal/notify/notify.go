// Package notify delivers alerts to the user-facing channel.
package notify

import (
	"github.com/rs/zerolog"

	"github.com/veristream/callshield/internal/detection"
	"github.com/veristream/callshield/internal/observability"
)

// LogNotifier writes alerts to the structured log. It stands in for platform
// notification channels when none is wired, so every alert is at least
// visible to an operator.
type LogNotifier struct {
	logger zerolog.Logger
}

var _ detection.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier backed by the global logger
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{
		logger: observability.GetLogger().With().Str("component", "notifier").Logger(),
	}
}

func (n *LogNotifier) Notify(alert *detection.AlertEvent) error {
	n.logger.Warn().
		Str("alert_id", alert.ID).
		Str("call_id", alert.CallID).
		Str("severity", string(alert.Severity)).
		Float32("probability", alert.Probability).
		Float64("offset_sec", alert.Offset).
		Msg("Possible deepfake detected on call")
	return nil
}
