package detection

// Store is the persistence boundary the pipeline writes through. All saves
// are upserts keyed by ID, so retried writes are safe. Implementations must
// be usable from multiple goroutines.
type Store interface {
	SaveSession(s *Session) error
	SaveResult(r *Result) error
	SaveAlert(a *AlertEvent) error
}

// Notifier pushes a raised alert to the user. Delivery is best effort; the
// dispatcher persists the alert regardless of whether notification succeeds.
type Notifier interface {
	Notify(alert *AlertEvent) error
}
