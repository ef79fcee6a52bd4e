package filesystem

// Observer records filesystem operation metrics. The metrics package provides
// the implementation so this package does not import it.
type Observer interface {
	// ObserveOperation records duration and error status for an operation
	// ("stat", "open", "readdir") on the labelled volume.
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(op, volume string)
	ObserveRetrySuccess(op, volume string)
	ObserveRetryFailure(op, volume string)
	ObserveRetryDuration(op, volume string, durationSeconds float64)
	ObserveStaleError(op, volume string)
}

// defaultObserver is nil until SetObserver is called; recording is skipped
// while it is nil.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
