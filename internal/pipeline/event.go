package pipeline

import (
	"time"
)

// Kind distinguishes per-item events from the terminal event.
type Kind int

const (
	// ItemReady carries the result for one entry.
	ItemReady Kind = iota
	// Done is sent exactly once per run, last.
	Done
)

func (k Kind) String() string {
	if k == Done {
		return "done"
	}
	return "item_ready"
}

// Status says how an ItemReady event was produced.
type Status int

const (
	// StatusHit served a current preview from the store.
	StatusHit Status = iota
	// StatusMiss generated a preview for a file with no record.
	StatusMiss
	// StatusStale regenerated an outdated preview.
	StatusStale
	// StatusRenamed reused the preview of a renamed, unchanged file.
	StatusRenamed
	// StatusPassThrough marks folders and unsupported files.
	StatusPassThrough
	// StatusError means the entry could not be decoded.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMiss:
		return "miss"
	case StatusStale:
		return "stale"
	case StatusRenamed:
		return "renamed"
	case StatusPassThrough:
		return "passthrough"
	default:
		return "error"
	}
}

// Event is delivered on Run.Events in completion order.
type Event struct {
	Kind  Kind
	RunID uint64

	// ItemReady fields.
	Key     string
	Name    string
	Path    string
	Preview []byte
	// Err is a *codec.DecodeError when the entry could not be decoded.
	Err    error
	Rating int
	Tag    int
	Status Status
	// PassThrough is set for folders and unsupported files; they carry no
	// preview and the consumer shows a type icon.
	PassThrough bool
	// Cached reports whether Preview is persisted in the store.
	Cached bool

	// Done fields.
	Cancelled bool
	Stats     RunStats
}

// RunStats summarizes a run.
type RunStats struct {
	Total       int
	Hits        int
	Misses      int
	Stale       int
	Renamed     int
	PassThrough int
	Errors      int
	StoreErrors int
	// Degraded is set when the store could not be used and nothing was
	// persisted.
	Degraded bool
	Duration time.Duration
}
