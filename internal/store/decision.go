package store

// Decision is the outcome of comparing a live file with its record.
type Decision int

const (
	// Miss means there is no record; generate a preview.
	Miss Decision = iota
	// Hit means the stored preview is current.
	Hit
	// Stale means the record exists but the preview must be regenerated.
	Stale
)

func (d Decision) String() string {
	switch d {
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Snapshot is the part of a directory entry the staleness decision needs.
type Snapshot struct {
	Size     int64
	Modified int64
}

// Decide compares a live file with its stored record. A record is a hit
// only when both modification time and size match and a preview exists;
// rating-only rows are stale.
func Decide(entry Snapshot, rec *Record) Decision {
	if rec == nil {
		return Miss
	}
	if rec.Modified == entry.Modified && rec.Size == entry.Size && rec.HasPreview() {
		return Hit
	}
	return Stale
}
