package coherence

import (
	"context"
	"time"
)

// Fetcher abstracts the page-rendering source of raw chart series.
// Implementations make a single attempt per call.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]Series, error)
}

// Store is the contract of the current-snapshot cache.
type Store interface {
	Save(snapshot Snapshot)
	// SaveIfNewer stores snapshot only when the cache is empty or holds an
	// older one, and reports whether it did.
	SaveIfNewer(snapshot Snapshot) bool
	Latest() (Snapshot, error)
}

// LogWriter persists snapshots to the append-only log and reads the tail back.
type LogWriter interface {
	Append(snapshot Snapshot) error
	Last() (Snapshot, error)
}

// Recorder receives cycle metrics. A nil Recorder is allowed.
type Recorder interface {
	RecordCycle(result string, duration time.Duration)
	RecordSnapshot(snapshot Snapshot)
	RecordLogAppend(err error)
}
