package chain

import (
	"sync"
	"time"
)

// Tracker measures elapsed wall time per chain invocation. Each invocation
// registers under its own run ID, so concurrent invocations never read each
// other's timings.
type Tracker struct {
	// mu protects the starts map.
	mu sync.Mutex
	// starts maps run ID to invocation start time.
	starts map[string]time.Time
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewTracker constructs a Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		starts: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Start records the start of a run. Starting an already-started run ID
// restarts its clock.
func (t *Tracker) Start(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.starts[runID] = t.now()
}

// End returns the elapsed time since Start for the run and forgets it.
// Ending an unknown run returns zero.
func (t *Tracker) End(runID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok := t.starts[runID]
	if !ok {
		return 0
	}
	delete(t.starts, runID)
	return t.now().Sub(start)
}

// Active returns the number of runs currently being timed.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.starts)
}
