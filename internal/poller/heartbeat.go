package poller

import (
	"sync"
	"time"
)

// Poll cycle results recorded in the heartbeat.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultDisabled = "disabled"
)

// Heartbeat is the process-wide record of poll activity. The poller is
// its only writer; everything else reads snapshots.
type Heartbeat struct {
	mu           sync.RWMutex
	lastPollAt   time.Time
	lastResult   string
	lastError    string
	totalPolls   int64
	totalErrors  int64
	sinceMinutes int
	interval     time.Duration
}

// HeartbeatSnapshot is a read-only copy of the heartbeat for the status
// endpoint.
type HeartbeatSnapshot struct {
	LastPollAt   *time.Time `json:"last_poll_at,omitempty"`
	LastResult   string     `json:"last_result"`
	LastError    string     `json:"last_error,omitempty"`
	TotalPolls   int64      `json:"total_polls"`
	TotalErrors  int64      `json:"total_errors"`
	SinceMinutes int        `json:"since_minutes"`
	Interval     string     `json:"interval"`
}

// NewHeartbeat creates a heartbeat with its configured window and
// interval recorded for the status endpoint.
func NewHeartbeat(sinceMinutes int, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		sinceMinutes: sinceMinutes,
		interval:     interval,
	}
}

func (h *Heartbeat) recordOK() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastPollAt = time.Now().UTC()
	h.lastResult = ResultOK
	h.lastError = ""
	h.totalPolls++
}

func (h *Heartbeat) recordError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastPollAt = time.Now().UTC()
	h.lastResult = ResultError
	h.lastError = err.Error()
	h.totalPolls++
	h.totalErrors++
}

func (h *Heartbeat) recordDisabled() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastResult = ResultDisabled
	h.lastError = ""
}

// Snapshot returns a copy of the current heartbeat state.
func (h *Heartbeat) Snapshot() HeartbeatSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := HeartbeatSnapshot{
		LastResult:   h.lastResult,
		LastError:    h.lastError,
		TotalPolls:   h.totalPolls,
		TotalErrors:  h.totalErrors,
		SinceMinutes: h.sinceMinutes,
		Interval:     h.interval.String(),
	}
	if !h.lastPollAt.IsZero() {
		t := h.lastPollAt
		snap.LastPollAt = &t
	}
	return snap
}
