package gpio

import (
	"sync"
	"time"
)

// Debouncer accepts an edge only when strictly more than one window has passed
// since the previously accepted edge; an edge exactly one window later is
// dropped. Rejected edges do not move the window.
type Debouncer struct {
	window time.Duration

	mu       sync.Mutex
	last     time.Time
	accepted bool
}

// NewDebouncer returns a debouncer for window. A zero window accepts every edge.
func NewDebouncer(window time.Duration) *Debouncer {
	if window < 0 {
		window = 0
	}
	return &Debouncer{window: window}
}

// Accept reports whether an edge observed at now should be emitted.
func (d *Debouncer) Accept(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.accepted && d.window > 0 && now.Sub(d.last) <= d.window {
		return false
	}
	d.last = now
	d.accepted = true
	return true
}

// Window returns the configured debounce window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}
