package ui

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultDebounceDelay is the quiet period before a text input is applied.
const DefaultDebounceDelay = 300 * time.Millisecond

// Debouncer delays a callback until a field has been quiet for the delay.
// Each field owns at most one pending timer; a new Trigger replaces it.
type Debouncer struct {
	clock clock.WithDelayedExecution
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]clock.Timer
	seq     map[string]uint64
	stopped bool
}

// NewDebouncer returns a debouncer. clk may be nil.
func NewDebouncer(delay time.Duration, clk clock.WithDelayedExecution) *Debouncer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &Debouncer{
		clock:  clk,
		delay:  delay,
		timers: map[string]clock.Timer{},
		seq:    map[string]uint64{},
	}
}

// Trigger schedules fn for field, cancelling the pending call of that field.
func (d *Debouncer) Trigger(field string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[field]; ok {
		t.Stop()
	}
	d.seq[field]++
	seq := d.seq[field]
	d.timers[field] = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped || d.seq[field] != seq {
			d.mu.Unlock()
			return
		}
		delete(d.timers, field)
		d.mu.Unlock()
		fn()
	})
}

// Pending reports whether field has a scheduled call.
func (d *Debouncer) Pending(field string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[field]
	return ok
}

// Cancel drops the pending call of field.
func (d *Debouncer) Cancel(field string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked(field)
}

func (d *Debouncer) cancelLocked(field string) {
	if t, ok := d.timers[field]; ok {
		t.Stop()
		delete(d.timers, field)
	}
	d.seq[field]++
}

// Stop cancels every pending call. Later Triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for field := range d.timers {
		d.cancelLocked(field)
	}
	d.stopped = true
}
