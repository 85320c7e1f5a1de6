package proof

import (
	"sync"
	"time"
)

// debounceInterval is the quiet period before a changed file is
// re-verified. Editors and build tools write in bursts; verifying each
// intermediate write would flood the event log with violations.
const debounceInterval = 200 * time.Millisecond

// debouncer coalesces rapid change events per file path.
type debouncer struct {
	mu       sync.Mutex
	pending  map[string]*time.Timer
	interval time.Duration
	callback func(path string)
	stopped  bool
}

func newDebouncer(interval time.Duration, callback func(path string)) *debouncer {
	return &debouncer{
		pending:  make(map[string]*time.Timer),
		interval: interval,
		callback: callback,
	}
}

// trigger schedules a callback for the path, resetting any pending
// timer so only the last write in a burst fires.
func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if timer, exists := d.pending[path]; exists {
		timer.Stop()
	}
	d.pending[path] = time.AfterFunc(d.interval, func() {
		d.fire(path)
	})
}

func (d *debouncer) fire(path string) {
	d.mu.Lock()
	if _, exists := d.pending[path]; !exists || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	d.callback(path)
}

// stop cancels all pending timers and drops new triggers.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for path, timer := range d.pending {
		timer.Stop()
		delete(d.pending, path)
	}
}
