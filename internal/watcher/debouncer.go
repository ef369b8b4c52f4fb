package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces bursts of events per path and emits them as one batch
// once no new event has arrived for the window.
//
// Per path, the first and latest operation decide what is reported:
//   - CREATE then MODIFY reports CREATE
//   - CREATE then DELETE reports nothing
//   - DELETE then CREATE reports MODIFY
//   - anything else reports the latest operation
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]pending
	timer   *time.Timer
	out     chan []FileEvent
	stopped bool
}

type pending struct {
	first Operation
	event FileEvent
}

// NewDebouncer creates a Debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]pending),
		out:     make(chan []FileEvent, 4),
	}
}

// merge returns the operation to report for a path that saw first and then
// latest, or false when the two cancel out.
func merge(first, latest Operation) (Operation, bool) {
	switch {
	case first == OpCreate && latest == OpModify:
		return OpCreate, true
	case first == OpCreate && latest == OpDelete:
		return 0, false
	case first == OpDelete && latest == OpCreate:
		return OpModify, true
	default:
		return latest, true
	}
}

// Add records ev and restarts the quiet window.
func (d *Debouncer) Add(ev FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	p, seen := d.pending[ev.Path]
	if !seen {
		d.pending[ev.Path] = pending{first: ev.Operation, event: ev}
	} else if op, ok := merge(p.first, ev.Operation); ok {
		ev.Operation = op
		d.pending[ev.Path] = pending{first: p.first, event: ev}
	} else {
		delete(d.pending, ev.Path)
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, p := range d.pending {
		batch = append(batch, p.event)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]pending)

	select {
	case d.out <- batch:
	default:
		slog.Warn("debouncer_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

// Output delivers coalesced batches. It is closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.out
}

// Stop discards pending events and closes Output. Safe to call twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
