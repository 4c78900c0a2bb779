package orchestrator

import (
	"sync"

	"github.com/taskpilot/taskpilot/internal/adapter"
)

// dispatcher delivers progress and session notifications to the caller
// off the process read loop. Notifications are queued unbounded and
// delivered in order by a single goroutine, so a slow callback can never
// backpressure stdout reads (a full pipe buffer would stall the child).
type dispatcher struct {
	cb Callbacks

	mu      sync.Mutex
	queue   []notification
	wake    chan struct{}
	closed  bool
	drained chan struct{}
}

type notification struct {
	event     *adapter.ProgressEvent
	sessionID string
}

func newDispatcher(cb Callbacks) *dispatcher {
	d := &dispatcher{
		cb:      cb,
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
	go d.run()
	return d
}

// Progress enqueues a progress event for ordered delivery.
func (d *dispatcher) Progress(ev adapter.ProgressEvent) {
	d.enqueue(notification{event: &ev})
}

// Session enqueues a session-capture notification.
func (d *dispatcher) Session(id string) {
	d.enqueue(notification{sessionID: id})
}

func (d *dispatcher) enqueue(n notification) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, n)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting notifications and blocks until everything
// already queued has been delivered. The terminal result must only be
// produced after Close returns, preserving the ordering guarantee.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.drained
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.drained
}

func (d *dispatcher) run() {
	defer close(d.drained)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, n := range batch {
			if n.event != nil {
				if d.cb.OnProgress != nil {
					d.cb.OnProgress(*n.event)
				}
				continue
			}
			if d.cb.OnSessionID != nil {
				d.cb.OnSessionID(n.sessionID)
			}
		}

		if closed && len(batch) == 0 {
			return
		}
		if closed {
			// Drain whatever arrived while delivering the batch.
			continue
		}
		<-d.wake
	}
}
