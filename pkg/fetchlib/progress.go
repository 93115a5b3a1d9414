package fetchlib

import (
	"sync"
	"sync/atomic"
)

// Progress is one normalized progress event. Total is -1 when the
// server did not declare a Content-Length, in which case Percent
// reports 0 and callers should rely on Transferred alone.
type Progress struct {
	// Transferred is the number of bytes moved so far. Monotonically
	// non-decreasing for the lifetime of a request.
	Transferred int64
	// Total is the expected number of bytes, or -1 when indeterminate.
	Total int64
	// Delta is the number of bytes since the previous event.
	Delta int64
}

// Percent returns the completed fraction in [0, 100], or 0 when the
// total is indeterminate.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Transferred) / float64(p.Total) * 100
}

// ProgressHandlerFunc receives normalized progress events.
type ProgressHandlerFunc func(p Progress)

// DispatchFunc runs a callback on the caller's designated context
// (a UI loop, usually). The default dispatcher is a single goroutine
// per request delivering callbacks in order, so handler bodies never
// need their own synchronization. A custom dispatcher must run every
// callback it is handed: request completion is signalled through it.
type DispatchFunc func(fn func())

// tracker accumulates byte deltas for one direction of a transfer and
// converts them into Progress events on the dispatcher. The transferred
// counter survives resets of the denominator (auth retries restart the
// upload percentage, never the raw counter).
type tracker struct {
	transferred atomic.Int64
	total       atomic.Int64
	base        atomic.Int64

	fn       ProgressHandlerFunc
	dispatch DispatchFunc
}

func newTracker(fn ProgressHandlerFunc, dispatch DispatchFunc) *tracker {
	t := &tracker{fn: fn, dispatch: dispatch}
	t.total.Store(-1)
	return t
}

// setTotal sets the expected byte count for the current exchange and
// marks the already-transferred bytes as the new baseline, so the
// percentage restarts while the raw counter keeps growing.
func (t *tracker) setTotal(total int64) {
	t.base.Store(t.transferred.Load())
	t.total.Store(total)
}

func (t *tracker) count() int64 {
	return t.transferred.Load()
}

// add records n more bytes and emits one progress event.
func (t *tracker) add(n int) {
	if n <= 0 {
		return
	}
	moved := t.transferred.Add(int64(n))
	if t.fn == nil {
		return
	}
	p := Progress{
		Transferred: moved - t.base.Load(),
		Total:       t.total.Load(),
		Delta:       int64(n),
	}
	fn := t.fn
	t.dispatch(func() { fn(p) })
}

// callbackLoop is the default dispatch context: one goroutine draining
// a queue of callbacks in submission order. The queue is unbounded so a
// callback may itself dispatch (or cancel the request) without ever
// blocking against its own goroutine. Submissions after Shutdown are
// dropped.
type callbackLoop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newCallbackLoop() *callbackLoop {
	l := &callbackLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *callbackLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 {
			if l.closed {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		fns := l.queue
		l.queue = nil
		l.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
}

func (l *callbackLoop) Dispatch(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Shutdown stops accepting new callbacks without waiting; the ones
// already queued are still delivered in order before the loop exits.
func (l *callbackLoop) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
