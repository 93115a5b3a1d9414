// Package queue runs transfer requests through a bounded pool of
// workers so a batch of URLs never opens more connections than asked.
package queue

import (
	"context"
	"sync"

	"github.com/opfetch/opfetch/pkg/fetchlib"
	"github.com/opfetch/opfetch/pkg/logger"
)

const DefaultConcurrency = 4

// Queue dispatches requests to a fixed number of worker goroutines.
// Requests are started in submission order; completion order depends on
// the servers.
type Queue struct {
	log     logger.Logger
	jobs    chan *fetchlib.Request
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	pending []*fetchlib.Request
	closed  bool
}

// New creates a queue with the given worker count and starts the
// workers. A non-positive concurrency falls back to DefaultConcurrency.
func New(ctx context.Context, l logger.Logger, concurrency int) *Queue {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if l == nil {
		l = logger.NewNopLogger()
	}
	qctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		log:    l,
		jobs:   make(chan *fetchlib.Request),
		ctx:    qctx,
		cancel: cancel,
	}
	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

// Enqueue hands a request to the pool, blocking until a worker accepts
// it. A request enqueued after Close or Abort is cancelled immediately.
func (q *Queue) Enqueue(r *fetchlib.Request) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		r.Cancel()
		return
	}
	q.pending = append(q.pending, r)
	q.mu.Unlock()

	select {
	case q.jobs <- r:
	case <-q.ctx.Done():
		r.Cancel()
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case r, ok := <-q.jobs:
			if !ok {
				return
			}
			q.log.Info("worker %d: %s %s", id, "starting", r.URL().Redacted())
			if err := r.Run(); err != nil {
				q.log.Error("worker %d: %s: %s", id, r.URL().Redacted(), err.Error())
			} else {
				q.log.Info("worker %d: finished %s", id, r.URL().Redacted())
			}
			q.done(r)
		}
	}
}

func (q *Queue) done(r *fetchlib.Request) {
	q.mu.Lock()
	for i, p := range q.pending {
		if p == r {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
}

// Close stops accepting new requests and waits for in-flight transfers
// to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.jobs)
	q.wg.Wait()
	q.cancel()
}

// Abort cancels every in-flight request and shuts the pool down without
// waiting for transfers to complete normally.
func (q *Queue) Abort() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	pending := append([]*fetchlib.Request(nil), q.pending...)
	q.mu.Unlock()

	for _, r := range pending {
		r.Cancel()
	}
	q.cancel()
	q.wg.Wait()
}

// Len reports the number of requests submitted but not yet finished.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
