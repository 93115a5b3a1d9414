package queue

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opfetch/opfetch/pkg/fetchlib"
	"github.com/opfetch/opfetch/pkg/logger"
)

// cannedTransport answers every exchange with the same scripted
// response and counts how many connections were opened.
type cannedTransport struct {
	response string
	reader   *strings.Reader
	opens    atomic.Int32
}

func (t *cannedTransport) Open(ctx context.Context, addr fetchlib.Address) error {
	t.opens.Add(1)
	t.reader = strings.NewReader(t.response)
	return nil
}

func (t *cannedTransport) Write(p []byte) (int, error) { return len(p), nil }

func (t *cannedTransport) Read(p []byte) (int, error) { return t.reader.Read(p) }

func (t *cannedTransport) SetDeadline(time.Time) error { return nil }

func (t *cannedTransport) Close() error { return nil }

const okResponse = "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"

func newQueuedRequest(t *testing.T) *fetchlib.Request {
	t.Helper()
	r, err := fetchlib.NewRequest("http://example.com/", &fetchlib.RequestOpts{
		Session:   fetchlib.NewSession(),
		Transport: &cannedTransport{response: okResponse},
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestQueueRunsAllRequests(t *testing.T) {
	log := logger.NewMockLogger()
	q := New(context.Background(), log, 2)

	requests := make([]*fetchlib.Request, 5)
	for i := range requests {
		requests[i] = newQueuedRequest(t)
		q.Enqueue(requests[i])
	}
	q.Close()

	for i, r := range requests {
		if r.State() != fetchlib.StateFinished {
			t.Errorf("request %d state = %v", i, r.State())
		}
	}
	if q.Len() != 0 {
		t.Errorf("pending after close = %d", q.Len())
	}
	if len(log.InfoCalls) == 0 {
		t.Error("workers logged nothing")
	}
}

func TestQueueDefaultConcurrency(t *testing.T) {
	q := New(context.Background(), nil, 0)
	r := newQueuedRequest(t)
	q.Enqueue(r)
	q.Close()
	if r.State() != fetchlib.StateFinished {
		t.Errorf("state = %v", r.State())
	}
}

func TestQueueEnqueueAfterClose(t *testing.T) {
	q := New(context.Background(), logger.NewNopLogger(), 1)
	q.Close()

	r := newQueuedRequest(t)
	q.Enqueue(r)
	if err := r.Wait(); !errors.Is(err, fetchlib.ErrCancelled) {
		t.Errorf("Wait = %v, want ErrCancelled", err)
	}
}

func TestQueueAbortCancelsPending(t *testing.T) {
	q := New(context.Background(), logger.NewNopLogger(), 1)
	r := newQueuedRequest(t)
	q.Enqueue(r)
	q.Abort()

	// the request either completed before the abort landed or was
	// cancelled by it; it must not be left running
	switch r.State() {
	case fetchlib.StateFinished, fetchlib.StateCancelled:
	default:
		t.Errorf("state after abort = %v", r.State())
	}
}
