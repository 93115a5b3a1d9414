package fetchlib

import (
	"log"
	"net/http"
)

type (
	// FinishedHandlerFunc is invoked exactly once when a request ends
	// in the Finished state.
	FinishedHandlerFunc func(r *Request)
	// FailedHandlerFunc is invoked exactly once when a request ends in
	// the Failed or Cancelled state. Cancellation carries ErrCancelled.
	FailedHandlerFunc func(r *Request, err error)
	// AuthNeededHandlerFunc is invoked when no credentials could be
	// resolved automatically for a challenge. The request stays in
	// AwaitingAuthentication until RetryWithAuthentication or Cancel
	// is called, commonly from a UI context.
	AuthNeededHandlerFunc func(r *Request, c Challenge)
	// HeadersHandlerFunc is invoked after each response head is parsed,
	// with the status code and headers of that exchange.
	HeadersHandlerFunc func(statusCode int, header http.Header)
	// StateHandlerFunc is invoked on every state transition.
	StateHandlerFunc func(from, to State)
)

// Handlers groups every callback a request can fire. Progress handlers
// and all of the below are delivered on the request's single callback
// context, never on the transport goroutine. Unset fields default to
// no-ops.
type Handlers struct {
	FinishedHandler         FinishedHandlerFunc
	FailedHandler           FailedHandlerFunc
	AuthNeededHandler       AuthNeededHandlerFunc
	HeadersHandler          HeadersHandlerFunc
	StateHandler            StateHandlerFunc
	UploadProgressHandler   ProgressHandlerFunc
	DownloadProgressHandler ProgressHandlerFunc
}

func (h *Handlers) setDefault(l *log.Logger) {
	if h.FinishedHandler == nil {
		h.FinishedHandler = func(r *Request) {}
	}
	if h.FailedHandler == nil {
		h.FailedHandler = func(r *Request, err error) {
			wlog(l, "request failed: %s", err.Error())
		}
	} else {
		failedHandler := h.FailedHandler
		h.FailedHandler = func(r *Request, err error) {
			wlog(l, "request failed: %s", err.Error())
			failedHandler(r, err)
		}
	}
	if h.AuthNeededHandler == nil {
		h.AuthNeededHandler = func(r *Request, c Challenge) {}
	}
	if h.HeadersHandler == nil {
		h.HeadersHandler = func(statusCode int, header http.Header) {}
	}
	if h.StateHandler == nil {
		h.StateHandler = func(from, to State) {}
	}
}
