package fetchlib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Start begins executing the request on its own goroutine. It can be
// called exactly once; the terminal outcome is reported through the
// Finished/Failed handlers and the Wait method.
func (r *Request) Start() error {
	r.mu.Lock()
	if r.started || r.state.Terminal() {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()
	r.l.Println(r.method, r.rawURL)
	safeGo(r.l, "request", func(p interface{}) {
		r.finalize(fmt.Errorf("%w: engine panic: %v", ErrStream, p))
	}, r.run)
	return nil
}

// Cancel aborts the request from any goroutine, at any non-terminal
// state. It interrupts a pending authentication wait, closes the
// transport and sink and fires the failure callback exactly once with
// ErrCancelled. Calling it twice, or after termination, is a no-op.
func (r *Request) Cancel() {
	r.mu.Lock()
	if r.cancelled || r.state.Terminal() {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	r.cond.Broadcast()
	r.mu.Unlock()
	r.ctxCancel()
	r.transport.Close()
	r.finalize(ErrCancelled)
}

// RetryWithAuthentication supplies credentials for a pending challenge
// and wakes the engine, which rebuilds the message with them and
// reconnects. Calling it while the request is not awaiting
// authentication reports ErrAuthNotPending.
func (r *Request) RetryWithAuthentication(c Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateAwaitingAuthentication || r.cancelled {
		return ErrAuthNotPending
	}
	r.suppliedCreds = &c
	r.cond.Broadcast()
	return nil
}

func (r *Request) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Request) setState(to State) {
	r.mu.Lock()
	if r.state.Terminal() || r.state == to {
		r.mu.Unlock()
		return
	}
	from := r.state
	r.state = to
	r.mu.Unlock()
	r.l.Println("state:", from, "->", to)
	h := r.handlers.StateHandler
	r.dispatch(func() { h(from, to) })
}

// run is the engine goroutine: it performs wire exchanges until one of
// them settles the request, then finalizes exactly once.
func (r *Request) run() {
	p, err := buildPayload(r.fields, r.fs)
	if err != nil {
		r.finalize(err)
		return
	}
	r.payload = p
	for {
		done, err := r.perform()
		if err != nil {
			r.finalize(err)
			return
		}
		if done {
			r.finalize(nil)
			return
		}
	}
}

// perform runs one connection's worth of exchanges: it opens the
// transport, then writes request heads and reads response heads on the
// same stream for as long as authentication rounds allow reuse. It
// returns done=false when the engine must reconnect (redirect, or an
// auth round on a connection that cannot be reused).
func (r *Request) perform() (done bool, err error) {
	if r.isCancelled() {
		return false, ErrCancelled
	}
	r.setState(StateConnecting)
	addr := r.targetAddress()
	if err := r.openTransport(addr); err != nil {
		return false, err
	}
	defer r.transport.Close()
	if r.timeout > 0 {
		r.transport.SetDeadline(time.Now().Add(r.timeout))
	}
	br := bufio.NewReaderSize(r.transport, int(DEF_CHUNK_SIZE))

	for {
		if err := r.writeRequest(); err != nil {
			return false, err
		}
		r.setState(StateReceivingHeaders)
		resp, err := parseResponseHead(br)
		if err != nil {
			return false, r.streamFailure(err)
		}
		// interim heads (100 Continue and friends) carry no body; the
		// final head follows on the same stream
		for resp.StatusCode >= 100 && resp.StatusCode < 200 {
			resp, err = parseResponseHead(br)
			if err != nil {
				return false, r.streamFailure(err)
			}
		}
		r.recordResponseHead(resp)

		switch {
		case resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusProxyAuthRequired:
			prompted, err := r.resolveAuth(resp)
			if err != nil {
				return false, err
			}
			// a connection that sat idle through an interactive pause
			// is not trusted to still be alive
			if !prompted && connReusable(resp) {
				if _, err := io.Copy(io.Discard, resp.bodyReader(br)); err != nil {
					return false, nil // reconnect instead
				}
				continue
			}
			return false, nil

		case isRedirect(resp.StatusCode):
			r.mergeCookies(resp)
			return false, r.followRedirect(resp)

		default:
			r.mergeCookies(resp)
			r.storeAcceptedCredentials(resp)
			return true, r.readBody(resp, br)
		}
	}
}

// openTransport connects to addr, translating a proxy's CONNECT 407
// into the proxy-authentication path.
func (r *Request) openTransport(addr Address) error {
	for {
		err := r.transport.Open(r.ctx, addr)
		if err == nil {
			// a Cancel that landed mid-dial found nothing to close;
			// the freshly opened stream must not outlive it
			if r.isCancelled() {
				r.transport.Close()
				return ErrCancelled
			}
			return nil
		}
		if r.isCancelled() {
			return ErrCancelled
		}
		var te *TunnelError
		if errors.As(err, &te) && te.StatusCode == http.StatusProxyAuthRequired {
			if err := r.resolveTunnelAuth(te); err != nil {
				return err
			}
			continue
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
}

// resolveTunnelAuth handles a proxy that rejected the CONNECT request.
// Only Basic is usable inside a tunnel handshake here; the resolved
// credentials are injected into the proxy configuration and the dial
// retried.
func (r *Request) resolveTunnelAuth(te *TunnelError) error {
	nt, ok := r.transport.(*NetTransport)
	if !ok || nt.Proxy == nil {
		return fmt.Errorf("%w: proxy requires authentication", ErrAuthenticationFailed)
	}
	resp := &Response{StatusCode: http.StatusProxyAuthRequired, Header: te.Header}
	ch := pickChallenge(parseChallenges(resp))
	if ch == nil || ch.Scheme != AuthBasic {
		return fmt.Errorf("%w: unsupported proxy challenge", ErrAuthenticationFailed)
	}
	if nt.Proxy.Username != "" {
		return fmt.Errorf("%w: proxy rejected credentials for realm %q", ErrAuthenticationFailed, ch.Realm)
	}
	creds, ok := r.lookupCredentials(ch)
	if !ok {
		var err error
		creds, err = r.waitForCredentials(ch)
		if err != nil {
			return err
		}
	}
	nt.Proxy.Username = creds.Username
	nt.Proxy.Password = creds.Password
	return nil
}

func (r *Request) writeRequest() error {
	wire := &wireRequest{
		method:        r.method,
		u:             r.u,
		headers:       r.headers.Clone(),
		contentLength: 0,
		chunked:       false,
	}
	if r.payload != nil {
		wire.contentType = r.payload.contentType
		wire.contentLength = r.payload.length
		wire.chunked = r.chunkedUpload
	} else if r.method == http.MethodPost || r.method == http.MethodPut {
		wire.contentLength = 0
	} else {
		wire.contentLength = -1
	}
	if r.useCookies {
		wire.cookieLine = r.session.SelectCookies(r.u, r.cookieOverrides)
	} else {
		wire.cookieLine = cookieLine(r.cookieOverrides)
	}
	if r.neg.creds != nil {
		value, err := r.neg.authorize(r.method, r.u.RequestURI())
		if err != nil {
			return err
		}
		wire.headers.Update(r.neg.challenge.headerName(), value)
	}

	if _, err := r.transport.Write(buildRequestHead(wire)); err != nil {
		return r.streamFailure(err)
	}
	if r.payload == nil {
		return nil
	}

	r.setState(StateSendingBody)
	r.up.setTotal(r.payload.length)
	body := r.payload.open()
	defer body.Close()
	proxied := NewCallbackProxyReader(body, r.up.add)
	var err error
	if r.chunkedUpload {
		cw := newChunkedWriter(r.transport)
		if _, err = io.Copy(cw, proxied); err == nil {
			err = cw.Close()
		}
	} else {
		_, err = io.Copy(r.transport, proxied)
	}
	if err != nil {
		return r.streamFailure(err)
	}
	return nil
}

func (r *Request) recordResponseHead(resp *Response) {
	r.mu.Lock()
	r.statusCode = resp.StatusCode
	r.respHeader = resp.Header
	r.mu.Unlock()
	r.l.Println("response:", resp.Status)
	h := r.handlers.HeadersHandler
	code, header := resp.StatusCode, resp.Header
	r.dispatch(func() { h(code, header) })
}

func (r *Request) mergeCookies(resp *Response) {
	if !r.useCookies {
		return
	}
	r.session.MergeCookies(resp.Header.Values("Set-Cookie"), r.u)
}

// resolveAuth reacts to a 401/407 response head. It either arms the
// negotiator with credentials for the next send or returns the error
// that settles the request. Waiting for the caller happens in here,
// with the request parked in AwaitingAuthentication.
func (r *Request) resolveAuth(resp *Response) (prompted bool, err error) {
	ch := pickChallenge(parseChallenges(resp))
	if ch == nil {
		return false, fmt.Errorf("%w: challenge carries no supported scheme", ErrAuthenticationFailed)
	}
	r.l.Println("challenge:", ch.Scheme, "realm:", ch.Realm)
	if r.neg.observeChallenge(ch) {
		// NTLM Type 2 continuation, not a rejection
		return false, nil
	}
	if r.neg.creds != nil {
		// the server rejected the credentials of the previous send
		r.neg.creds = nil
		if r.neg.attempts >= r.authRetries {
			return false, fmt.Errorf("%w: server rejected credentials for realm %q", ErrAuthenticationFailed, ch.Realm)
		}
		creds, err := r.waitForCredentials(ch)
		if err != nil {
			return true, err
		}
		r.neg.creds = &creds
		r.neg.attempts++
		return true, nil
	}
	creds, ok := r.lookupCredentials(ch)
	if !ok {
		creds, err = r.waitForCredentials(ch)
		if err != nil {
			return true, err
		}
		prompted = true
	}
	r.neg.creds = &creds
	r.neg.attempts++
	return prompted, nil
}

// lookupCredentials resolves credentials without involving the caller:
// explicit request credentials first, then the session cache, then the
// vault when keychain persistence is enabled.
func (r *Request) lookupCredentials(ch *Challenge) (Credentials, bool) {
	if r.explicitCreds != nil {
		return *r.explicitCreds, true
	}
	creds, ok := r.session.LookupCredentials(r.challengeKey(ch), r.useKeychain)
	return creds, ok
}

func (r *Request) challengeKey(ch *Challenge) CredentialKey {
	key := r.credentialKey(ch.Realm)
	if ch.Proxy {
		key.Protocol = "proxy"
		if nt, ok := r.transport.(*NetTransport); ok && nt.Proxy != nil {
			if host, port, err := net.SplitHostPort(nt.Proxy.Host); err == nil {
				key.Host = host
				key.Port, _ = strconv.Atoi(port)
			}
		}
	}
	return key
}

// connReusable reports whether the response leaves the connection in a
// state where another request can ride on it: the body length must be
// delimited and the server must not have asked to close.
func connReusable(resp *Response) bool {
	if strings.EqualFold(resp.Header.Get("Connection"), "close") {
		return false
	}
	return resp.chunked || resp.ContentLength >= 0
}

// cookieLine serializes request-level cookie overrides alone, for
// requests that opted out of the shared jar.
func cookieLine(overrides []Cookie) string {
	var b strings.Builder
	for _, c := range overrides {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}

// waitForCredentials parks the engine in AwaitingAuthentication until
// the caller resumes it with RetryWithAuthentication or aborts it with
// Cancel. The wait has no internal timeout; callers wanting one apply
// it externally. Cancellation always wins a race against resume.
func (r *Request) waitForCredentials(ch *Challenge) (Credentials, error) {
	r.setState(StateAwaitingAuthentication)
	h := r.handlers.AuthNeededHandler
	challenge := *ch
	r.dispatch(func() { h(r, challenge) })

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.suppliedCreds == nil && !r.cancelled {
		r.cond.Wait()
	}
	if r.cancelled {
		return Credentials{}, ErrCancelled
	}
	creds := *r.suppliedCreds
	r.suppliedCreds = nil
	return creds, nil
}

// storeAcceptedCredentials writes negotiated credentials back into the
// session cache and, when enabled, the vault, once the server stopped
// challenging.
func (r *Request) storeAcceptedCredentials(resp *Response) {
	if r.neg.creds == nil || r.neg.challenge == nil || resp.StatusCode >= 400 {
		return
	}
	key := r.challengeKey(r.neg.challenge)
	r.session.StoreCredentials(key, *r.neg.creds, r.useSession, r.useKeychain)
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// followRedirect rewrites the request target from the Location header.
// Credentials never survive a cross-host hop, and a 303 (or a POST
// answered with 301/302) downgrades to a body-less GET.
func (r *Request) followRedirect(resp *Response) error {
	if r.redirects >= r.maxRedirects {
		return fmt.Errorf("%w: exceeded %d hops", ErrTooManyRedirects, r.maxRedirects)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return fmt.Errorf("%w: redirect without Location", ErrMalformedResponse)
	}
	target, err := url.Parse(loc)
	if err != nil {
		return fmt.Errorf("%w: bad Location %q", ErrMalformedResponse, loc)
	}
	next := r.u.ResolveReference(target)
	if next.Scheme != "http" && next.Scheme != "https" {
		return fmt.Errorf("%w: cross-protocol redirect to %q", ErrTooManyRedirects, next.Scheme)
	}
	if next.Host != r.u.Host {
		r.neg.reset()
	}
	if resp.StatusCode == http.StatusSeeOther ||
		(r.method == http.MethodPost &&
			(resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound)) {
		r.method = http.MethodGet
		r.payload = nil
	}
	r.l.Println("redirect:", next.String())
	r.u = next
	r.redirects++
	return nil
}

// readBody streams the response body into the configured sink while
// feeding the download tracker, then settles the request.
func (r *Request) readBody(resp *Response, br *bufio.Reader) error {
	r.setState(StateReceivingBody)
	r.down.setTotal(resp.ContentLength)

	if r.sinkPath != "" {
		if resp.ContentLength > 0 {
			if err := checkDiskSpace(r.fs, filepath.Dir(r.sinkPath), resp.ContentLength); err != nil {
				return err
			}
		}
		f, err := r.fs.Create(r.sinkPath)
		if err != nil {
			return err
		}
		r.mu.Lock()
		// finalize may already have run off a concurrent Cancel; a sink
		// installed after it would never be closed
		if r.cancelled {
			r.mu.Unlock()
			f.Close()
			return ErrCancelled
		}
		r.sink = f
		r.mu.Unlock()
	}

	reader := resp.bodyReader(br)
	buf := make([]byte, DEF_CHUNK_SIZE)
	var got int64
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			got += int64(n)
			if werr := r.writeSink(buf[:n]); werr != nil {
				return werr
			}
			r.down.add(n)
		}
		if err == io.EOF {
			// a declared length the stream did not deliver is a drop,
			// never a success with a partial body
			if resp.ContentLength >= 0 && got < resp.ContentLength {
				return r.streamFailure(io.ErrUnexpectedEOF)
			}
			return nil
		}
		if err != nil {
			return r.streamFailure(err)
		}
	}
}

func (r *Request) writeSink(p []byte) error {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return ErrCancelled
	}
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		_, err := sink.Write(p)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStream, err)
		}
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if int64(r.buf.Len()+len(p)) > r.maxBodyMem {
		return fmt.Errorf("%w: limit %s", ErrResponseTooLarge, ByteCount(r.maxBodyMem))
	}
	r.buf.Write(p)
	return nil
}

// streamFailure maps an I/O error to the taxonomy, preferring
// cancellation when the error was caused by Cancel closing the stream.
func (r *Request) streamFailure(err error) error {
	if r.isCancelled() {
		return ErrCancelled
	}
	if errors.Is(err, ErrMalformedResponse) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStream, err)
}

// finalize settles the request exactly once: it fixes the terminal
// state, releases the transport and sink, delivers the terminal
// callback on the dispatch context and unblocks Wait. Later calls are
// no-ops, so the normal completion path and a concurrent Cancel race
// safely; whichever transition commits first under the state lock wins.
func (r *Request) finalize(err error) {
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return
	}
	to := StateFinished
	if err != nil {
		to = StateFailed
		if errors.Is(err, ErrCancelled) {
			to = StateCancelled
		}
	}
	from := r.state
	r.state = to
	r.complete = true
	r.err = err
	sink := r.sink
	r.sink = nil
	r.mu.Unlock()

	if sink != nil {
		// a partially written file is the caller's to discard or retry
		sink.Close()
	}
	r.transport.Close()
	r.ctxCancel()
	if err == nil && r.useCookies {
		if perr := r.session.PersistCookies(); perr != nil {
			r.l.Println("cookie persistence:", perr)
		}
	}

	r.l.Println("state:", from, "->", to)
	sh := r.handlers.StateHandler
	r.dispatch(func() { sh(from, to) })
	if err != nil {
		fh := r.handlers.FailedHandler
		r.dispatch(func() { fh(r, err) })
	} else {
		fh := r.handlers.FinishedHandler
		r.dispatch(func() { fh(r) })
	}
	// done closes on the dispatch context so Wait returns only after
	// every callback has been delivered
	r.dispatch(func() { close(r.done) })
	if r.loop != nil {
		r.loop.Shutdown()
	}
}
