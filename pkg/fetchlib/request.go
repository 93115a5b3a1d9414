package fetchlib

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Request is one unit of work performing a single HTTP(S) exchange,
// including any authentication rounds and redirects it takes to settle.
// The caller owns and configures it until Start; after that the engine
// mutates it exclusively until it reaches a terminal state.
type Request struct {
	rawURL  string
	u       *url.URL
	method  string
	headers Headers
	fields  []FormField
	payload *payload

	cookieOverrides []Cookie
	explicitCreds   *Credentials

	session     *SessionContext
	useSession  bool
	useKeychain bool
	useCookies  bool

	sinkPath string
	fs       afero.Fs

	transport Transport
	handlers  *Handlers
	dispatch  DispatchFunc
	loop      *callbackLoop

	timeout       time.Duration
	maxRedirects  int
	authRetries   int
	maxBodyMem    int64
	chunkedUpload bool

	l *log.Logger

	up   *tracker
	down *tracker

	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	started   bool
	cancelled bool
	complete  bool
	err       error

	neg           negotiator
	suppliedCreds *Credentials

	statusCode int
	respHeader http.Header
	buf        bytes.Buffer
	sink       afero.File

	ctx       context.Context
	ctxCancel context.CancelFunc
	done      chan struct{}
	redirects int
}

// RequestOpts are the optional knobs of NewRequest. The zero value of
// every field selects a sensible default.
type RequestOpts struct {
	// Method defaults to GET, or POST once a form field is set.
	Method string
	// Session defaults to DefaultSession.
	Session *SessionContext
	// Transport defaults to a NetTransport. Tests substitute scripted
	// transports here.
	Transport Transport
	Handlers  *Handlers
	Headers   Headers
	// Timeout bounds each wire exchange via a transport deadline.
	// Zero means no engine-imposed timeout: bounding a slow server is
	// the caller's policy, never an internal guess.
	Timeout time.Duration
	// MaxRedirects defaults to DefaultMaxRedirects.
	MaxRedirects int
	// AuthRetries is the number of authenticated sends allowed before
	// the engine surfaces ErrAuthenticationFailed instead of looping.
	// Zero selects DefaultAuthRetries.
	AuthRetries int
	// MaxResponseBytes bounds in-memory response buffering when the
	// server declares no Content-Length. Zero selects DEF_MAX_BODY_MEM.
	MaxResponseBytes int64
	// Dispatch runs every callback; defaults to a per-request serial
	// dispatch goroutine.
	Dispatch DispatchFunc
	// ChunkedUpload switches the body to Transfer-Encoding: chunked.
	// It is an explicit mode, never a fallback.
	ChunkedUpload bool
	// DownloadDestination streams the response body to this file path
	// instead of buffering it in memory.
	DownloadDestination string
	// Fs is the filesystem used for file form fields and download
	// destinations. Defaults to the OS filesystem.
	Fs afero.Fs
	// UseKeychainPersistence lets the request consult the session's
	// credential vault and record accepted credentials into it.
	UseKeychainPersistence bool
	// TraceWriter receives the request's wire-level trace log.
	TraceWriter io.Writer
}

// NewRequest creates a request for the given URL. The URL must resolve
// into an http or https scheme, host and port; anything else fails with
// ErrInvalidURL. Credentials embedded in the URL become the request's
// explicit credentials.
func NewRequest(rawURL string, opts *RequestOpts) (r *Request, err error) {
	if opts == nil {
		opts = &RequestOpts{}
	}
	u, er := url.Parse(rawURL)
	if er != nil {
		err = ErrInvalidURL
		return
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		err = ErrInvalidURL
		return
	}
	if opts.Session == nil {
		opts.Session = DefaultSession
	}
	if opts.Transport == nil {
		opts.Transport = &NetTransport{}
	}
	if opts.Handlers == nil {
		opts.Handlers = &Handlers{}
	}
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.AuthRetries == 0 {
		opts.AuthRetries = DefaultAuthRetries
	}
	if opts.MaxResponseBytes == 0 {
		opts.MaxResponseBytes = DEF_MAX_BODY_MEM
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.TraceWriter == nil {
		opts.TraceWriter = io.Discard
	}
	opts.Headers.InitOrUpdate(USER_AGENT_KEY, DEF_USER_AGENT)

	r = &Request{
		rawURL:        rawURL,
		u:             u,
		method:        opts.Method,
		headers:       opts.Headers,
		session:       opts.Session,
		useSession:    true,
		useCookies:    true,
		useKeychain:   opts.UseKeychainPersistence,
		sinkPath:      opts.DownloadDestination,
		fs:            opts.Fs,
		transport:     opts.Transport,
		handlers:      opts.Handlers,
		dispatch:      opts.Dispatch,
		timeout:       opts.Timeout,
		maxRedirects:  opts.MaxRedirects,
		authRetries:   opts.AuthRetries,
		maxBodyMem:    opts.MaxResponseBytes,
		chunkedUpload: opts.ChunkedUpload,
		l:             log.New(opts.TraceWriter, "", log.LstdFlags),
		done:          make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	r.ctx, r.ctxCancel = context.WithCancel(context.Background())
	if r.dispatch == nil {
		r.loop = newCallbackLoop()
		r.dispatch = r.loop.Dispatch
	}
	r.handlers.setDefault(r.l)
	r.up = newTracker(r.handlers.UploadProgressHandler, r.dispatch)
	r.down = newTracker(r.handlers.DownloadProgressHandler, r.dispatch)

	if ui := u.User; ui != nil {
		pass, _ := ui.Password()
		r.explicitCreds = &Credentials{Username: ui.Username(), Password: pass}
		r.u.User = nil
	}
	return
}

// AddHeader sets a custom header with overwrite semantics per key.
func (r *Request) AddHeader(key, value string) {
	r.headers.Update(key, value)
}

// SetMethod overrides the request method.
func (r *Request) SetMethod(method string) {
	r.method = method
}

// SetPostValue adds a scalar POST field. The first field switches the
// method to POST unless the caller already chose one explicitly.
func (r *Request) SetPostValue(key, value string) {
	r.promotePost()
	r.fields = append(r.fields, FormField{Key: key, Value: value})
}

// SetFile adds the contents of a local file as a POST field, switching
// the body to multipart/form-data.
func (r *Request) SetFile(key, filePath string) {
	r.promotePost()
	r.fields = append(r.fields, FormField{Key: key, FilePath: filePath, IsFile: true})
}

func (r *Request) promotePost() {
	if len(r.fields) == 0 && r.method == http.MethodGet {
		r.method = http.MethodPost
	}
}

// AddCookie inserts a request-level cookie override, sent ahead of any
// jar cookies.
func (r *Request) AddCookie(c Cookie) {
	r.cookieOverrides = append(r.cookieOverrides, c)
}

// SetCredentials sets explicit credentials for the target realm. They
// take precedence over the session cache and the vault.
func (r *Request) SetCredentials(c Credentials) {
	r.explicitCreds = &c
}

// SetDownloadDestination streams the response body to the given path
// instead of keeping it in memory.
func (r *Request) SetDownloadDestination(path string) {
	r.sinkPath = path
}

// SetUseSessionPersistence controls whether accepted credentials are
// cached in the session for later requests. On by default.
func (r *Request) SetUseSessionPersistence(use bool) {
	r.useSession = use
}

// SetUseCookiePersistence controls whether the request presents jar
// cookies and records response cookies. On by default.
func (r *Request) SetUseCookiePersistence(use bool) {
	r.useCookies = use
}

// SetUseKeychainPersistence controls vault lookups and write-backs.
// Off by default.
func (r *Request) SetUseKeychainPersistence(use bool) {
	r.useKeychain = use
}

// URL returns the request URL.
func (r *Request) URL() *url.URL {
	return r.u
}

// State returns the current lifecycle state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Complete reports whether the request reached a terminal state. It
// flips false to true exactly once.
func (r *Request) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// Err returns the terminal error, nil while running or after success.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// StatusCode returns the response status code of the last exchange,
// zero before any response head was parsed.
func (r *Request) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusCode
}

// ResponseHeaders returns the headers of the last parsed response head.
func (r *Request) ResponseHeaders() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respHeader
}

// ResponseCookies returns the cookies set by the last parsed response,
// scoped to the request URL.
func (r *Request) ResponseCookies() (cookies []Cookie) {
	r.mu.Lock()
	header, u := r.respHeader, r.u
	r.mu.Unlock()
	for _, sc := range header.Values("Set-Cookie") {
		if c, ok := parseSetCookie(sc, u); ok {
			cookies = append(cookies, c)
		}
	}
	return
}

// Body returns the in-memory response body. Empty when the request
// downloaded to a file or ended before the body arrived.
func (r *Request) Body() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Bytes()
}

// Text returns the in-memory response body as a string. Not meaningful
// for binary payloads.
func (r *Request) Text() string {
	return string(r.Body())
}

// TotalBytesRead returns the number of body bytes received so far.
// Non-decreasing for the lifetime of the request.
func (r *Request) TotalBytesRead() int64 {
	if r.down == nil {
		return 0
	}
	return r.down.count()
}

// TotalBytesSent returns the number of body bytes uploaded so far,
// counting authentication resends. Non-decreasing for the lifetime of
// the request.
func (r *Request) TotalBytesSent() int64 {
	if r.up == nil {
		return 0
	}
	return r.up.count()
}

// ExpectedBytes returns the declared download size of the current
// exchange, -1 when the server sent no Content-Length.
func (r *Request) ExpectedBytes() ByteCount {
	if r.down == nil {
		return -1
	}
	return ByteCount(r.down.total.Load())
}

// PostLength returns the precomputed byte length of the request body,
// zero when the request carries none.
func (r *Request) PostLength() ByteCount {
	if r.payload == nil {
		return 0
	}
	return ByteCount(r.payload.length)
}

// Wait blocks until the request reaches a terminal state and returns
// its terminal error, nil on success.
func (r *Request) Wait() error {
	<-r.done
	return r.Err()
}

// Run starts the request and blocks until it terminates. It is the
// "run this work item" contract a scheduler needs.
func (r *Request) Run() error {
	if err := r.Start(); err != nil {
		return err
	}
	return r.Wait()
}

func (r *Request) targetAddress() Address {
	addr := Address{Host: r.u.Hostname(), TLS: r.u.Scheme == "https"}
	addr.Port = defaultPort(addr.TLS)
	if p := r.u.Port(); p != "" {
		addr.Port, _ = strconv.Atoi(p)
	}
	return addr
}

// credentialKey is the cache/vault key of the target realm.
func (r *Request) credentialKey(realm string) CredentialKey {
	addr := r.targetAddress()
	return CredentialKey{
		Host:     addr.Host,
		Port:     addr.Port,
		Protocol: r.u.Scheme,
		Realm:    realm,
	}
}
