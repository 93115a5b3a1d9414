package fetchlib

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// Address identifies the byte-stream endpoint a request connects to.
type Address struct {
	Host string
	Port int
	TLS  bool
}

func (a Address) hostport() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Transport is the byte-stream collaborator of the request engine.
// DNS, TLS and certificate validation live behind it; the engine only
// writes request bytes, reads response bytes and observes stream end
// (io.EOF) or stream errors through the usual io semantics.
type Transport interface {
	// Open connects to the given endpoint. The context bounds only the
	// connection attempt.
	Open(ctx context.Context, addr Address) error
	Write(p []byte) (n int, err error)
	Read(p []byte) (n int, err error)
	// SetDeadline applies an absolute I/O deadline to the open stream.
	SetDeadline(t time.Time) error
	Close() error
}

// NetTransport is the production Transport over net.Dial and crypto/tls,
// with optional HTTP CONNECT or SOCKS5 proxying.
type NetTransport struct {
	// TLSConfig is cloned for every TLS connection. Nil means defaults.
	TLSConfig *tls.Config
	// Proxy routes the connection through a proxy when non-nil.
	Proxy *ProxyConfig
	// DialTimeout bounds the connection attempt. Zero means no bound
	// beyond the Open context.
	DialTimeout time.Duration

	// mu guards conn: Open runs on the engine goroutine while Close may
	// arrive from any goroutine through Cancel.
	mu   sync.Mutex
	conn net.Conn
}

func (t *NetTransport) setConn(c net.Conn) {
	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()
}

func (t *NetTransport) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *NetTransport) Open(ctx context.Context, addr Address) error {
	if t.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.DialTimeout)
		defer cancel()
	}
	conn, err := t.dial(ctx, addr)
	if err != nil {
		return err
	}
	if addr.TLS {
		cfg := t.TLSConfig.Clone()
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg.ServerName = addr.Host
		}
		tc := tls.Client(conn, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return err
		}
		conn = tc
	}
	t.setConn(conn)
	return nil
}

func (t *NetTransport) dial(ctx context.Context, addr Address) (net.Conn, error) {
	var d net.Dialer
	if t.Proxy == nil {
		return d.DialContext(ctx, "tcp", addr.hostport())
	}
	switch t.Proxy.Scheme {
	case "socks5":
		auth := t.Proxy.auth()
		pd, err := proxy.SOCKS5("tcp", t.Proxy.Host, auth, &d)
		if err != nil {
			return nil, err
		}
		if cd, ok := pd.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, "tcp", addr.hostport())
		}
		return pd.Dial("tcp", addr.hostport())
	default:
		return t.connectTunnel(ctx, &d, addr)
	}
}

// connectTunnel dials the proxy and issues a CONNECT for the target.
// A 407 from the proxy is surfaced as a tunnel error carrying the
// Proxy-Authenticate challenge so the engine can run proxy auth.
func (t *NetTransport) connectTunnel(ctx context.Context, d *net.Dialer, addr Address) (net.Conn, error) {
	conn, err := d.DialContext(ctx, "tcp", t.Proxy.Host)
	if err != nil {
		return nil, err
	}
	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", addr.hostport(), addr.hostport())
	if t.Proxy.Username != "" {
		req += "Proxy-Authorization: " + basicToken(t.Proxy.Username, t.Proxy.Password) + "\r\n"
	}
	req += "\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, err
	}
	br := bufio.NewReader(conn)
	resp, err := parseResponseHead(br)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, &TunnelError{StatusCode: resp.StatusCode, Header: resp.Header}
	}
	return conn, nil
}

func (t *NetTransport) Write(p []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, net.ErrClosed
	}
	return conn.Write(p)
}

func (t *NetTransport) Read(p []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, net.ErrClosed
	}
	return conn.Read(p)
}

func (t *NetTransport) SetDeadline(d time.Time) error {
	conn := t.current()
	if conn == nil {
		return nil
	}
	return conn.SetDeadline(d)
}

func (t *NetTransport) Close() error {
	conn := t.current()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// TunnelError reports a proxy that refused a CONNECT request.
type TunnelError struct {
	StatusCode int
	Header     http.Header
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("proxy refused tunnel: status %d", e.StatusCode)
}
