package fetchlib

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// wireRequest is everything needed to serialize one request head.
type wireRequest struct {
	method        string
	u             *url.URL
	headers       Headers
	cookieLine    string
	contentType   string
	contentLength int64
	chunked       bool
}

// buildRequestHead serializes the request line and headers, e.g.:
//
//	GET /x?q=1 HTTP/1.1\r\n
//	Host: example.com\r\n
//	...\r\n
//	\r\n
//
// Caller headers keep their insertion order; Host, Content-Length and
// Cookie are emitted first unless the caller overrode them.
func buildRequestHead(r *wireRequest) []byte {
	var b strings.Builder
	b.WriteString(r.method)
	b.WriteByte(' ')
	b.WriteString(r.u.RequestURI())
	b.WriteString(" HTTP/1.1\r\n")

	host := r.u.Host
	if v := r.headers.Value("Host"); v != "" {
		host = v
	}
	writeHeaderLine(&b, "Host", host)

	// keys the builder owns; caller copies of them would come out twice
	written := map[string]bool{"Host": true}
	if r.chunked {
		writeHeaderLine(&b, "Transfer-Encoding", "chunked")
		written["Transfer-Encoding"] = true
	} else if r.contentLength >= 0 {
		writeHeaderLine(&b, "Content-Length", strconv.FormatInt(r.contentLength, 10))
		written["Content-Length"] = true
	}
	if r.contentType != "" {
		if _, have := r.headers.Get("Content-Type"); !have {
			writeHeaderLine(&b, "Content-Type", r.contentType)
		}
	}
	if r.cookieLine != "" {
		writeHeaderLine(&b, "Cookie", r.cookieLine)
		written["Cookie"] = true
	}
	for _, h := range r.headers {
		if written[h.Key] {
			continue
		}
		writeHeaderLine(&b, h.Key, h.Value)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

func writeHeaderLine(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// Response is the first-pass parse of a response: status line plus
// headers, before any body bytes are consumed.
type Response struct {
	Proto      string
	Status     string
	StatusCode int
	Header     http.Header
	// ContentLength is -1 when the server did not declare one.
	ContentLength int64
	chunked       bool
}

// parseResponseHead reads the status line and MIME headers from r,
// leaving r positioned at the first body byte.
func parseResponseHead(br *bufio.Reader) (*Response, error) {
	tp := textproto.NewReader(br)
	line, err := tp.ReadLine()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	proto, status, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}
	resp := &Response{
		Proto:  proto,
		Status: strings.TrimLeft(status, " "),
	}
	code, _, _ := strings.Cut(resp.Status, " ")
	if len(code) != 3 {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformedResponse, code)
	}
	resp.StatusCode, err = strconv.Atoi(code)
	if err != nil || resp.StatusCode < 0 {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformedResponse, code)
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	resp.Header = http.Header(mimeHeader)

	resp.ContentLength = -1
	if cl := textproto.TrimString(resp.Header.Get("Content-Length")); cl != "" {
		if n, err := strconv.ParseUint(cl, 10, 63); err == nil {
			resp.ContentLength = int64(n)
		}
	}
	if strings.EqualFold(resp.Header.Get("Transfer-Encoding"), "chunked") {
		resp.chunked = true
		resp.ContentLength = -1
	}
	return resp, nil
}

// bodyReader wraps br in a reader covering exactly the response body:
// a chunked decoder, a Content-Length-limited reader, or a read-to-end
// reader when the server declared neither.
func (resp *Response) bodyReader(br *bufio.Reader) io.Reader {
	switch {
	case resp.chunked:
		return newChunkedReader(br)
	case resp.ContentLength >= 0:
		return io.LimitReader(br, resp.ContentLength)
	default:
		return br
	}
}

// chunkedReader decodes a Transfer-Encoding: chunked body. Trailers
// are consumed and discarded.
type chunkedReader struct {
	br        *bufio.Reader
	remaining int64
	done      bool
}

func newChunkedReader(br *bufio.Reader) *chunkedReader {
	return &chunkedReader{br: br}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	if c.remaining == 0 {
		size, err := c.readChunkSize()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			c.done = true
			c.discardTrailer()
			return 0, io.EOF
		}
		c.remaining = size
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.br.Read(p)
	c.remaining -= int64(n)
	if c.remaining == 0 && err == nil {
		err = c.readCRLF()
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func (c *chunkedReader) readChunkSize() (int64, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	line = strings.TrimRight(line, "\r\n")
	// chunk extensions are ignored
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: bad chunk size %q", ErrMalformedResponse, line)
	}
	return size, nil
}

func (c *chunkedReader) readCRLF() error {
	for i := 0; i < 2; i++ {
		if _, err := c.br.ReadByte(); err != nil {
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}

func (c *chunkedReader) discardTrailer() {
	for {
		line, err := c.br.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") == "" {
			return
		}
	}
}

// chunkedWriter encodes an outgoing body as Transfer-Encoding: chunked.
// Used only when the caller explicitly opts into streaming upload.
type chunkedWriter struct {
	w io.Writer
}

func newChunkedWriter(w io.Writer) *chunkedWriter {
	return &chunkedWriter{w: w}
}

func (c *chunkedWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(c.w, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(c.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

// Close writes the terminating zero-length chunk.
func (c *chunkedWriter) Close() error {
	_, err := io.WriteString(c.w, "0\r\n\r\n")
	return err
}
