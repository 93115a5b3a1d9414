package fetchlib

import (
	"bufio"
	"bytes"
	"io"
	"net/url"
	"strings"
	"testing"
)

func TestBuildRequestHead(t *testing.T) {
	u, _ := url.Parse("http://example.com/path?q=1")
	head := buildRequestHead(&wireRequest{
		method: "POST",
		u:      u,
		headers: Headers{
			{Key: "User-Agent", Value: "opfetch"},
			{Key: "Accept", Value: "*/*"},
		},
		cookieLine:    "sid=abc",
		contentType:   "application/x-www-form-urlencoded",
		contentLength: 21,
	})
	want := "POST /path?q=1 HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Length: 21\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Cookie: sid=abc\r\n" +
		"User-Agent: opfetch\r\n" +
		"Accept: */*\r\n" +
		"\r\n"
	if string(head) != want {
		t.Errorf("head:\n%q\nwant:\n%q", head, want)
	}
}

func TestBuildRequestHeadChunked(t *testing.T) {
	u, _ := url.Parse("http://example.com/up")
	head := string(buildRequestHead(&wireRequest{
		method:        "POST",
		u:             u,
		chunked:       true,
		contentLength: 128,
	}))
	if !strings.Contains(head, "Transfer-Encoding: chunked\r\n") {
		t.Errorf("missing chunked header:\n%q", head)
	}
	if strings.Contains(head, "Content-Length") {
		t.Errorf("chunked request carries Content-Length:\n%q", head)
	}
}

func TestBuildRequestHeadHostOverride(t *testing.T) {
	u, _ := url.Parse("http://10.0.0.1/x")
	head := string(buildRequestHead(&wireRequest{
		method:        "GET",
		u:             u,
		headers:       Headers{{Key: "Host", Value: "virtual.example.com"}},
		contentLength: -1,
	}))
	if !strings.Contains(head, "Host: virtual.example.com\r\n") {
		t.Errorf("host not overridden:\n%q", head)
	}
	if strings.Count(head, "Host:") != 1 {
		t.Errorf("duplicate Host header:\n%q", head)
	}
}

func TestBuildRequestHeadContentTypeNotDuplicated(t *testing.T) {
	u, _ := url.Parse("http://example.com/")
	head := string(buildRequestHead(&wireRequest{
		method:        "POST",
		u:             u,
		headers:       Headers{{Key: "Content-Type", Value: "text/plain"}},
		contentType:   "application/json",
		contentLength: 2,
	}))
	if strings.Contains(head, "application/json") {
		t.Errorf("builder content type overrode the caller's:\n%q", head)
	}
	if strings.Count(head, "Content-Type:") != 1 {
		t.Errorf("duplicate Content-Type:\n%q", head)
	}
}

func TestBuildRequestHeadCallerCopiesOfOwnedKeys(t *testing.T) {
	u, _ := url.Parse("http://example.com/up")
	head := string(buildRequestHead(&wireRequest{
		method: "POST",
		u:      u,
		headers: Headers{
			{Key: "Content-Length", Value: "999"},
			{Key: "Cookie", Value: "stale=1"},
		},
		cookieLine:    "sid=abc",
		contentLength: 21,
	}))
	if strings.Count(head, "Content-Length:") != 1 {
		t.Errorf("duplicate Content-Length:\n%q", head)
	}
	if strings.Contains(head, "999") {
		t.Errorf("caller Content-Length overrode the computed one:\n%q", head)
	}
	if strings.Count(head, "Cookie:") != 1 || strings.Contains(head, "stale=1") {
		t.Errorf("duplicate Cookie line:\n%q", head)
	}

	// without an engine cookie line the caller's Cookie header survives
	head = string(buildRequestHead(&wireRequest{
		method:        "GET",
		u:             u,
		headers:       Headers{{Key: "Cookie", Value: "mine=1"}},
		contentLength: -1,
	}))
	if !strings.Contains(head, "Cookie: mine=1\r\n") {
		t.Errorf("caller cookie dropped:\n%q", head)
	}
}

func TestParseResponseHead(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: 12\r\n" +
		"\r\n" +
		"Hello world!"
	br := bufio.NewReader(strings.NewReader(raw))
	resp, err := parseResponseHead(br)
	if err != nil {
		t.Fatalf("parseResponseHead: %v", err)
	}
	if resp.Proto != "HTTP/1.1" || resp.StatusCode != 200 || resp.Status != "200 OK" {
		t.Errorf("status = %q %q %d", resp.Proto, resp.Status, resp.StatusCode)
	}
	if resp.ContentLength != 12 {
		t.Errorf("ContentLength = %d", resp.ContentLength)
	}
	body, _ := io.ReadAll(resp.bodyReader(br))
	if string(body) != "Hello world!" {
		t.Errorf("body = %q", body)
	}
}

func TestParseResponseHeadNoLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n\r\nrest"
	resp, err := parseResponseHead(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("parseResponseHead: %v", err)
	}
	if resp.ContentLength != -1 {
		t.Errorf("ContentLength = %d, want -1", resp.ContentLength)
	}
}

func TestParseResponseHeadMalformed(t *testing.T) {
	for _, raw := range []string{
		"garbage\r\n\r\n",
		"HTTP/1.1 2x0 OK\r\n\r\n",
		"HTTP/1.1\r\n\r\n",
		"",
	} {
		if _, err := parseResponseHead(bufio.NewReader(strings.NewReader(raw))); err == nil {
			t.Errorf("no error for %q", raw)
		}
	}
}

func TestChunkedReader(t *testing.T) {
	raw := "4\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\n\r\n"
	body, err := io.ReadAll(newChunkedReader(bufio.NewReader(strings.NewReader(raw))))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "Wikipedia in\r\n\r\nchunks." {
		t.Errorf("body = %q", body)
	}
}

func TestChunkedReaderExtensionAndTrailer(t *testing.T) {
	raw := "5;ext=1\r\nhello\r\n0\r\nExpires: never\r\n\r\n"
	body, err := io.ReadAll(newChunkedReader(bufio.NewReader(strings.NewReader(raw))))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
}

func TestChunkedReaderTruncated(t *testing.T) {
	raw := "5\r\nhel"
	_, err := io.ReadAll(newChunkedReader(bufio.NewReader(strings.NewReader(raw))))
	if err != io.ErrUnexpectedEOF {
		t.Errorf("err = %v, want unexpected EOF", err)
	}
}

func TestChunkedReaderBadSize(t *testing.T) {
	raw := "zz\r\nhello\r\n0\r\n\r\n"
	_, err := io.ReadAll(newChunkedReader(bufio.NewReader(strings.NewReader(raw))))
	if err == nil {
		t.Fatal("bad chunk size accepted")
	}
}

func TestChunkedWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cw := newChunkedWriter(&buf)
	for _, part := range []string{"Wiki", "pedia", " in chunks."} {
		if _, err := io.WriteString(cw, part); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	body, err := io.ReadAll(newChunkedReader(bufio.NewReader(&buf)))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(body) != "Wikipedia in chunks." {
		t.Errorf("round trip = %q", body)
	}
}
