package fetchlib

import (
	"net/url"
	"testing"
	"time"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestParseSetCookie(t *testing.T) {
	reqURL := mustURL(t, "http://www.example.org/account/")

	tests := []struct {
		name string
		line string
		ok   bool
		want Cookie
	}{
		{
			name: "bare pair",
			line: "sid=abc123",
			ok:   true,
			want: Cookie{Name: "sid", Value: "abc123", Domain: "www.example.org", Path: "/"},
		},
		{
			name: "attributes",
			line: "sid=abc; Domain=.example.org; Path=/account; Secure",
			ok:   true,
			want: Cookie{Name: "sid", Value: "abc", Domain: "example.org", Path: "/account", Secure: true},
		},
		{
			name: "empty value",
			line: "flag=",
			ok:   true,
			want: Cookie{Name: "flag", Value: "", Domain: "www.example.org", Path: "/"},
		},
		{
			name: "no equals sign",
			line: "garbage",
			ok:   false,
		},
		{
			name: "empty name",
			line: "=value",
			ok:   false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, ok := parseSetCookie(tc.line, reqURL)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if c.Name != tc.want.Name || c.Value != tc.want.Value ||
				c.Domain != tc.want.Domain || c.Path != tc.want.Path ||
				c.Secure != tc.want.Secure {
				t.Errorf("cookie = %+v, want %+v", c, tc.want)
			}
		})
	}
}

func TestParseSetCookieExpires(t *testing.T) {
	reqURL := mustURL(t, "http://example.org/")
	c, ok := parseSetCookie("sid=x; Expires=Wed, 21 Oct 2015 07:28:00 GMT", reqURL)
	if !ok {
		t.Fatal("parse failed")
	}
	want := time.Date(2015, 10, 21, 7, 28, 0, 0, time.UTC)
	if !c.Expires.Equal(want) {
		t.Errorf("Expires = %v, want %v", c.Expires, want)
	}
	if !c.expired(time.Now()) {
		t.Error("cookie from 2015 not expired")
	}
}

func TestParseSetCookieMaxAge(t *testing.T) {
	reqURL := mustURL(t, "http://example.org/")
	c, ok := parseSetCookie("sid=x; Max-Age=3600", reqURL)
	if !ok {
		t.Fatal("parse failed")
	}
	if c.expired(time.Now()) {
		t.Error("fresh Max-Age cookie already expired")
	}

	gone, ok := parseSetCookie("sid=x; Max-Age=0", reqURL)
	if !ok {
		t.Fatal("parse failed")
	}
	if !gone.expired(time.Now()) {
		t.Error("Max-Age=0 cookie not expired")
	}
}

func TestJarMergeReplaceAndEvict(t *testing.T) {
	u := mustURL(t, "http://example.org/")
	var j Jar
	j.Merge([]string{"sid=first; Path=/"}, u)
	j.Merge([]string{"sid=second; Path=/"}, u)
	if got := j.Len(); got != 1 {
		t.Fatalf("jar has %d cookies, want 1", got)
	}
	if got := j.Select(u, nil); got != "sid=second" {
		t.Errorf("Select = %q", got)
	}

	// merging an expired cookie with the same key evicts it
	j.Merge([]string{"sid=dead; Path=/; Max-Age=0"}, u)
	if got := j.Len(); got != 0 {
		t.Errorf("jar has %d cookies after eviction, want 0", got)
	}
}

func TestJarSelectScoping(t *testing.T) {
	var j Jar
	j.Put(Cookie{Name: "root", Value: "1", Domain: "example.org", Path: "/"})
	j.Put(Cookie{Name: "deep", Value: "2", Domain: "example.org", Path: "/api"})
	j.Put(Cookie{Name: "other", Value: "3", Domain: "other.example", Path: "/"})
	j.Put(Cookie{Name: "locked", Value: "4", Domain: "example.org", Path: "/", Secure: true})

	if got := j.Select(mustURL(t, "http://example.org/"), nil); got != "root=1" {
		t.Errorf("root select = %q", got)
	}
	if got := j.Select(mustURL(t, "http://example.org/api/v2"), nil); got != "root=1; deep=2" {
		t.Errorf("api select = %q", got)
	}
	if got := j.Select(mustURL(t, "https://example.org/"), nil); got != "root=1; locked=4" {
		t.Errorf("https select = %q", got)
	}
	// subdomain reaches parent-domain cookies
	if got := j.Select(mustURL(t, "http://www.example.org/"), nil); got != "root=1" {
		t.Errorf("subdomain select = %q", got)
	}
}

func TestJarSelectSkip(t *testing.T) {
	var j Jar
	j.Put(Cookie{Name: "a", Value: "1", Domain: "example.org", Path: "/"})
	j.Put(Cookie{Name: "b", Value: "2", Domain: "example.org", Path: "/"})
	got := j.Select(mustURL(t, "http://example.org/"), map[string]bool{"a": true})
	if got != "b=2" {
		t.Errorf("Select with skip = %q", got)
	}
}

func TestJarLazyExpiry(t *testing.T) {
	var j Jar
	j.Put(Cookie{Name: "ttl", Value: "x", Domain: "example.org", Path: "/",
		Expires: time.Now().Add(-time.Hour)})
	if got := j.Select(mustURL(t, "http://example.org/"), nil); got != "" {
		t.Errorf("expired cookie selected: %q", got)
	}
	if got := j.Len(); got != 0 {
		t.Errorf("expired cookie retained, len = %d", got)
	}
}

func TestDomainMatch(t *testing.T) {
	tests := []struct {
		domain, host string
		want         bool
	}{
		{"example.org", "example.org", true},
		{".example.org", "example.org", true},
		{"example.org", "www.example.org", true},
		{"example.org", "badexample.org", false},
		{"www.example.org", "example.org", false},
		{"Example.ORG", "example.org", true},
	}
	for _, tc := range tests {
		if got := domainMatch(tc.domain, tc.host); got != tc.want {
			t.Errorf("domainMatch(%q, %q) = %v, want %v", tc.domain, tc.host, got, tc.want)
		}
	}
}
