package fetchlib

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Cookie represents a single HTTP cookie held by the jar.
// Uniqueness key is (Name, Domain, Path); a newly merged cookie
// with the same key replaces the old one.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
	// Expires is the absolute expiry time. The zero value means the
	// cookie lives until the session is cleared.
	Expires time.Time
	Secure  bool
}

func (c *Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

func (c *Cookie) sameKey(o *Cookie) bool {
	return c.Name == o.Name && c.Domain == o.Domain && c.Path == o.Path
}

// matchesURL reports whether the cookie should be attached to a request
// for u: the cookie domain must equal the host or be a parent domain of
// it, the cookie path must prefix the URL path, and secure cookies are
// restricted to https.
func (c *Cookie) matchesURL(u *url.URL) bool {
	if c.Secure && u.Scheme != "https" {
		return false
	}
	if !domainMatch(c.Domain, u.Hostname()) {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return strings.HasPrefix(path, c.Path)
}

func domainMatch(cookieDomain, host string) bool {
	d := strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	host = strings.ToLower(host)
	if d == host {
		return true
	}
	return strings.HasSuffix(host, "."+d)
}

// Jar is an ordered set of cookies. It carries no locking of its own;
// the owning SessionContext serializes access across requests.
type Jar struct {
	cookies []Cookie
}

// Merge parses every Set-Cookie value in setCookies into the jar.
// The cookie domain defaults to the request host when absent. Cookies
// sharing a (name, domain, path) key replace the stored one, expired
// cookies evict it.
func (j *Jar) Merge(setCookies []string, reqURL *url.URL) {
	now := time.Now()
	for _, sc := range setCookies {
		c, ok := parseSetCookie(sc, reqURL)
		if !ok {
			continue
		}
		j.put(c, now)
	}
}

func (j *Jar) put(c Cookie, now time.Time) {
	for i := range j.cookies {
		if !j.cookies[i].sameKey(&c) {
			continue
		}
		if c.expired(now) {
			j.cookies = append(j.cookies[:i], j.cookies[i+1:]...)
		} else {
			j.cookies[i] = c
		}
		return
	}
	if c.expired(now) {
		return
	}
	j.cookies = append(j.cookies, c)
}

// Put inserts or replaces a single cookie.
func (j *Jar) Put(c Cookie) {
	j.put(c, time.Now())
}

// Select returns the value for a single Cookie request header covering
// every stored cookie that matches u, in jar insertion order. Cookies
// whose name is in skip are left out; expired cookies are dropped
// lazily. An empty string means no cookie applies.
func (j *Jar) Select(u *url.URL, skip map[string]bool) string {
	now := time.Now()
	var b strings.Builder
	kept := j.cookies[:0]
	for i := range j.cookies {
		c := j.cookies[i]
		if c.expired(now) {
			continue
		}
		kept = append(kept, c)
		if !c.matchesURL(u) || skip[c.Name] {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	j.cookies = kept
	return b.String()
}

// All returns a copy of the stored cookies in insertion order.
func (j *Jar) All() (cookies []Cookie) {
	cookies = make([]Cookie, len(j.cookies))
	copy(cookies, j.cookies)
	return
}

// Len returns the number of stored cookies.
func (j *Jar) Len() int {
	return len(j.cookies)
}

// Clear drops every stored cookie.
func (j *Jar) Clear() {
	j.cookies = nil
}

// parseSetCookie parses one Set-Cookie header value. Unparseable values
// are skipped rather than reported: a bad cookie never fails a request.
func parseSetCookie(line string, reqURL *url.URL) (c Cookie, ok bool) {
	parts := strings.Split(line, ";")
	name, value, found := strings.Cut(strings.TrimSpace(parts[0]), "=")
	if !found || name == "" {
		return
	}
	c.Name = strings.TrimSpace(name)
	c.Value = strings.TrimSpace(value)
	c.Path = "/"
	c.Domain = reqURL.Hostname()
	for _, attr := range parts[1:] {
		k, v, _ := strings.Cut(strings.TrimSpace(attr), "=")
		v = strings.TrimSpace(v)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "domain":
			if v != "" {
				c.Domain = strings.TrimPrefix(v, ".")
			}
		case "path":
			if v != "" {
				c.Path = v
			}
		case "expires":
			if t, err := parseCookieTime(v); err == nil {
				c.Expires = t
			}
		case "max-age":
			if secs, err := strconv.Atoi(v); err == nil {
				if secs <= 0 {
					c.Expires = time.Unix(1, 0)
				} else {
					c.Expires = time.Now().Add(time.Duration(secs) * time.Second)
				}
			}
		case "secure":
			c.Secure = true
		}
	}
	ok = true
	return
}

var cookieTimeFormats = []string{
	time.RFC1123,
	"Mon, 02-Jan-2006 15:04:05 MST",
	time.ANSIC,
}

func parseCookieTime(v string) (t time.Time, err error) {
	for _, layout := range cookieTimeFormats {
		t, err = time.Parse(layout, v)
		if err == nil {
			return
		}
	}
	return
}
