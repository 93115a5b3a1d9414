package fetchlib

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// AuthScheme is an HTTP authentication scheme the negotiator supports.
type AuthScheme string

const (
	AuthBasic  AuthScheme = "Basic"
	AuthDigest AuthScheme = "Digest"
	AuthNTLM   AuthScheme = "NTLM"
)

// Challenge is one parsed WWW-Authenticate or Proxy-Authenticate value.
type Challenge struct {
	Scheme AuthScheme
	// Realm is the server-declared authentication scope. Empty for NTLM.
	Realm string
	// Proxy marks a 407 challenge; credentials then go into
	// Proxy-Authorization instead of Authorization.
	Proxy bool
	// Params holds the remaining auth-params (nonce, qop, opaque, ...).
	Params map[string]string
	// Data carries the base64 payload of an NTLM Type 2 message.
	Data string
}

func (c *Challenge) headerName() string {
	if c.Proxy {
		return "Proxy-Authorization"
	}
	return "Authorization"
}

// parseChallenges parses every challenge value of a 401/407 response.
// Multiple schemes may be offered in separate header values.
func parseChallenges(resp *Response) (out []Challenge) {
	name, isProxy := "Www-Authenticate", false
	if resp.StatusCode == http.StatusProxyAuthRequired {
		name, isProxy = "Proxy-Authenticate", true
	}
	for _, v := range resp.Header.Values(name) {
		if c, ok := parseChallenge(v, isProxy); ok {
			out = append(out, c)
		}
	}
	return
}

func parseChallenge(v string, isProxy bool) (c Challenge, ok bool) {
	v = strings.TrimSpace(v)
	scheme, rest, _ := strings.Cut(v, " ")
	switch {
	case strings.EqualFold(scheme, string(AuthBasic)):
		c.Scheme = AuthBasic
	case strings.EqualFold(scheme, string(AuthDigest)):
		c.Scheme = AuthDigest
	case strings.EqualFold(scheme, string(AuthNTLM)):
		c.Scheme = AuthNTLM
		c.Proxy = isProxy
		// an NTLM Type 2 message rides as a single base64 token
		c.Data = strings.TrimSpace(rest)
		ok = true
		return
	default:
		return
	}
	c.Proxy = isProxy
	c.Params = parseAuthParams(rest)
	c.Realm = c.Params["realm"]
	ok = true
	return
}

// parseAuthParams parses comma-separated auth-params, unquoting
// quoted-string values.
func parseAuthParams(s string) map[string]string {
	params := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t,")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = s[eq+1:]
		var val string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				val, s = s[1:], ""
			} else {
				val, s = s[1:1+end], s[end+2:]
			}
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				val, s = strings.TrimSpace(s), ""
			} else {
				val, s = strings.TrimSpace(s[:end]), s[end:]
			}
		}
		if key != "" {
			params[key] = val
		}
	}
	return params
}

// pickChallenge selects the strongest supported challenge:
// NTLM over Digest over Basic.
func pickChallenge(cs []Challenge) *Challenge {
	order := []AuthScheme{AuthNTLM, AuthDigest, AuthBasic}
	for _, scheme := range order {
		for i := range cs {
			if cs[i].Scheme == scheme {
				return &cs[i]
			}
		}
	}
	return nil
}

func basicToken(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// ntlmPhase tracks the three-message NTLM exchange as a sub-state of
// the authentication wait.
type ntlmPhase int

const (
	ntlmIdle ntlmPhase = iota
	ntlmNegotiating
	ntlmChallenged
	ntlmResponding
)

// negotiator drives credential application for one request. It is owned
// by the engine goroutine; the engine's state lock guards the fields the
// caller-facing API touches.
type negotiator struct {
	challenge *Challenge
	creds     *Credentials
	// attempts counts authenticated sends. Past the configured retry
	// bound the engine surfaces ErrAuthenticationFailed instead of
	// looping.
	attempts int
	phase    ntlmPhase
	nonceUse int
}

// reset clears negotiation state, e.g. after a cross-host redirect.
func (n *negotiator) reset() {
	n.challenge = nil
	n.creds = nil
	n.attempts = 0
	n.phase = ntlmIdle
	n.nonceUse = 0
}

// authorize computes the credential header value for the pending
// challenge. For NTLM the value depends on the handshake phase.
func (n *negotiator) authorize(method, uri string) (value string, err error) {
	ch, creds := n.challenge, n.creds
	if ch == nil || creds == nil {
		err = ErrAuthenticationFailed
		return
	}
	switch ch.Scheme {
	case AuthBasic:
		value = basicToken(creds.Username, creds.Password)
	case AuthDigest:
		n.nonceUse++
		value, err = digestToken(ch.Params, method, uri, creds, n.nonceUse)
	case AuthNTLM:
		value, err = n.ntlmToken(creds)
	default:
		err = fmt.Errorf("%w: unsupported scheme %q", ErrAuthenticationFailed, ch.Scheme)
	}
	return
}

func (n *negotiator) ntlmToken(creds *Credentials) (string, error) {
	switch n.phase {
	case ntlmIdle, ntlmNegotiating:
		n.phase = ntlmNegotiating
		return "NTLM " + base64.StdEncoding.EncodeToString(ntlmType1(creds.Domain)), nil
	case ntlmChallenged:
		raw, err := base64.StdEncoding.DecodeString(n.challenge.Data)
		if err != nil {
			return "", fmt.Errorf("%w: bad NTLM challenge: %v", ErrAuthenticationFailed, err)
		}
		serverChallenge, err := ntlmParseType2(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		msg, err := ntlmType3(creds.Username, creds.Password, creds.Domain, serverChallenge)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		n.phase = ntlmResponding
		return "NTLM " + base64.StdEncoding.EncodeToString(msg), nil
	default:
		return "", ErrAuthenticationFailed
	}
}

// observeChallenge records a fresh challenge. For an in-flight NTLM
// handshake, a challenge carrying Type 2 data advances the handshake
// instead of counting as a rejection; the return value reports whether
// the handshake continues.
func (n *negotiator) observeChallenge(ch *Challenge) (continuation bool) {
	if n.phase == ntlmNegotiating && ch.Scheme == AuthNTLM && ch.Data != "" {
		n.challenge = ch
		n.phase = ntlmChallenged
		return true
	}
	if n.phase == ntlmResponding {
		// server rejected the Type 3 response, handshake is over
		n.phase = ntlmIdle
	}
	n.challenge = ch
	return false
}
