package fetchlib

import (
	"net/url"
	"sync"
)

// Credentials carry everything needed to answer an authentication
// challenge. Domain is only meaningful for NTLM.
type Credentials struct {
	Username string
	Password string
	Domain   string
}

// CredentialKey identifies the authentication scope a set of credentials
// belongs to. Realm is the server-declared scope string from the challenge.
type CredentialKey struct {
	Host     string
	Port     int
	Protocol string
	Realm    string
}

// CredentialVault is the persistent secure-storage collaborator. A nil
// credential with a nil error means the vault holds nothing for the key.
// Implementations provide their own internal safety for concurrent use;
// the session serializes its own calls into them.
type CredentialVault interface {
	Get(host string, port int, protocol, realm string) (*Credentials, error)
	Put(host string, port int, protocol, realm string, c Credentials) error
	Delete(host string, port int, protocol, realm string) error
}

// CookieStore persists a session's cookie jar across process runs.
type CookieStore interface {
	Load() ([]Cookie, error)
	Save([]Cookie) error
}

// SessionContext holds the in-memory credential cache and the cookie jar
// shared by every request that references it. It is safe for concurrent
// use; the jar's merge/select and the cache's get/put are the only
// cross-request interaction points.
type SessionContext struct {
	creds VMap[CredentialKey, Credentials]

	jarMu sync.Mutex
	jar   Jar

	vaultMu sync.Mutex
	vault   CredentialVault

	store CookieStore
}

// NewSession constructs an isolated session context with an empty
// credential cache and cookie jar.
func NewSession() *SessionContext {
	s := &SessionContext{}
	s.creds.Make()
	return s
}

// DefaultSession is the process-wide session used by requests that do
// not specify their own. Tests should construct isolated sessions with
// NewSession instead.
var DefaultSession = NewSession()

// AttachVault connects a persistent credential vault. Requests with
// keychain persistence enabled consult it after the in-memory cache
// and write successful credentials back into it.
func (s *SessionContext) AttachVault(v CredentialVault) {
	s.vaultMu.Lock()
	s.vault = v
	s.vaultMu.Unlock()
}

// AttachCookieStore connects a persistent cookie store and loads its
// cookies into the jar.
func (s *SessionContext) AttachCookieStore(cs CookieStore) error {
	cookies, err := cs.Load()
	if err != nil {
		return err
	}
	s.jarMu.Lock()
	for _, c := range cookies {
		s.jar.Put(c)
	}
	s.store = cs
	s.jarMu.Unlock()
	return nil
}

// SetCredentials caches credentials for the given scope for the
// lifetime of the session.
func (s *SessionContext) SetCredentials(key CredentialKey, c Credentials) {
	s.creds.Set(key, c)
}

// CachedCredentials returns session-cached credentials for the scope.
func (s *SessionContext) CachedCredentials(key CredentialKey) (c Credentials, ok bool) {
	c, ok = s.creds.Get(key)
	return
}

// LookupCredentials resolves credentials for the scope from the session
// cache first and, when fromVault is set and a vault is attached, from
// persistent storage. Vault hits are promoted into the session cache.
func (s *SessionContext) LookupCredentials(key CredentialKey, fromVault bool) (c Credentials, ok bool) {
	c, ok = s.creds.Get(key)
	if ok || !fromVault {
		return
	}
	s.vaultMu.Lock()
	v := s.vault
	s.vaultMu.Unlock()
	if v == nil {
		return
	}
	stored, err := v.Get(key.Host, key.Port, key.Protocol, key.Realm)
	if err != nil || stored == nil {
		return
	}
	c, ok = *stored, true
	s.creds.Set(key, c)
	return
}

// StoreCredentials records credentials that a server accepted: into the
// session cache when toCache is set and, when toVault is set and a
// vault is attached, into persistent storage as well.
func (s *SessionContext) StoreCredentials(key CredentialKey, c Credentials, toCache, toVault bool) (err error) {
	if toCache {
		s.creds.Set(key, c)
	}
	if !toVault {
		return
	}
	s.vaultMu.Lock()
	v := s.vault
	s.vaultMu.Unlock()
	if v == nil {
		return
	}
	err = v.Put(key.Host, key.Port, key.Protocol, key.Realm, c)
	return
}

// SetCookies replaces the jar contents with the given cookies.
func (s *SessionContext) SetCookies(cookies []Cookie) {
	s.jarMu.Lock()
	defer s.jarMu.Unlock()
	s.jar.Clear()
	for _, c := range cookies {
		s.jar.Put(c)
	}
}

// Cookies returns a snapshot of the jar in insertion order.
func (s *SessionContext) Cookies() (cookies []Cookie) {
	s.jarMu.Lock()
	defer s.jarMu.Unlock()
	cookies = s.jar.All()
	return
}

// MergeCookies records the Set-Cookie values of a response into the jar.
func (s *SessionContext) MergeCookies(setCookies []string, reqURL *url.URL) {
	if len(setCookies) == 0 {
		return
	}
	s.jarMu.Lock()
	defer s.jarMu.Unlock()
	s.jar.Merge(setCookies, reqURL)
}

// SelectCookies serializes every jar cookie applicable to u into a
// single Cookie header value, with the request-level overrides first.
func (s *SessionContext) SelectCookies(u *url.URL, overrides []Cookie) string {
	var (
		b    []byte
		skip map[string]bool
	)
	if len(overrides) > 0 {
		skip = make(map[string]bool, len(overrides))
	}
	for _, c := range overrides {
		if len(b) > 0 {
			b = append(b, "; "...)
		}
		b = append(b, c.Name...)
		b = append(b, '=')
		b = append(b, c.Value...)
		skip[c.Name] = true
	}
	s.jarMu.Lock()
	fromJar := s.jar.Select(u, skip)
	s.jarMu.Unlock()
	if fromJar != "" {
		if len(b) > 0 {
			b = append(b, "; "...)
		}
		b = append(b, fromJar...)
	}
	return string(b)
}

// PersistCookies writes the current jar into the attached cookie store.
// It is a no-op without a store.
func (s *SessionContext) PersistCookies() (err error) {
	s.jarMu.Lock()
	store, cookies := s.store, s.jar.All()
	s.jarMu.Unlock()
	if store == nil {
		return
	}
	err = store.Save(cookies)
	return
}

// Clear resets both the credential cache and the cookie jar to empty.
// A subsequent request to a previously authenticated host goes through
// the full challenge path again.
func (s *SessionContext) Clear() {
	s.creds.Make()
	s.jarMu.Lock()
	s.jar.Clear()
	s.jarMu.Unlock()
}
