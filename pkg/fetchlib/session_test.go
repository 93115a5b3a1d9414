package fetchlib

import (
	"errors"
	"testing"
)

// fakeVault records vault traffic for credential resolution tests.
type fakeVault struct {
	stored map[string]Credentials
	gets   int
	puts   int
	getErr error
}

func (v *fakeVault) key(host string, port int, protocol, realm string) string {
	return protocol + "//" + host + "#" + realm
}

func (v *fakeVault) Get(host string, port int, protocol, realm string) (*Credentials, error) {
	v.gets++
	if v.getErr != nil {
		return nil, v.getErr
	}
	c, ok := v.stored[v.key(host, port, protocol, realm)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v *fakeVault) Put(host string, port int, protocol, realm string, c Credentials) error {
	v.puts++
	if v.stored == nil {
		v.stored = make(map[string]Credentials)
	}
	v.stored[v.key(host, port, protocol, realm)] = c
	return nil
}

func (v *fakeVault) Delete(host string, port int, protocol, realm string) error {
	delete(v.stored, v.key(host, port, protocol, realm))
	return nil
}

var apiKey = CredentialKey{Host: "example.com", Port: 80, Protocol: "http", Realm: "api"}

func TestSessionCredentialCache(t *testing.T) {
	s := NewSession()
	if _, ok := s.CachedCredentials(apiKey); ok {
		t.Error("empty session reported cached credentials")
	}
	s.SetCredentials(apiKey, Credentials{Username: "jan", Password: "x"})
	c, ok := s.CachedCredentials(apiKey)
	if !ok || c.Username != "jan" {
		t.Errorf("cached = %+v, ok=%v", c, ok)
	}
	// realm is part of the scope
	other := apiKey
	other.Realm = "files"
	if _, ok := s.CachedCredentials(other); ok {
		t.Error("credentials leaked across realms")
	}
}

func TestLookupCredentialsPromotesVaultHit(t *testing.T) {
	v := &fakeVault{}
	v.Put(apiKey.Host, apiKey.Port, apiKey.Protocol, apiKey.Realm,
		Credentials{Username: "jan", Password: "sesame"})
	v.puts = 0

	s := NewSession()
	s.AttachVault(v)

	c, ok := s.LookupCredentials(apiKey, true)
	if !ok || c.Password != "sesame" {
		t.Fatalf("lookup = %+v, ok=%v", c, ok)
	}
	if v.gets != 1 {
		t.Errorf("vault gets = %d, want 1", v.gets)
	}

	// the hit is promoted, so the second lookup never touches the vault
	if _, ok := s.LookupCredentials(apiKey, true); !ok {
		t.Fatal("promoted credentials missing")
	}
	if v.gets != 1 {
		t.Errorf("vault gets after promotion = %d, want 1", v.gets)
	}
}

func TestLookupCredentialsVaultDisabled(t *testing.T) {
	v := &fakeVault{}
	v.Put(apiKey.Host, apiKey.Port, apiKey.Protocol, apiKey.Realm, Credentials{Username: "jan"})

	s := NewSession()
	s.AttachVault(v)
	if _, ok := s.LookupCredentials(apiKey, false); ok {
		t.Error("vault consulted with fromVault=false")
	}
}

func TestLookupCredentialsVaultError(t *testing.T) {
	s := NewSession()
	s.AttachVault(&fakeVault{getErr: errors.New("locked")})
	if _, ok := s.LookupCredentials(apiKey, true); ok {
		t.Error("vault error surfaced as a hit")
	}
}

func TestStoreCredentialsFlags(t *testing.T) {
	v := &fakeVault{}
	s := NewSession()
	s.AttachVault(v)
	creds := Credentials{Username: "jan", Password: "x"}

	if err := s.StoreCredentials(apiKey, creds, true, false); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, ok := s.CachedCredentials(apiKey); !ok {
		t.Error("toCache did not populate the cache")
	}
	if v.puts != 0 {
		t.Errorf("vault puts = %d, want 0", v.puts)
	}

	if err := s.StoreCredentials(apiKey, creds, false, true); err != nil {
		t.Fatalf("store: %v", err)
	}
	if v.puts != 1 {
		t.Errorf("vault puts = %d, want 1", v.puts)
	}
}

func TestStoreCredentialsWithoutVault(t *testing.T) {
	s := NewSession()
	if err := s.StoreCredentials(apiKey, Credentials{Username: "jan"}, false, true); err != nil {
		t.Errorf("store without vault: %v", err)
	}
}

func TestSessionClear(t *testing.T) {
	s := NewSession()
	s.SetCredentials(apiKey, Credentials{Username: "jan"})
	s.SetCookies([]Cookie{{Name: "sid", Value: "1", Domain: "example.com", Path: "/"}})
	s.Clear()
	if _, ok := s.CachedCredentials(apiKey); ok {
		t.Error("credentials survived Clear")
	}
	if got := s.Cookies(); len(got) != 0 {
		t.Errorf("cookies survived Clear: %v", got)
	}
}

func TestSelectCookiesOverridesFirst(t *testing.T) {
	s := NewSession()
	s.SetCookies([]Cookie{
		{Name: "sid", Value: "jar", Domain: "example.com", Path: "/"},
		{Name: "lang", Value: "cs", Domain: "example.com", Path: "/"},
	})
	u := mustURL(t, "http://example.com/")
	got := s.SelectCookies(u, []Cookie{{Name: "sid", Value: "override"}})
	if got != "sid=override; lang=cs" {
		t.Errorf("cookie line = %q", got)
	}
	// without overrides the jar value comes through
	if got := s.SelectCookies(u, nil); got != "sid=jar; lang=cs" {
		t.Errorf("cookie line = %q", got)
	}
}

// memoryCookieStore is an in-process CookieStore for persistence tests.
type memoryCookieStore struct {
	cookies []Cookie
	loadErr error
	saves   int
}

func (m *memoryCookieStore) Load() ([]Cookie, error) { return m.cookies, m.loadErr }

func (m *memoryCookieStore) Save(cookies []Cookie) error {
	m.cookies = append([]Cookie(nil), cookies...)
	m.saves++
	return nil
}

func TestAttachCookieStoreLoadsJar(t *testing.T) {
	store := &memoryCookieStore{cookies: []Cookie{
		{Name: "sid", Value: "restored", Domain: "example.com", Path: "/"},
	}}
	s := NewSession()
	if err := s.AttachCookieStore(store); err != nil {
		t.Fatalf("attach: %v", err)
	}
	got := s.Cookies()
	if len(got) != 1 || got[0].Value != "restored" {
		t.Errorf("jar after attach = %v", got)
	}
}

func TestAttachCookieStoreLoadError(t *testing.T) {
	s := NewSession()
	err := s.AttachCookieStore(&memoryCookieStore{loadErr: errors.New("corrupt")})
	if err == nil {
		t.Fatal("load error swallowed")
	}
	if err := s.PersistCookies(); err != nil {
		t.Errorf("persist after failed attach: %v", err)
	}
}

func TestPersistCookies(t *testing.T) {
	store := &memoryCookieStore{}
	s := NewSession()
	if err := s.AttachCookieStore(store); err != nil {
		t.Fatalf("attach: %v", err)
	}
	s.SetCookies([]Cookie{{Name: "sid", Value: "1", Domain: "example.com", Path: "/"}})
	if err := s.PersistCookies(); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if store.saves != 1 || len(store.cookies) != 1 || store.cookies[0].Name != "sid" {
		t.Errorf("store after persist = %+v", store)
	}
}
