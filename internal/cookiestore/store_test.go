package cookiestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/opfetch/opfetch/pkg/fetchlib"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cookies.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSaveLoad(t *testing.T) {
	s := openTestStore(t)
	in := []fetchlib.Cookie{
		{Name: "sid", Value: "abc", Domain: "example.com", Path: "/", Secure: true,
			Expires: time.Now().Add(time.Hour).Truncate(time.Second)},
		{Name: "lang", Value: "cs", Domain: "example.com", Path: "/account"},
	}
	if err := s.Save(in); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d cookies, want 2", len(got))
	}
	byName := map[string]fetchlib.Cookie{}
	for _, c := range got {
		byName[c.Name] = c
	}
	sid := byName["sid"]
	if sid.Value != "abc" || !sid.Secure || !sid.Expires.Equal(in[0].Expires) {
		t.Errorf("sid = %+v", sid)
	}
	lang := byName["lang"]
	if lang.Path != "/account" || lang.Secure || !lang.Expires.IsZero() {
		t.Errorf("lang = %+v", lang)
	}
}

func TestStoreSaveReplacesAll(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save([]fetchlib.Cookie{
		{Name: "old", Value: "1", Domain: "example.com", Path: "/"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save([]fetchlib.Cookie{
		{Name: "new", Value: "2", Domain: "example.com", Path: "/"},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "new" {
		t.Errorf("cookies after second save = %v", got)
	}
}

func TestStoreLoadSkipsExpired(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save([]fetchlib.Cookie{
		{Name: "gone", Value: "1", Domain: "example.com", Path: "/",
			Expires: time.Now().Add(-time.Hour)},
		{Name: "session", Value: "2", Domain: "example.com", Path: "/"},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "session" {
		t.Errorf("cookies = %v", got)
	}
}

func TestStoreClear(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save([]fetchlib.Cookie{
		{Name: "sid", Value: "1", Domain: "example.com", Path: "/"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("cookies after clear = %v", got)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save([]fetchlib.Cookie{
		{Name: "sid", Value: "kept", Domain: "example.com", Path: "/"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value != "kept" {
		t.Errorf("cookies after reopen = %v", got)
	}
}
