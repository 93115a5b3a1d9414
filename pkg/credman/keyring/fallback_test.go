package keyring

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileKeyStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileKeyStore(dir)

	key, err := fs.SetKey()
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != 32 {
		t.Fatalf("key length = %d", len(key))
	}

	got, err := fs.GetKey()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, key) {
		t.Errorf("GetKey = %x, want %x", got, key)
	}
}

func TestFileKeyStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are advisory on windows")
	}
	dir := t.TempDir()
	fs := NewFileKeyStore(dir)
	if _, err := fs.SetKey(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(dir, keyFileName))
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != keyFileMode {
		t.Errorf("key file mode = %o, want %o", mode, keyFileMode)
	}
}

func TestFileKeyStoreCreatesConfigDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "opfetch")
	fs := NewFileKeyStore(dir)
	if _, err := fs.SetKey(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, keyFileName)); err != nil {
		t.Errorf("key file missing: %v", err)
	}
}

func TestFileKeyStoreGetKeyErrors(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileKeyStore(dir)

	if _, err := fs.GetKey(); err == nil {
		t.Error("missing key file read without error")
	}

	path := filepath.Join(dir, keyFileName)
	if err := os.WriteFile(path, []byte("not hex"), keyFileMode); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.GetKey(); err == nil {
		t.Error("undecodable key accepted")
	}

	if err := os.WriteFile(path, []byte("deadbeef"), keyFileMode); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.GetKey(); err == nil {
		t.Error("short key accepted")
	}
}

func TestFileKeyStoreDeleteKey(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileKeyStore(dir)
	if _, err := fs.SetKey(); err != nil {
		t.Fatal(err)
	}
	if err := fs.DeleteKey(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, keyFileName)); !os.IsNotExist(err) {
		t.Errorf("key file survived delete: %v", err)
	}
}

func TestFileKeyStoreNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileKeyStore(dir)

	oldRename := fileRename
	fileRename = func(oldpath, newpath string) error { return errors.New("disk full") }
	if _, err := fs.SetKey(); err == nil {
		t.Error("rename failure swallowed")
	}
	fileRename = oldRename

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

// brokenKeyStore fails every operation, standing in for a machine with no
// keyring daemon.
type brokenKeyStore struct{ err error }

func (b *brokenKeyStore) SetKey() ([]byte, error) { return nil, b.err }
func (b *brokenKeyStore) GetKey() ([]byte, error) { return nil, b.err }
func (b *brokenKeyStore) DeleteKey() error        { return b.err }

func TestLoadKeyPrefersExisting(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileKeyStore(dir)
	existing, err := fs.SetKey()
	if err != nil {
		t.Fatal(err)
	}

	key, err := LoadKey(&brokenKeyStore{err: errors.New("no daemon")}, fs)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key, existing) {
		t.Errorf("LoadKey = %x, want existing key %x", key, existing)
	}
}

func TestLoadKeyCreatesWhenEmpty(t *testing.T) {
	fs := NewFileKeyStore(t.TempDir())
	key, err := LoadKey(fs)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := fs.GetKey()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key, stored) {
		t.Error("created key not persisted")
	}
}

func TestLoadKeyFallsThroughToWritableStore(t *testing.T) {
	broken := &brokenKeyStore{err: errors.New("no daemon")}
	fs := NewFileKeyStore(t.TempDir())
	key, err := LoadKey(broken, fs)
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != 32 {
		t.Errorf("key length = %d", len(key))
	}
}

func TestLoadKeyAllStoresBroken(t *testing.T) {
	broken := &brokenKeyStore{err: errors.New("no daemon")}
	if _, err := LoadKey(broken, broken); err == nil {
		t.Error("LoadKey succeeded with no usable store")
	}
}
