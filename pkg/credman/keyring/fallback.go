// Package keyring stores the vault master key in the operating system's
// native keyring service, with a file-based fallback for systems where no
// keyring daemon is available.
package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const (
	keyFileName = "vault.key"
	keyFileMode = 0600
)

// FileKeyStore is the fallback key store. Keys are kept hex-encoded in a
// single file with 0600 permissions.
type FileKeyStore struct {
	configDir string
}

var (
	fileRandRead    = rand.Read
	fileReadFile    = os.ReadFile
	fileRemove      = os.Remove
	fileRename      = os.Rename
	fileMkdirAll    = os.MkdirAll
	fileTempFile    = os.CreateTemp
	fileTempFileDir = ""
)

// NewFileKeyStore creates a FileKeyStore rooted at the given configuration
// directory. The directory is created on first SetKey.
func NewFileKeyStore(configDir string) *FileKeyStore {
	return &FileKeyStore{
		configDir: configDir,
	}
}

func (f *FileKeyStore) keyPath() string {
	return filepath.Join(f.configDir, keyFileName)
}

// SetKey generates a fresh 32-byte key and writes it atomically via a
// temporary file and rename, so an interrupted process never leaves a
// truncated key behind.
func (f *FileKeyStore) SetKey() ([]byte, error) {
	if err := fileMkdirAll(f.configDir, 0755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	key := make([]byte, 32)
	if _, err := fileRandRead(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	dir := f.configDir
	if fileTempFileDir != "" {
		dir = fileTempFileDir
	}
	tmpFile, err := fileTempFile(dir, ".vault.key.tmp.*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.WriteString(hex.EncodeToString(key)); err != nil {
		tmpFile.Close()
		fileRemove(tmpPath)
		return nil, fmt.Errorf("write key: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		fileRemove(tmpPath)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, keyFileMode); err != nil {
		fileRemove(tmpPath)
		return nil, fmt.Errorf("set permissions: %w", err)
	}

	if err := fileRename(tmpPath, f.keyPath()); err != nil {
		fileRemove(tmpPath)
		return nil, fmt.Errorf("rename key file: %w", err)
	}

	return key, nil
}

// GetKey reads the stored key back. Returns an error if the file is
// missing, unreadable or does not decode to a 32-byte key.
func (f *FileKeyStore) GetKey() ([]byte, error) {
	data, err := fileReadFile(f.keyPath())
	if err != nil {
		return nil, err
	}

	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid key format: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length: expected 32, got %d", len(key))
	}

	return key, nil
}

// DeleteKey removes the key file.
func (f *FileKeyStore) DeleteKey() error {
	return fileRemove(f.keyPath())
}

// KeyStore is satisfied by both the system keyring and the file fallback.
type KeyStore interface {
	SetKey() ([]byte, error)
	GetKey() ([]byte, error)
	DeleteKey() error
}

// LoadKey returns the vault master key from the first store that has one,
// creating a key in the first store that accepts a write when none exists
// yet.
func LoadKey(stores ...KeyStore) ([]byte, error) {
	var lastErr error
	for _, s := range stores {
		key, err := s.GetKey()
		if err == nil && len(key) == 32 {
			return key, nil
		}
		lastErr = err
	}
	for _, s := range stores {
		key, err := s.SetKey()
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable key store: %w", lastErr)
}
