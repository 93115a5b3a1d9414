package credman

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/opfetch/opfetch/pkg/credman/encryption"
	"github.com/opfetch/opfetch/pkg/credman/types"
)

// CredentialManager keeps credentials in memory keyed by protection space
// and mirrors every change to an encrypted gob file on disk. Passwords are
// sealed individually so a leaked store file exposes no secrets without
// the master key.
type CredentialManager struct {
	mu       sync.Mutex
	filePath string
	key      []byte
	creds    map[string]*types.Credential
}

func NewCredentialManager(filePath string, key []byte) (*CredentialManager, error) {
	cm := &CredentialManager{
		filePath: filePath,
		key:      key,
		creds:    make(map[string]*types.Credential),
	}

	err := cm.loadCredentials()
	if err != nil {
		return nil, err
	}

	return cm, nil
}

func (cm *CredentialManager) loadCredentials() error {
	data, err := os.ReadFile(cm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 { // don't decode empty data
		return nil
	}
	dec := gob.NewDecoder(bytes.NewReader(data))
	return dec.Decode(&cm.creds)
}

func (cm *CredentialManager) saveCredentials() error {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(cm.creds)
	if err != nil {
		return err
	}
	return os.WriteFile(cm.filePath, buf.Bytes(), 0600)
}

// SetCredential seals the password and stores the credential, replacing
// any previous entry for the same protection space.
func (cm *CredentialManager) SetCredential(cred types.Credential) error {
	sealed, err := encryption.EncryptValue(cred.Password, cm.key)
	if err != nil {
		return err
	}
	cred.Password = string(sealed)

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.creds[cred.Key()] = &cred
	return cm.saveCredentials()
}

// GetCredential returns the stored credential for the protection space
// with its password decrypted, or an error when none is stored.
func (cm *CredentialManager) GetCredential(key string) (*types.Credential, error) {
	cm.mu.Lock()
	cred, ok := cm.creds[key]
	cm.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("credential not found: %s", key)
	}

	password, err := encryption.DecryptValue([]byte(cred.Password), cm.key)
	if err != nil {
		return nil, err
	}
	out := *cred
	out.Password = string(password)
	return &out, nil
}

// HasCredential reports whether a credential is stored for the protection
// space without decrypting anything.
func (cm *CredentialManager) HasCredential(key string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	_, ok := cm.creds[key]
	return ok
}

func (cm *CredentialManager) DeleteCredential(key string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	_, ok := cm.creds[key]
	if !ok {
		return fmt.Errorf("credential not found: %s", key)
	}
	delete(cm.creds, key)
	return cm.saveCredentials()
}

// Keys returns the protection-space keys of all stored credentials.
func (cm *CredentialManager) Keys() []string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	keys := make([]string, 0, len(cm.creds))
	for k := range cm.creds {
		keys = append(keys, k)
	}
	return keys
}

// Clear drops every stored credential.
func (cm *CredentialManager) Clear() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.creds = make(map[string]*types.Credential)
	return cm.saveCredentials()
}

func (cm *CredentialManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.saveCredentials()
}
