package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opfetch/opfetch/internal/cookiestore"
	"github.com/opfetch/opfetch/pkg/credman"
	"github.com/opfetch/opfetch/pkg/credman/keyring"
	"github.com/opfetch/opfetch/pkg/credman/types"
	"github.com/opfetch/opfetch/pkg/fetchlib"
)

const (
	credFileName   = "vault.db"
	cookieFileName = "cookies.db"
)

func configDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "opfetch")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// vaultAdapter exposes a CredentialManager through the engine's vault
// interface. A lookup miss is not an error to the engine.
type vaultAdapter struct {
	cm *credman.CredentialManager
}

func (v *vaultAdapter) Get(host string, port int, protocol, realm string) (*fetchlib.Credentials, error) {
	key := types.SpaceKey(host, port, protocol, realm)
	if !v.cm.HasCredential(key) {
		return nil, nil
	}
	cred, err := v.cm.GetCredential(key)
	if err != nil {
		return nil, err
	}
	return &fetchlib.Credentials{
		Username: cred.Username,
		Password: cred.Password,
		Domain:   cred.Domain,
	}, nil
}

func (v *vaultAdapter) Put(host string, port int, protocol, realm string, c fetchlib.Credentials) error {
	return v.cm.SetCredential(types.Credential{
		Host:     host,
		Port:     port,
		Protocol: protocol,
		Realm:    realm,
		Username: c.Username,
		Password: c.Password,
		Domain:   c.Domain,
	})
}

func (v *vaultAdapter) Delete(host string, port int, protocol, realm string) error {
	return v.cm.DeleteCredential(types.SpaceKey(host, port, protocol, realm))
}

var _ fetchlib.CredentialVault = (*vaultAdapter)(nil)

func openVault(dir string) (*credman.CredentialManager, error) {
	key, err := keyring.LoadKey(keyring.NewKeyring(), keyring.NewFileKeyStore(dir))
	if err != nil {
		return nil, fmt.Errorf("load master key: %w", err)
	}
	return credman.NewCredentialManager(filepath.Join(dir, credFileName), key)
}

// sessionCloser bundles the resources behind a session so commands can
// tear everything down with one call.
type sessionCloser struct {
	vault *credman.CredentialManager
	store *cookiestore.Store
}

func (c *sessionCloser) Close() {
	if c.vault != nil {
		c.vault.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// newSession builds a session wired to the persistent cookie store and
// the credential vault, honoring the no-cookies/no-keychain switches.
func newSession(noCookies, noKeychain bool) (*fetchlib.SessionContext, *sessionCloser, error) {
	session := fetchlib.NewSession()
	closer := &sessionCloser{}

	dir, err := configDir()
	if err != nil {
		return nil, nil, err
	}

	if !noKeychain {
		cm, err := openVault(dir)
		if err != nil {
			return nil, nil, err
		}
		closer.vault = cm
		session.AttachVault(&vaultAdapter{cm: cm})
	}

	if !noCookies {
		store, err := cookiestore.Open(filepath.Join(dir, cookieFileName))
		if err != nil {
			closer.Close()
			return nil, nil, err
		}
		closer.store = store
		if err := session.AttachCookieStore(store); err != nil {
			closer.Close()
			return nil, nil, err
		}
	}

	return session, closer, nil
}
