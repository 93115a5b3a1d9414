// Package types defines the data structures shared across the credman
// package for credential storage.
package types

import (
	"fmt"
	"strings"
)

// Credential is a set of authentication credentials bound to a protection
// space. The Password field is stored encrypted when persisted by the
// CredentialManager.
type Credential struct {
	// Host is the server the credential belongs to.
	Host string
	// Port is the server port.
	Port int
	// Protocol is the scheme of the protection space, e.g. "http",
	// "https" or "proxy".
	Protocol string
	// Realm is the authentication realm announced by the server. May be
	// empty for schemes that do not carry one.
	Realm string
	// Username identifies the account.
	Username string
	// Password is the account secret, stored encrypted when persisted.
	Password string
	// Domain is the NT domain, used by NTLM authentication only.
	Domain string
}

// Key returns the storage key of the protection space the credential
// belongs to. Two credentials with the same key shadow each other.
func (c *Credential) Key() string {
	return SpaceKey(c.Host, c.Port, c.Protocol, c.Realm)
}

// SpaceKey builds the storage key for a protection space.
func SpaceKey(host string, port int, protocol, realm string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s://%s:%d", protocol, strings.ToLower(host), port)
	if realm != "" {
		b.WriteByte('#')
		b.WriteString(realm)
	}
	return b.String()
}
