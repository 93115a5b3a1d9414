package types

import "testing"

func TestSpaceKey(t *testing.T) {
	cases := []struct {
		host     string
		port     int
		protocol string
		realm    string
		want     string
	}{
		{"example.com", 80, "http", "", "http://example.com:80"},
		{"example.com", 443, "https", "api", "https://example.com:443#api"},
		{"EXAMPLE.com", 80, "http", "", "http://example.com:80"},
		{"proxy.local", 3128, "proxy", "gateway", "proxy://proxy.local:3128#gateway"},
	}
	for _, c := range cases {
		if got := SpaceKey(c.host, c.port, c.protocol, c.realm); got != c.want {
			t.Errorf("SpaceKey(%q, %d, %q, %q) = %q, want %q",
				c.host, c.port, c.protocol, c.realm, got, c.want)
		}
	}
}

func TestCredentialKey(t *testing.T) {
	c := Credential{Host: "example.com", Port: 443, Protocol: "https", Realm: "api"}
	if got := c.Key(); got != "https://example.com:443#api" {
		t.Errorf("Key() = %q", got)
	}
	// realm distinguishes protection spaces on the same origin
	other := c
	other.Realm = "files"
	if c.Key() == other.Key() {
		t.Error("different realms share a key")
	}
}
