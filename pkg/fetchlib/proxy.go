package fetchlib

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"
)

// ProxyConfig holds the parsed proxy configuration.
type ProxyConfig struct {
	Scheme   string
	Host     string
	Username string
	Password string
}

// URL returns the proxy URL as a string.
func (p *ProxyConfig) URL() string {
	var sb strings.Builder
	sb.WriteString(p.Scheme)
	sb.WriteString("://")
	if p.Username != "" {
		sb.WriteString(p.Username)
		if p.Password != "" {
			sb.WriteString(":")
			sb.WriteString(p.Password)
		}
		sb.WriteString("@")
	}
	sb.WriteString(p.Host)
	return sb.String()
}

func (p *ProxyConfig) auth() *proxy.Auth {
	if p.Username == "" {
		return nil
	}
	return &proxy.Auth{User: p.Username, Password: p.Password}
}

var (
	ErrEmptyProxyURL     = errors.New("proxy URL cannot be empty")
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme")
	ErrInvalidProxyURL   = errors.New("invalid proxy URL")
)

var supportedProxySchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"socks5": true,
}

// ParseProxyURL parses and validates a proxy URL string.
func ParseProxyURL(proxyURL string) (*ProxyConfig, error) {
	if proxyURL == "" {
		return nil, ErrEmptyProxyURL
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, ErrInvalidProxyURL
	}
	if !supportedProxySchemes[parsed.Scheme] {
		return nil, ErrUnsupportedScheme
	}
	if parsed.Host == "" {
		return nil, ErrInvalidProxyURL
	}
	cfg := &ProxyConfig{
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
	}
	if parsed.User != nil {
		cfg.Username = parsed.User.Username()
		cfg.Password, _ = parsed.User.Password()
	}
	if parsed.Port() == "" {
		switch parsed.Scheme {
		case "http":
			cfg.Host += ":80"
		case "https":
			cfg.Host += ":443"
		case "socks5":
			cfg.Host += ":1080"
		}
	}
	return cfg, nil
}
