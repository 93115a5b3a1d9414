package fetchlib

import (
	"log"
)

const (
	DEF_CHUNK_SIZE   = 32 * KB
	DEF_USER_AGENT   = "opfetch/1.0"
	DEF_MAX_BODY_MEM = 1 * GB

	// DefaultMaxRedirects is the maximum number of redirect hops allowed.
	DefaultMaxRedirects = 10

	// DefaultAuthRetries is the number of authenticated sends allowed
	// before the engine stops retrying on its own and surfaces
	// ErrAuthenticationFailed.
	DefaultAuthRetries = 1
)

func wlog(l *log.Logger, s string, a ...any) {
	if l == nil {
		return
	}
	l.Printf(s+"\n", a...)
}

func defaultPort(tls bool) int {
	if tls {
		return 443
	}
	return 80
}
