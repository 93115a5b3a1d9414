package fetchlib

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// digestToken computes a Digest Authorization value for the given
// challenge params (RFC 7616, MD5 with optional qop=auth). nonceUse is
// the 1-based count of requests sent under the current server nonce.
func digestToken(params map[string]string, method, uri string, creds *Credentials, nonceUse int) (string, error) {
	realm := params["realm"]
	nonce := params["nonce"]
	if nonce == "" {
		return "", fmt.Errorf("%w: digest challenge without nonce", ErrAuthenticationFailed)
	}
	algorithm := params["algorithm"]
	if algorithm == "" {
		algorithm = "MD5"
	}
	if !strings.EqualFold(algorithm, "MD5") && !strings.EqualFold(algorithm, "MD5-sess") {
		return "", fmt.Errorf("%w: unsupported digest algorithm %q", ErrAuthenticationFailed, algorithm)
	}

	qop := ""
	for _, q := range strings.Split(params["qop"], ",") {
		if strings.TrimSpace(q) == "auth" {
			qop = "auth"
			break
		}
	}

	cnonce, err := newCnonce()
	if err != nil {
		return "", err
	}
	nc := fmt.Sprintf("%08x", nonceUse)

	ha1 := md5hex(creds.Username + ":" + realm + ":" + creds.Password)
	if strings.EqualFold(algorithm, "MD5-sess") {
		ha1 = md5hex(ha1 + ":" + nonce + ":" + cnonce)
	}
	ha2 := md5hex(method + ":" + uri)

	var response string
	if qop == "auth" {
		response = md5hex(strings.Join([]string{ha1, nonce, nc, cnonce, qop, ha2}, ":"))
	} else {
		response = md5hex(ha1 + ":" + nonce + ":" + ha2)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username=%q, realm=%q, nonce=%q, uri=%q, response=%q`,
		creds.Username, realm, nonce, uri, response)
	fmt.Fprintf(&b, ", algorithm=%s", algorithm)
	if qop == "auth" {
		fmt.Fprintf(&b, `, qop=auth, nc=%s, cnonce=%q`, nc, cnonce)
	}
	if opaque := params["opaque"]; opaque != "" {
		fmt.Fprintf(&b, `, opaque=%q`, opaque)
	}
	return b.String(), nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCnonce() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
