package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	"github.com/opfetch/opfetch/cmd/common"
	"github.com/opfetch/opfetch/pkg/fetchlib"
)

var (
	outputPath  string
	userAgent   string
	username    string
	password    string
	ntDomain    string
	proxyURL    string
	headerList  cli.StringSlice
	cookieList  cli.StringSlice
	timeoutSecs int
	maxRedirs   int
	authRetries int
	concurrency int
	noCookies   bool
	noKeychain  bool
	noProgress  bool

	transferFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "output, o",
			Usage:       "write the response body to this file instead of stdout",
			Destination: &outputPath,
		},
		cli.StringFlag{
			Name:        "user-agent, a",
			Usage:       "set a custom user agent",
			Destination: &userAgent,
		},
		cli.StringFlag{
			Name:        "username, u",
			Usage:       "username to answer authentication challenges with",
			Destination: &username,
		},
		cli.StringFlag{
			Name:        "password, p",
			Usage:       "password to answer authentication challenges with",
			Destination: &password,
		},
		cli.StringFlag{
			Name:        "nt-domain",
			Usage:       "NT domain for ntlm authentication",
			Destination: &ntDomain,
		},
		cli.StringFlag{
			Name:        "proxy, x",
			Usage:       "route the transfer through this proxy (http, https or socks5 url)",
			Destination: &proxyURL,
		},
		cli.StringSliceFlag{
			Name:  "header, H",
			Usage: "add a request header as 'Name: value' (repeatable)",
			Value: &headerList,
		},
		cli.StringSliceFlag{
			Name:  "cookie, b",
			Usage: "add a request cookie as 'name=value' (repeatable)",
			Value: &cookieList,
		},
		cli.IntFlag{
			Name:        "timeout, t",
			Usage:       "per-exchange timeout in seconds (0 disables)",
			Destination: &timeoutSecs,
		},
		cli.IntFlag{
			Name:        "max-redirects",
			Usage:       "maximum redirect hops to follow",
			Destination: &maxRedirs,
		},
		cli.IntFlag{
			Name:        "auth-retries",
			Usage:       "authenticated sends allowed before giving up",
			Destination: &authRetries,
		},
		cli.IntFlag{
			Name:        "concurrency, c",
			Usage:       "worker count when transferring several urls at once",
			Destination: &concurrency,
		},
		cli.BoolFlag{
			Name:        "no-cookies",
			Usage:       "disable the persistent cookie store for this run",
			Destination: &noCookies,
		},
		cli.BoolFlag{
			Name:        "no-keychain",
			Usage:       "disable the credential vault for this run",
			Destination: &noKeychain,
		},
		cli.BoolFlag{
			Name:        "no-progress",
			Usage:       "disable the progress bar",
			Destination: &noProgress,
		},
	}
)

func buildHeaders() (headers fetchlib.Headers, err error) {
	if userAgent != "" {
		headers = append(headers, fetchlib.Header{
			Key: fetchlib.USER_AGENT_KEY, Value: userAgent,
		})
	}
	for _, raw := range headerList {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", raw)
		}
		headers = append(headers, fetchlib.Header{
			Key: strings.TrimSpace(name), Value: strings.TrimSpace(value),
		})
	}
	return headers, nil
}

func applyCookieFlags(r *fetchlib.Request) error {
	for _, raw := range cookieList {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			return fmt.Errorf("invalid cookie %q, expected 'name=value'", raw)
		}
		r.AddCookie(fetchlib.Cookie{Name: name, Value: value})
	}
	return nil
}

// promptCredentials reads a username and password from the terminal for
// an authentication challenge the stores could not answer.
func promptCredentials(c fetchlib.Challenge) (creds fetchlib.Credentials, err error) {
	in := bufio.NewReader(os.Stdin)
	if c.Realm != "" {
		fmt.Printf("authentication required (%s, realm %q)\n", c.Scheme, c.Realm)
	} else {
		fmt.Printf("authentication required (%s)\n", c.Scheme)
	}
	fmt.Print("username: ")
	user, err := in.ReadString('\n')
	if err != nil {
		return creds, err
	}
	fmt.Print("password: ")
	pass, err := in.ReadString('\n')
	if err != nil {
		return creds, err
	}
	creds.Username = strings.TrimSpace(user)
	creds.Password = strings.TrimRight(pass, "\r\n")
	if c.Scheme == fetchlib.AuthNTLM {
		if d, u, ok := strings.Cut(creds.Username, "\\"); ok {
			creds.Domain, creds.Username = d, u
		}
	}
	return creds, nil
}

// attachProgress wires mpb bars into the request handlers. The download
// bar appears once the response head arrives; an upload bar is shown
// only for requests that carry a body.
func attachProgress(p *mpb.Progress, handlers *fetchlib.Handlers, withUpload bool) {
	if p == nil {
		return
	}
	var (
		dbar, ubar *mpb.Bar
		dlast      = time.Now()
		ulast      = time.Now()
	)
	if withUpload {
		ubar = common.InitBar(p, "Uploading", 0)
		handlers.UploadProgressHandler = func(pr fetchlib.Progress) {
			if pr.Total > 0 {
				ubar.SetTotal(int64(pr.Total), false)
				ubar.EnableTriggerComplete()
			}
			now := time.Now()
			ubar.EwmaIncrBy(int(pr.Delta), now.Sub(ulast))
			ulast = now
		}
	}
	handlers.DownloadProgressHandler = func(pr fetchlib.Progress) {
		if dbar == nil {
			dbar = common.InitBar(p, "Downloading", int64(pr.Total))
		}
		now := time.Now()
		dbar.EwmaIncrBy(int(pr.Delta), now.Sub(dlast))
		dlast = now
	}
	handlers.FinishedHandler = func(r *fetchlib.Request) {
		if ubar != nil {
			ubar.SetTotal(-1, true)
		}
		if dbar != nil {
			dbar.SetTotal(-1, true)
		}
	}
	handlers.FailedHandler = func(r *fetchlib.Request, err error) {
		if ubar != nil {
			ubar.Abort(true)
		}
		if dbar != nil {
			dbar.Abort(true)
		}
	}
}
