package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	urlpkg "net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	"github.com/opfetch/opfetch/cmd/common"
	"github.com/opfetch/opfetch/internal/queue"
	"github.com/opfetch/opfetch/pkg/fetchlib"
	"github.com/opfetch/opfetch/pkg/logger"
)

var getFlags = transferFlags

func get(ctx *cli.Context) (err error) {
	url := ctx.Args().First()
	if url == "" {
		if ctx.Command.Name == "" {
			return common.Help(ctx)
		}
		return common.PrintErrWithCmdHelp(
			ctx,
			errors.New("no url provided"),
		)
	} else if url == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	if ctx.NArg() > 1 {
		return getBatch(ctx)
	}
	url = strings.TrimSpace(url)

	session, closer, err := newSession(noCookies, noKeychain)
	if err != nil {
		common.PrintRuntimeErr(ctx, "get", "session", err)
		return nil
	}
	defer closer.Close()

	headers, err := buildHeaders()
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}

	transport, err := buildTransport()
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}

	handlers := &fetchlib.Handlers{
		AuthNeededHandler: authPrompter(ctx),
	}

	var progress *mpb.Progress
	if outputPath != "" && !noProgress {
		progress = mpb.New(mpb.WithWidth(64))
		attachProgress(progress, handlers, false)
	}

	r, err := fetchlib.NewRequest(url, &fetchlib.RequestOpts{
		Session:                session,
		Transport:              transport,
		Handlers:               handlers,
		Headers:                headers,
		Timeout:                time.Duration(timeoutSecs) * time.Second,
		MaxRedirects:           maxRedirs,
		AuthRetries:            authRetries,
		DownloadDestination:    outputPath,
		UseKeychainPersistence: !noKeychain,
	})
	if err != nil {
		common.PrintRuntimeErr(ctx, "get", "new_request", err)
		return nil
	}
	if username != "" {
		r.SetCredentials(fetchlib.Credentials{
			Username: username,
			Password: password,
			Domain:   ntDomain,
		})
	}
	if err := applyCookieFlags(r); err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}

	if err := r.Run(); err != nil {
		if progress != nil {
			progress.Wait()
		}
		common.PrintRuntimeErr(ctx, "get", "transfer", err)
		return nil
	}
	if progress != nil {
		progress.Wait()
	}

	if outputPath == "" {
		os.Stdout.Write(r.Body())
	} else {
		fmt.Printf("saved %s (%s, status %d)\n",
			outputPath, fetchlib.ByteCount(r.TotalBytesRead()).String(), r.StatusCode())
	}
	return nil
}

// getBatch runs every url given on the command line through the worker
// queue. Each transfer writes to a file named after the url; interactive
// credential prompts are skipped because they cannot be shared between
// concurrent transfers.
func getBatch(ctx *cli.Context) error {
	if outputPath != "" {
		return common.PrintErrWithCmdHelp(
			ctx,
			errors.New("--output cannot name more than one transfer"),
		)
	}

	session, closer, err := newSession(noCookies, noKeychain)
	if err != nil {
		common.PrintRuntimeErr(ctx, "get", "session", err)
		return nil
	}
	defer closer.Close()

	headers, err := buildHeaders()
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}

	var progress *mpb.Progress
	qlog := logger.Logger(logger.NewNopLogger())
	if noProgress {
		qlog = logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	} else {
		progress = mpb.New(mpb.WithWidth(64))
	}

	q := queue.New(context.Background(), qlog, concurrency)
	var (
		requests []*fetchlib.Request
		outputs  []string
	)
	for _, raw := range ctx.Args() {
		raw = strings.TrimSpace(raw)
		transport, err := buildTransport()
		if err != nil {
			q.Abort()
			return common.PrintErrWithCmdHelp(ctx, err)
		}
		handlers := &fetchlib.Handlers{}
		if progress != nil {
			attachProgress(progress, handlers, false)
		}
		dest := batchOutputName(raw)
		r, err := fetchlib.NewRequest(raw, &fetchlib.RequestOpts{
			Session:                session,
			Transport:              transport,
			Handlers:               handlers,
			Headers:                headers,
			Timeout:                time.Duration(timeoutSecs) * time.Second,
			MaxRedirects:           maxRedirs,
			AuthRetries:            authRetries,
			DownloadDestination:    dest,
			UseKeychainPersistence: !noKeychain,
		})
		if err != nil {
			common.PrintRuntimeErr(ctx, "get", "new_request", err)
			continue
		}
		if username != "" {
			r.SetCredentials(fetchlib.Credentials{
				Username: username,
				Password: password,
				Domain:   ntDomain,
			})
		}
		if err := applyCookieFlags(r); err != nil {
			q.Abort()
			return common.PrintErrWithCmdHelp(ctx, err)
		}
		requests = append(requests, r)
		outputs = append(outputs, dest)
		q.Enqueue(r)
	}
	q.Close()
	if progress != nil {
		progress.Wait()
	}

	var failed int
	for i, r := range requests {
		if err := r.Err(); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.URL().Redacted(), err)
			continue
		}
		fmt.Printf("saved %s (%s, status %d)\n",
			outputs[i], fetchlib.ByteCount(r.TotalBytesRead()).String(), r.StatusCode())
	}
	if failed > 0 {
		common.PrintRuntimeErr(ctx, "get", "transfer",
			fmt.Errorf("%d of %d transfers failed", failed, len(requests)))
	}
	return nil
}

// batchOutputName derives a local filename from a url for multi-url
// transfers, where a single --output cannot name every file.
func batchOutputName(rawURL string) string {
	u, err := urlpkg.Parse(rawURL)
	if err != nil {
		return "index.html"
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." || base == "" {
		return "index.html"
	}
	return base
}

// authPrompter answers challenges interactively. Cancelling on a read
// failure keeps the request from hanging in the paused state.
func authPrompter(ctx *cli.Context) fetchlib.AuthNeededHandlerFunc {
	return func(r *fetchlib.Request, c fetchlib.Challenge) {
		creds, err := promptCredentials(c)
		if err != nil {
			r.Cancel()
			return
		}
		if err := r.RetryWithAuthentication(creds); err != nil {
			common.PrintRuntimeErr(ctx, "auth", "retry", err)
		}
	}
}

func buildTransport() (fetchlib.Transport, error) {
	if proxyURL == "" {
		return nil, nil
	}
	pc, err := fetchlib.ParseProxyURL(proxyURL)
	if err != nil {
		return nil, err
	}
	return &fetchlib.NetTransport{Proxy: pc}, nil
}
