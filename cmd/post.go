package cmd

import (
	"errors"
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
	formFields cli.StringSlice
	formFiles  cli.StringSlice
	chunked    bool

	postFlags = append([]cli.Flag{
		cli.StringSliceFlag{
			Name:  "data, d",
			Usage: "add a form field as 'key=value' (repeatable)",
			Value: &formFields,
		},
		cli.StringSliceFlag{
			Name:  "file, F",
			Usage: "attach a file as 'field=path' (repeatable, switches to multipart)",
			Value: &formFiles,
		},
		cli.BoolFlag{
			Name:        "chunked",
			Usage:       "send the body with chunked transfer encoding",
			Destination: &chunked,
		},
	}, transferFlags...)
)

func post(ctx *cli.Context) (err error) {
	url := ctx.Args().First()
	if url == "" {
		return common.PrintErrWithCmdHelp(
			ctx,
			errors.New("no url provided"),
		)
	} else if url == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	url = strings.TrimSpace(url)

	session, closer, err := newSession(noCookies, noKeychain)
	if err != nil {
		common.PrintRuntimeErr(ctx, "post", "session", err)
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
	if !noProgress && len(formFiles) > 0 {
		progress = mpb.New(mpb.WithWidth(64))
		attachProgress(progress, handlers, true)
	}

	r, err := fetchlib.NewRequest(url, &fetchlib.RequestOpts{
		Method:                 "POST",
		Session:                session,
		Transport:              transport,
		Handlers:               handlers,
		Headers:                headers,
		Timeout:                time.Duration(timeoutSecs) * time.Second,
		MaxRedirects:           maxRedirs,
		AuthRetries:            authRetries,
		ChunkedUpload:          chunked,
		DownloadDestination:    outputPath,
		UseKeychainPersistence: !noKeychain,
	})
	if err != nil {
		common.PrintRuntimeErr(ctx, "post", "new_request", err)
		return nil
	}
	for _, raw := range formFields {
		key, value, ok := strings.Cut(raw, "=")
		if !ok {
			return common.PrintErrWithCmdHelp(ctx,
				fmt.Errorf("invalid form field %q, expected 'key=value'", raw))
		}
		r.SetPostValue(key, value)
	}
	for _, raw := range formFiles {
		field, path, ok := strings.Cut(raw, "=")
		if !ok {
			return common.PrintErrWithCmdHelp(ctx,
				fmt.Errorf("invalid file field %q, expected 'field=path'", raw))
		}
		r.SetFile(field, path)
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
		common.PrintRuntimeErr(ctx, "post", "transfer", err)
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
