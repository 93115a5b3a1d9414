package fetchlib

import "errors"

var (
	ErrInvalidURL        = errors.New("request URL has no usable scheme or host")
	ErrConnection        = errors.New("could not open a connection to the server")
	ErrStream            = errors.New("connection dropped while transferring data")
	ErrCancelled         = errors.New("request was cancelled")
	ErrMalformedResponse = errors.New("malformed HTTP response head")

	ErrAuthenticationFailed = errors.New("authentication needed or the supplied credentials were rejected")
	ErrAuthNotPending       = errors.New("request is not waiting for authentication")

	ErrAlreadyStarted = errors.New("request has already been started")

	ErrTooManyRedirects = errors.New("redirect loop detected")
	ErrResponseTooLarge = errors.New("response body exceeds the in-memory size limit")

	ErrInsufficientDiskSpace = errors.New("not enough disk space for the download destination")
)
