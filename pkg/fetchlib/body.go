package fetchlib

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FormField is one POST field: either a scalar value or the contents
// of a local file.
type FormField struct {
	Key      string
	Value    string
	FilePath string
	IsFile   bool
}

// payload is the fully computed request body. Its exact byte length is
// known before the transfer starts and doubles as the Content-Length
// header value and the upload progress denominator. open returns a
// fresh reader for every send so authentication retries can replay the
// body without re-reading caller state.
type payload struct {
	contentType string
	length      int64
	segments    []bodySegment
	fs          afero.Fs
}

type bodySegment struct {
	literal  []byte
	filePath string
	fileSize int64
}

// buildPayload computes the request body for the given fields. Scalar
// fields alone produce an application/x-www-form-urlencoded body; any
// file field switches the whole body to multipart/form-data with a
// generated unique boundary. File sizes are resolved now, so a file
// that changes size mid-transfer corrupts the exchange rather than the
// length accounting.
func buildPayload(fields []FormField, fs afero.Fs) (*payload, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	hasFile := false
	for _, f := range fields {
		if f.IsFile {
			hasFile = true
			break
		}
	}
	if !hasFile {
		return urlencodedPayload(fields), nil
	}
	return multipartPayload(fields, fs)
}

func urlencodedPayload(fields []FormField) *payload {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	body := []byte(b.String())
	return &payload{
		contentType: "application/x-www-form-urlencoded",
		length:      int64(len(body)),
		segments:    []bodySegment{{literal: body}},
	}
}

func multipartPayload(fields []FormField, fs afero.Fs) (*payload, error) {
	boundary := "opfetch-" + uuid.NewString()
	p := &payload{
		contentType: "multipart/form-data; boundary=" + boundary,
		fs:          fs,
	}
	for _, f := range fields {
		if !f.IsFile {
			part := fmt.Sprintf(
				"--%s\r\nContent-Disposition: form-data; name=%q\r\n\r\n%s\r\n",
				boundary, f.Key, f.Value,
			)
			p.segments = append(p.segments, bodySegment{literal: []byte(part)})
			continue
		}
		info, err := fs.Stat(f.FilePath)
		if err != nil {
			return nil, fmt.Errorf("post file %s: %w", f.FilePath, err)
		}
		head := fmt.Sprintf(
			"--%s\r\nContent-Disposition: form-data; name=%q; filename=%q\r\nContent-Type: application/octet-stream\r\n\r\n",
			boundary, f.Key, filepath.Base(f.FilePath),
		)
		p.segments = append(p.segments,
			bodySegment{literal: []byte(head)},
			bodySegment{filePath: f.FilePath, fileSize: info.Size()},
			bodySegment{literal: []byte("\r\n")},
		)
	}
	p.segments = append(p.segments, bodySegment{literal: []byte("--" + boundary + "--\r\n")})
	for _, s := range p.segments {
		if s.filePath != "" {
			p.length += s.fileSize
		} else {
			p.length += int64(len(s.literal))
		}
	}
	return p, nil
}

// open returns a reader over the body bytes. Files are opened lazily
// as the reader reaches them and limited to the size captured at build
// time, keeping the streamed length byte-exact.
func (p *payload) open() io.ReadCloser {
	return &payloadReader{p: p}
}

type payloadReader struct {
	p    *payload
	idx  int
	cur  io.Reader
	file afero.File
}

func (r *payloadReader) Read(b []byte) (int, error) {
	for {
		if r.cur == nil {
			if r.idx >= len(r.p.segments) {
				return 0, io.EOF
			}
			seg := r.p.segments[r.idx]
			r.idx++
			if seg.filePath == "" {
				r.cur = bytes.NewReader(seg.literal)
				continue
			}
			f, err := r.p.fs.Open(seg.filePath)
			if err != nil {
				return 0, err
			}
			r.file = f
			r.cur = io.LimitReader(f, seg.fileSize)
			continue
		}
		n, err := r.cur.Read(b)
		if err == io.EOF {
			r.cur = nil
			if r.file != nil {
				r.file.Close()
				r.file = nil
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *payloadReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
