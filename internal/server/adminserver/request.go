package adminserver

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
)

const (
	// DefaultMaxRequestBytes bounds the bytes buffered for one request.
	DefaultMaxRequestBytes = 64 * 1024

	readChunk = 4096

	bearerPrefix = "Authorization: Bearer "
)

var headerTerminator = []byte("\r\n\r\n")

// Request is a parsed request. It is owned by the goroutine serving the
// connection and discarded once the response is written.
type Request struct {
	Method string
	Path   string
	// Head holds the request line and headers, including the CRLF ending
	// the last header line.
	Head []byte
	// Body holds whatever was buffered after the blank line. Content-Length
	// is not honoured.
	Body []byte
	// ClientIP is the host part of the peer address.
	ClientIP string
}

// ReadRequest buffers r until the end of the headers or until the peer
// stops sending, then parses the result.
//
// Errors:
//   - domain.ErrRequestTooLarge when more than limit bytes arrive first
//   - domain.ErrMalformedRequest when the request line has fewer than two fields
//   - the read error when nothing at all could be read
func ReadRequest(r io.Reader, limit int) (*Request, error) {
	if limit <= 0 {
		limit = DefaultMaxRequestBytes
	}

	var (
		buf   []byte
		chunk = make([]byte, readChunk)
	)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			// Only the tail can complete a terminator split across reads.
			from := max(len(buf)-len(headerTerminator)+1, 0)
			buf = append(buf, chunk[:n]...)

			if len(buf) > limit {
				return nil, domain.ErrRequestTooLarge
			}
			if bytes.Contains(buf[from:], headerTerminator) {
				break
			}
		}
		if err != nil {
			if len(buf) == 0 && !errors.Is(err, io.EOF) {
				return nil, err
			}
			break
		}
	}

	return ParseRequest(buf)
}

// ParseRequest parses a buffered request. Method and path are the first two
// whitespace-separated fields of the first line; the HTTP version is ignored.
func ParseRequest(buf []byte) (*Request, error) {
	line := buf
	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		line = buf[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return nil, domain.ErrMalformedRequest
	}

	req := &Request{
		Method: fields[0],
		Path:   fields[1],
		Head:   buf,
	}
	if i := bytes.Index(buf, headerTerminator); i >= 0 {
		req.Head = buf[:i+2]
		req.Body = buf[i+len(headerTerminator):]
	}
	return req, nil
}

// BearerToken extracts the token of a literal "Authorization: Bearer "
// header. The match is case-sensitive and the token runs to the next CRLF.
// It reports false when the header is absent, unterminated or empty.
func (r *Request) BearerToken() (string, bool) {
	i := bytes.Index(r.Head, []byte(bearerPrefix))
	if i < 0 {
		return "", false
	}
	rest := r.Head[i+len(bearerPrefix):]
	end := bytes.Index(rest, []byte("\r\n"))
	if end <= 0 {
		return "", false
	}
	return string(rest[:end]), true
}
