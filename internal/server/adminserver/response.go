package adminserver

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
)

const (
	contentTypeJSON = "application/json"
)

// Response is a complete response. Every response carries Content-Length
// and asks the peer to close the connection.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

func newResponse(status int) *Response {
	return &Response{Status: status}
}

func textResponse(status int, body string) *Response {
	return &Response{Status: status, Body: []byte(body)}
}

// Encode writes the response in HTTP/1.1 framing. A non-empty requestID is
// echoed in X-Request-ID.
func (r *Response) Encode(w io.Writer, requestID string) error {
	bw := bufio.NewWriterSize(w, 512+len(r.Body))

	bw.WriteString("HTTP/1.1 ")
	bw.WriteString(strconv.Itoa(r.Status))
	bw.WriteByte(' ')
	bw.WriteString(http.StatusText(r.Status))
	bw.WriteString("\r\n")

	if r.ContentType != "" {
		bw.WriteString("Content-Type: ")
		bw.WriteString(r.ContentType)
		bw.WriteString("\r\n")
	}
	bw.WriteString("Content-Length: ")
	bw.WriteString(strconv.Itoa(len(r.Body)))
	bw.WriteString("\r\n")
	if requestID != "" {
		bw.WriteString("X-Request-ID: ")
		bw.WriteString(requestID)
		bw.WriteString("\r\n")
	}
	bw.WriteString("Connection: close\r\n\r\n")
	bw.Write(r.Body)

	return bw.Flush()
}
