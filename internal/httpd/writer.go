// ABOUTME: Response framing for the hand-rolled HTTP/1.1 engine
// ABOUTME: A response is three ordered frames: status+headers, body bytes, end-of-message

package httpd

import (
	"bufio"
	"fmt"
	"net/http"
)

// Response is what a handler produces for one request.
type Response struct {
	Status int
	Body   []byte

	// AuthToken, when set, is attached as a plain Authorization response
	// header. Used by /connect to hand the issued token to the client.
	AuthToken string
}

// encodeHead renders the status line and header block, the first of the three
// response frames. Content-Length framing only; the end-of-message frame is
// the flush that follows the body.
func encodeHead(resp *Response, close bool) []byte {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	head := fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	head += "Content-Type: application/json\r\n"
	head += fmt.Sprintf("Content-Length: %d\r\n", len(resp.Body))
	if resp.AuthToken != "" {
		head += fmt.Sprintf("Authorization: %s\r\n", resp.AuthToken)
	}
	if close {
		head += "Connection: close\r\n"
	}
	return []byte(head + "\r\n")
}

// writeResponse emits the three frames of one response back-to-back. The
// caller serializes invocations per connection, so frames of concurrent
// responses never interleave.
func writeResponse(w *bufio.Writer, resp *Response, close bool) error {
	if _, err := w.Write(encodeHead(resp, close)); err != nil {
		return err
	}
	if _, err := w.Write(resp.Body); err != nil {
		return err
	}
	return w.Flush()
}
