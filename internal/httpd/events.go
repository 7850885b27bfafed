// ABOUTME: Framing events produced by the incremental HTTP/1.1 parser
// ABOUTME: A connection's byte stream becomes Request, Data, EndOfMessage, ConnectionClosed events

package httpd

import "strings"

// Event is a structural unit of the HTTP/1.1 byte stream. The parser emits
// events in order: Request, zero or more Data, EndOfMessage, then either the
// next Request or ConnectionClosed.
type Event interface {
	event()
}

// Header is one request header field.
type Header struct {
	Name  string
	Value string
}

// Headers is the ordered header block of a request.
type Headers []Header

// Get returns the first value for the given field name, matched
// case-insensitively, or "" when absent.
func (h Headers) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Request carries the request line and header block of one message.
type Request struct {
	// ID correlates log lines for one request's handling task.
	ID      string
	Method  string
	Target  string
	Proto   string
	Headers Headers
}

// KeepAlive reports whether the connection may carry another request after
// this one's response. HTTP/1.1 defaults to keep-alive, HTTP/1.0 to close.
func (r *Request) KeepAlive() bool {
	conn := r.Headers.Get("Connection")
	if strings.EqualFold(conn, "close") {
		return false
	}
	if r.Proto == "HTTP/1.0" {
		return strings.EqualFold(conn, "keep-alive")
	}
	return true
}

// Data carries one chunk of request body bytes. The chunk is only valid until
// the next call into the parser; consumers must copy what they keep.
type Data struct {
	Chunk []byte
}

// EndOfMessage marks the completion of one request, body included.
type EndOfMessage struct{}

// ConnectionClosed marks a clean end of the inbound byte stream.
type ConnectionClosed struct{}

func (*Request) event()          {}
func (*Data) event()             {}
func (*EndOfMessage) event()     {}
func (*ConnectionClosed) event() {}
