// ABOUTME: Incremental HTTP/1.1 request parser
// ABOUTME: Feed appends raw bytes; Next drains framing events until more data is needed

package httpd

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrProtocol is returned by Next when the byte stream is not a well-formed
// HTTP/1.1 request sequence. The connection cannot be recovered after it.
var ErrProtocol = errors.New("malformed HTTP request")

// maxHeaderBytes bounds the request line plus header block.
const maxHeaderBytes = 64 << 10

const (
	stateHead = iota
	stateBody
)

// Parser converts a connection's inbound byte stream into framing events.
// It is incremental: bytes arrive via Feed in arbitrary fragments, and Next
// returns (nil, nil) whenever the buffered bytes do not complete the next
// event. One Parser serves one connection and is not safe for concurrent use.
type Parser struct {
	buf       []byte
	state     int
	remaining int // body bytes still expected in stateBody
	eof       bool
	closeSent bool
}

// NewParser returns a parser ready for the first request.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends raw bytes from the transport.
func (p *Parser) Feed(data []byte) {
	p.buf = append(p.buf, data...)
}

// FeedEOF marks the end of the inbound stream.
func (p *Parser) FeedEOF() {
	p.eof = true
}

// Next returns the next framing event, (nil, nil) when more data is needed,
// or ErrProtocol when the stream is unrecoverable.
func (p *Parser) Next() (Event, error) {
	switch p.state {
	case stateHead:
		return p.nextHead()
	case stateBody:
		return p.nextBody()
	}
	return nil, fmt.Errorf("%w: bad parser state", ErrProtocol)
}

func (p *Parser) nextHead() (Event, error) {
	end := bytes.Index(p.buf, []byte("\r\n\r\n"))
	if end < 0 {
		if len(p.buf) > maxHeaderBytes {
			return nil, fmt.Errorf("%w: header block too large", ErrProtocol)
		}
		if p.eof {
			if len(p.buf) == 0 {
				if p.closeSent {
					return nil, nil
				}
				p.closeSent = true
				return &ConnectionClosed{}, nil
			}
			return nil, fmt.Errorf("%w: truncated request head", ErrProtocol)
		}
		return nil, nil
	}

	head := p.buf[:end]
	p.buf = p.buf[end+4:]

	req, bodyLen, err := parseHead(head)
	if err != nil {
		return nil, err
	}

	p.state = stateBody
	p.remaining = bodyLen
	return req, nil
}

func (p *Parser) nextBody() (Event, error) {
	if p.remaining == 0 {
		p.state = stateHead
		return &EndOfMessage{}, nil
	}
	if len(p.buf) == 0 {
		if p.eof {
			return nil, fmt.Errorf("%w: truncated request body", ErrProtocol)
		}
		return nil, nil
	}

	n := p.remaining
	if n > len(p.buf) {
		n = len(p.buf)
	}
	chunk := p.buf[:n]
	p.buf = p.buf[n:]
	p.remaining -= n
	return &Data{Chunk: chunk}, nil
}

// parseHead parses the request line and header block and returns the request
// together with the expected body length.
func parseHead(head []byte) (*Request, int, error) {
	lines := strings.Split(string(head), "\r\n")

	method, target, proto, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, 0, err
	}

	headers := make(Headers, 0, len(lines)-1)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || name != strings.TrimSpace(name) {
			return nil, 0, fmt.Errorf("%w: bad header line %q", ErrProtocol, line)
		}
		headers = append(headers, Header{Name: name, Value: strings.TrimSpace(value)})
	}

	req := &Request{Method: method, Target: target, Proto: proto, Headers: headers}

	// Chunked transfer and other encodings are out of scope; only
	// Content-Length framing is supported.
	if headers.Get("Transfer-Encoding") != "" {
		return nil, 0, fmt.Errorf("%w: transfer-encoding not supported", ErrProtocol)
	}

	bodyLen := 0
	if cl := headers.Get("Content-Length"); cl != "" {
		bodyLen, err = strconv.Atoi(cl)
		if err != nil || bodyLen < 0 {
			return nil, 0, fmt.Errorf("%w: bad content-length %q", ErrProtocol, cl)
		}
	}

	return req, bodyLen, nil
}

func parseRequestLine(line string) (method, target, proto string, err error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: bad request line %q", ErrProtocol, line)
	}
	method, target, proto = parts[0], parts[1], parts[2]
	if method == "" || target == "" {
		return "", "", "", fmt.Errorf("%w: bad request line %q", ErrProtocol, line)
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return "", "", "", fmt.Errorf("%w: unsupported protocol %q", ErrProtocol, proto)
	}
	return method, target, proto, nil
}
