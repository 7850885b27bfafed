// ABOUTME: Per-connection session: read loop, event dispatch, serialized response writer
// ABOUTME: Each completed request is handled by its own goroutine while the connection keeps reading

package httpd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// readBufSize is the transport read granularity.
const readBufSize = 4096

type writeJob struct {
	resp  *Response
	close bool
}

// conn owns one accepted connection. Its state -- parser, in-progress request,
// body buffer -- is touched only by the read loop goroutine; responses funnel
// through writeCh to a single writer goroutine, so the three frames of one
// response are never interleaved with another's.
type conn struct {
	rwc     net.Conn
	handler Handler
	logger  *slog.Logger

	parser *Parser
	cur    *Request
	body   bytes.Buffer

	writeCh  chan writeJob
	handlers sync.WaitGroup
}

func newConn(rwc net.Conn, handler Handler, logger *slog.Logger) *conn {
	return &conn{
		rwc:     rwc,
		handler: handler,
		logger:  logger.With("remote", rwc.RemoteAddr().String()),
		parser:  NewParser(),
		writeCh: make(chan writeJob, 8),
	}
}

// serve runs the connection to completion: read bytes, pull framing events,
// spawn a handling task per completed request, then drain in-flight work.
func (c *conn) serve(ctx context.Context) {
	c.logger.Debug("connection opened")

	writerDone := make(chan struct{})
	go c.writeLoop(writerDone)

	c.readLoop(ctx)

	// The read side is done; let in-flight handlers finish and flush their
	// responses before tearing the transport down.
	c.handlers.Wait()
	close(c.writeCh)
	<-writerDone
	c.rwc.Close()
	c.logger.Debug("connection closed")
}

func (c *conn) readLoop(ctx context.Context) {
	buf := make([]byte, readBufSize)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			c.parser.Feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.parser.FeedEOF()
				c.drainEvents(ctx)
			}
			return
		}
		if !c.drainEvents(ctx) {
			return
		}
	}
}

// drainEvents pulls parser events until more data is needed. Returns false
// when the connection must stop reading.
func (c *conn) drainEvents(ctx context.Context) bool {
	for {
		ev, err := c.parser.Next()
		if err != nil {
			c.logger.Warn("protocol error", "error", err)
			c.writeCh <- writeJob{
				resp:  &Response{Status: http.StatusBadRequest, Body: []byte(`{"error":"Bad Request"}`)},
				close: true,
			}
			return false
		}
		if ev == nil {
			return true
		}

		switch ev := ev.(type) {
		case *Request:
			c.cur = ev
			c.cur.ID = uuid.NewString()
			c.body.Reset()

		case *Data:
			c.body.Write(ev.Chunk)

		case *EndOfMessage:
			req := c.cur
			c.cur = nil
			if req == nil {
				continue
			}
			// The body buffer is reused for the next message on this
			// connection; the handling task gets its own copy.
			body := append([]byte(nil), c.body.Bytes()...)
			keepAlive := req.KeepAlive()

			c.logger.Debug("request complete",
				"request_id", req.ID, "method", req.Method, "target", req.Target)

			c.handlers.Add(1)
			go func() {
				defer c.handlers.Done()
				resp := c.handler.Handle(ctx, req, body)
				c.writeCh <- writeJob{resp: resp, close: !keepAlive}
			}()

		case *ConnectionClosed:
			return false
		}
	}
}

// writeLoop is the single writer for the connection. A job with close set
// shuts the transport down after its response is flushed; later jobs are
// drained so their handlers never block.
func (c *conn) writeLoop(done chan<- struct{}) {
	defer close(done)

	w := bufio.NewWriter(c.rwc)
	closed := false
	for job := range c.writeCh {
		if closed {
			continue
		}
		if err := writeResponse(w, job.resp, job.close); err != nil {
			c.logger.Debug("response write failed", "error", err)
			closed = true
			continue
		}
		if job.close {
			c.rwc.Close()
			closed = true
		}
	}
}
