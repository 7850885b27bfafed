// ABOUTME: TCP accept loop for the hand-rolled HTTP/1.1 chat server
// ABOUTME: One connection session goroutine per accepted connection, closed on context cancellation

package httpd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
)

// Handler turns one completed request into a response. Implementations must
// be safe for concurrent use; the engine invokes Handle from one goroutine
// per in-flight request.
type Handler interface {
	Handle(ctx context.Context, req *Request, body []byte) *Response
}

// Server accepts connections and runs a session per connection.
type Server struct {
	addr    string
	handler Handler
	logger  *slog.Logger

	ln net.Listener

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// New creates a server listening on addr once Run is called.
func New(addr string, handler Handler) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  slog.Default().With("component", "httpd"),
		conns:   make(map[*conn]struct{}),
	}
}

// Listen binds the server's address. Run calls it when not already bound;
// tests bind first to learn the ephemeral port via Addr.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address. Only valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run listens and serves until ctx is cancelled, then closes the listener and
// every open connection and waits for their sessions to finish.
func (s *Server) Run(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	ln := s.ln

	go func() {
		<-ctx.Done()
		ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.rwc.Close()
		}
		s.mu.Unlock()
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())

	var sessions sync.WaitGroup
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		c := newConn(nc, s.handler, s.logger)
		s.track(c)

		sessions.Add(1)
		go func() {
			defer sessions.Done()
			defer s.untrack(c)
			c.serve(ctx)
		}()
	}

	sessions.Wait()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
