// Package httpd is the hand-rolled HTTP/1.1 engine the chat backend runs on.
//
// # Why not net/http
//
// The engine is built directly on the byte-stream transport: it owns the
// incremental request parsing, the per-connection request lifecycle, and the
// response framing. Only Content-Length framed requests are supported;
// chunked transfer, compression, and TLS are out of scope.
//
// # Event Model
//
// The Parser converts inbound bytes into framing events:
//
//   - *Request: request line and header block parsed
//   - *Data: a chunk of body bytes
//   - *EndOfMessage: the request is complete
//   - *ConnectionClosed: the inbound stream ended cleanly
//
// The connection session feeds transport reads into the parser and pulls
// events until the parser needs more data, mirroring the feed/next-event
// loop of incremental HTTP libraries.
//
// # Concurrency
//
// Each connection is served by exactly two long-lived goroutines: the read
// loop, which owns all parser and buffer state, and the writer, which owns
// the outbound stream. Every completed request is handled fire-and-forget on
// its own goroutine; the connection keeps accepting bytes while handlers run.
// Responses funnel through the writer's queue, so the three frames of one
// response (status+headers, body, end-of-message) are written back-to-back
// and never interleave with another response's frames. Pipelined responses
// may complete out of request order.
package httpd
