// ABOUTME: Integration tests for the connection engine over real TCP
// ABOUTME: Covers keep-alive request sequences, pipelining with slow handlers, and close handling

package httpd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHandler responds based on the request target.
type stubHandler struct{}

func (stubHandler) Handle(_ context.Context, req *Request, body []byte) *Response {
	switch {
	case req.Target == "/slow":
		time.Sleep(150 * time.Millisecond)
		return &Response{Status: 200, Body: []byte(`{"which":"slow"}`)}
	case req.Target == "/echo":
		return &Response{Status: 200, Body: body}
	case req.Target == "/token":
		return &Response{Status: 200, Body: []byte(`{}`), AuthToken: "issued-token"}
	default:
		return &Response{Status: 200, Body: []byte(`{"which":"fast"}`)}
	}
}

func startServer(t *testing.T) (addr string, cancel context.CancelFunc) {
	t.Helper()
	srv := New("127.0.0.1:0", stubHandler{})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr().String(), cancel
}

// readResponse reads one Content-Length framed response.
func readResponse(t *testing.T, r *bufio.Reader) (status int, headers map[string]string, body string) {
	t.Helper()

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), " ", 3)
	require.GreaterOrEqual(t, len(parts), 2)
	status, err = strconv.Atoi(parts[1])
	require.NoError(t, err)

	headers = make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		require.True(t, ok)
		headers[strings.ToLower(name)] = strings.TrimSpace(value)
	}

	n, err := strconv.Atoi(headers["content-length"])
	require.NoError(t, err)
	buf := make([]byte, n)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	return status, headers, string(buf)
}

func TestServer_KeepAliveSequence(t *testing.T) {
	addr, _ := startServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	// Two requests on the same connection, one after the other.
	fmt.Fprint(conn, "GET /fast HTTP/1.1\r\nHost: x\r\n\r\n")
	status, _, body := readResponse(t, r)
	assert.Equal(t, 200, status)
	assert.Equal(t, `{"which":"fast"}`, body)

	fmt.Fprint(conn, "POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	status, _, body = readResponse(t, r)
	assert.Equal(t, 200, status)
	assert.Equal(t, "hello", body)
}

func TestServer_AuthTokenHeader(t *testing.T) {
	addr, _ := startServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprint(conn, "POST /token HTTP/1.1\r\n\r\n")
	_, headers, _ := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, "issued-token", headers["authorization"])
}

func TestServer_PipelinedResponsesStayWhole(t *testing.T) {
	// A slow handler must not block the connection from accepting the next
	// request, and both responses must arrive as complete, uncorrupted frames.
	addr, _ := startServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	fmt.Fprint(conn, "GET /slow HTTP/1.1\r\n\r\nGET /fast HTTP/1.1\r\n\r\n")

	bodies := make(map[string]bool)
	for i := 0; i < 2; i++ {
		status, _, body := readResponse(t, r)
		assert.Equal(t, 200, status)
		bodies[body] = true
	}
	assert.True(t, bodies[`{"which":"slow"}`])
	assert.True(t, bodies[`{"which":"fast"}`])
}

func TestServer_ConnectionClose(t *testing.T) {
	addr, _ := startServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	fmt.Fprint(conn, "GET /fast HTTP/1.1\r\nConnection: close\r\n\r\n")
	status, headers, _ := readResponse(t, r)
	assert.Equal(t, 200, status)
	assert.Equal(t, "close", headers["connection"])

	// The server closes the transport after the response.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServer_MalformedRequestGets400(t *testing.T) {
	addr, _ := startServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprint(conn, "COMPLETE GARBAGE\r\n\r\n")
	status, _, _ := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, 400, status)
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	addr, cancel := startServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	cancel()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)
}
