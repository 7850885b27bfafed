// ABOUTME: Request router and error mapper for the chat API
// ABOUTME: Resolves (method, path) to a handler, enforces the per-request timeout, renders JSON

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/awesomechat/chatd/internal/auth"
	"github.com/awesomechat/chatd/internal/chat"
	"github.com/awesomechat/chatd/internal/httpd"
)

// Sessions is the identity/token capability the router depends on.
type Sessions interface {
	CreateUserAndToken(ctx context.Context, username string) (string, error)
	ResolveToken(ctx context.Context, token string) (int64, error)
}

// Messages is the message store capability the router depends on.
type Messages interface {
	Send(ctx context.Context, userID int64, text string) (int64, error)
	SendPrivate(ctx context.Context, userID, recipientID int64, text string) (int64, error)
	RecentMessages(ctx context.Context) ([]chat.Entry, error)
	PrivateMessages(ctx context.Context, userID, recipientID int64) ([]chat.Entry, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// Handler routes completed requests to the session manager and message store.
type Handler struct {
	sessions Sessions
	messages Messages
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHandler creates the API handler. timeout bounds each request's handling.
func NewHandler(sessions Sessions, messages Messages, timeout time.Duration) *Handler {
	return &Handler{
		sessions: sessions,
		messages: messages,
		timeout:  timeout,
		logger:   slog.Default().With("component", "api"),
	}
}

// Handle dispatches one request under the configured timeout. On expiry the
// in-flight handler is abandoned: its context is cancelled, but side effects
// it already issued are not compensated.
func (h *Handler) Handle(ctx context.Context, req *httpd.Request, body []byte) *httpd.Response {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	type result struct {
		payload any
		token   string
		err     error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("handler panic", "request_id", req.ID, "panic", fmt.Sprint(r))
				done <- result{err: ErrInternal}
			}
		}()
		payload, token, err := h.dispatch(ctx, req, body)
		done <- result{payload: payload, token: token, err: err}
	}()

	var resp *httpd.Response
	select {
	case res := <-done:
		resp = h.render(req, res.payload, res.token, res.err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			resp = h.render(req, nil, "", ErrTimeout)
		} else {
			resp = h.render(req, nil, "", ErrInternal)
		}
	}

	h.logger.Info("request handled",
		"request_id", req.ID, "method", req.Method, "target", req.Target,
		"status", resp.Status, "duration", time.Since(start))
	return resp
}

// dispatch resolves the route and runs it, returning the success payload, an
// optional response token, or an error for the mapper.
func (h *Handler) dispatch(ctx context.Context, req *httpd.Request, body []byte) (any, string, error) {
	target, err := url.Parse(req.Target)
	if err != nil {
		return nil, "", ErrInvalidParams
	}

	switch req.Method + " " + target.Path {
	case "GET /health":
		return map[string]string{"status": "OK"}, "", nil
	case "POST /connect":
		return h.handleConnect(ctx)
	case "GET /status":
		payload, err := h.handleStatus(ctx, req, target.Query())
		return payload, "", err
	case "POST /send":
		payload, err := h.handleSend(ctx, req, body, false)
		return payload, "", err
	case "POST /send-private":
		payload, err := h.handleSend(ctx, req, body, true)
		return payload, "", err
	default:
		return nil, "", ErrNotFound
	}
}

func (h *Handler) handleConnect(ctx context.Context) (any, string, error) {
	token, err := h.sessions.CreateUserAndToken(ctx, "")
	if err != nil || token == "" {
		return nil, "", ErrInternal
	}

	userID, err := h.sessions.ResolveToken(ctx, token)
	if err != nil {
		return nil, "", ErrUnauthorized
	}

	return map[string]any{"status": "success", "user_id": userID}, token, nil
}

func (h *Handler) handleStatus(ctx context.Context, req *httpd.Request, query url.Values) (any, error) {
	userID, err := h.resolveBearer(ctx, req)
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	chatType := query.Get("chat_type")
	recipientRaw := query.Get("recipient_id")

	switch {
	case chatType == "common":
		entries, err := h.messages.RecentMessages(ctx)
		if err != nil {
			return nil, ErrDatabase
		}
		return map[string]any{"messages": entries}, nil

	case chatType == "private" && recipientRaw != "":
		recipientID, err := strconv.ParseInt(recipientRaw, 10, 64)
		if err != nil {
			return nil, ErrInvalidParams
		}
		exists, err := h.messages.UserExists(ctx, recipientID)
		if err != nil {
			return nil, ErrDatabase
		}
		if !exists {
			return nil, ErrUserNotFound
		}
		entries, err := h.messages.PrivateMessages(ctx, userID, recipientID)
		if err != nil {
			return nil, ErrDatabase
		}
		return map[string]any{"messages": entries}, nil

	default:
		return nil, ErrInvalidParams
	}
}

func (h *Handler) handleSend(ctx context.Context, req *httpd.Request, body []byte, private bool) (any, error) {
	userID, err := h.resolveBearer(ctx, req)
	if err != nil {
		// A send without a resolvable identity is reported as an unknown
		// user rather than a generic auth failure.
		if errors.Is(err, auth.ErrTokenNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	var payload struct {
		Text        *string `json:"text"`
		RecipientID any     `json:"recipient_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrInvalidJSON
	}
	if payload.Text == nil {
		return nil, ErrMissingData
	}

	if private {
		recipientID, ok := coerceID(payload.RecipientID)
		if !ok {
			return nil, ErrMissingData
		}
		_, err = h.messages.SendPrivate(ctx, userID, recipientID, *payload.Text)
	} else {
		_, err = h.messages.Send(ctx, userID, *payload.Text)
	}

	switch {
	case errors.Is(err, chat.ErrQuotaExceeded):
		return nil, ErrQuotaExceeded
	case errors.Is(err, chat.ErrUserNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, ErrDatabase
	}

	return map[string]string{"message": "Message received."}, nil
}

// resolveBearer extracts the Authorization header (an opaque token with no
// scheme prefix) and resolves it to an identity. A missing token behaves like
// an unresolvable one; storage failures map to the database error.
func (h *Handler) resolveBearer(ctx context.Context, req *httpd.Request) (int64, error) {
	token := req.Headers.Get("Authorization")
	if token == "" {
		return 0, auth.ErrTokenNotFound
	}
	userID, err := h.sessions.ResolveToken(ctx, token)
	if errors.Is(err, auth.ErrTokenNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, ErrDatabase
	}
	return userID, nil
}

// coerceID accepts the JSON encodings a client may use for a recipient id
// (number or numeric string) and coerces to int64.
func coerceID(v any) (int64, bool) {
	switch v := v.(type) {
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	default:
		return 0, false
	}
}

// render turns a dispatch outcome into the wire response.
func (h *Handler) render(req *httpd.Request, payload any, token string, err error) *httpd.Response {
	if err != nil {
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			h.logger.Error("unclassified handler error", "request_id", req.ID, "error", err)
			apiErr = ErrInternal
		}
		body, _ := json.Marshal(map[string]string{"error": apiErr.Message})
		return &httpd.Response{Status: apiErr.Status, Body: body}
	}

	body, merr := json.Marshal(payload)
	if merr != nil {
		h.logger.Error("response marshal failed", "request_id", req.ID, "error", merr)
		body, _ = json.Marshal(map[string]string{"error": ErrInternal.Message})
		return &httpd.Response{Status: ErrInternal.Status, Body: body}
	}
	return &httpd.Response{Status: 200, Body: body, AuthToken: token}
}
