// ABOUTME: Reference command-line client for the chatd backend
// ABOUTME: Used for manual and integration testing against a running server

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
)

func usage() {
	fmt.Println("Usage: chat-cli <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  connect                          Create an identity and store its token")
	fmt.Println("  send <text>                      Send a public message")
	fmt.Println("  send-private <recipient> <text>  Send a private message")
	fmt.Println("  history                          Show the public feed")
	fmt.Println("  history-private <recipient>      Show a private conversation")
	fmt.Println("  health                           Check server health")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	c := &client{cfg: cfg}

	switch os.Args[1] {
	case "connect":
		err = c.connect(ctx)
	case "send":
		if len(os.Args) < 3 {
			usage()
		}
		err = c.send(ctx, os.Args[2], 0)
	case "send-private":
		if len(os.Args) < 4 {
			usage()
		}
		var recipient int64
		recipient, err = strconv.ParseInt(os.Args[2], 10, 64)
		if err == nil {
			err = c.send(ctx, os.Args[3], recipient)
		}
	case "history":
		err = c.history(ctx, 0)
	case "history-private":
		if len(os.Args) < 3 {
			usage()
		}
		var recipient int64
		recipient, err = strconv.ParseInt(os.Args[2], 10, 64)
		if err == nil {
			err = c.history(ctx, recipient)
		}
	case "health":
		err = c.health(ctx)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	cfg *Config
}

// do issues a request with the stored token attached as the plain
// Authorization header value.
func (c *client) do(ctx context.Context, method, path string, body []byte, withToken bool) (int, []byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.ServerURL+path, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withToken {
		token, err := c.loadToken()
		if err != nil {
			return 0, nil, nil, fmt.Errorf("no stored token, run connect first: %w", err)
		}
		req.Header.Set("Authorization", token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, respBody, resp.Header, nil
}

func (c *client) connect(ctx context.Context) error {
	status, body, headers, err := c.do(ctx, http.MethodPost, "/connect", nil, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("connect failed: %d %s", status, body)
	}

	token := headers.Get("Authorization")
	if token == "" {
		return fmt.Errorf("no Authorization token in response")
	}
	if err := c.saveToken(token); err != nil {
		return err
	}

	var payload struct {
		UserID int64 `json:"user_id"`
	}
	json.Unmarshal(body, &payload)
	color.Green("✓ connected as user %d, token stored in %s", payload.UserID, c.cfg.TokenFile)
	return nil
}

func (c *client) send(ctx context.Context, text string, recipient int64) error {
	path := "/send"
	payload := map[string]any{"text": text}
	if recipient != 0 {
		path = "/send-private"
		payload["recipient_id"] = recipient
	}
	body, _ := json.Marshal(payload)

	status, respBody, _, err := c.do(ctx, http.MethodPost, path, body, true)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("send failed: %d %s", status, respBody)
	}
	color.Green("✓ %s", respBody)
	return nil
}

func (c *client) history(ctx context.Context, recipient int64) error {
	q := url.Values{"chat_type": {"common"}}
	if recipient != 0 {
		q = url.Values{"chat_type": {"private"}, "recipient_id": {strconv.FormatInt(recipient, 10)}}
	}

	status, body, _, err := c.do(ctx, http.MethodGet, "/status?"+q.Encode(), nil, true)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("status failed: %d %s", status, body)
	}

	var payload struct {
		Messages []struct {
			UserID int64  `json:"user_id"`
			Text   string `json:"text"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(payload.Messages) == 0 {
		color.Yellow("(no messages)")
		return nil
	}
	for _, m := range payload.Messages {
		color.New(color.FgCyan).Printf("user %d: ", m.UserID)
		fmt.Println(m.Text)
	}
	return nil
}

func (c *client) health(ctx context.Context) error {
	status, body, _, err := c.do(ctx, http.MethodGet, "/health", nil, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: %d %s", status, body)
	}
	color.Green("✓ %s", body)
	return nil
}

func (c *client) loadToken() (string, error) {
	data, err := os.ReadFile(c.cfg.TokenFile)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(data)), nil
}

func (c *client) saveToken(token string) error {
	return os.WriteFile(c.cfg.TokenFile, []byte(token), 0600)
}
