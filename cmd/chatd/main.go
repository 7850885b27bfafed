// ABOUTME: Entry point for the chatd chat backend server
// ABOUTME: Loads config, wires the store/auth/chat services, and runs the protocol engine

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/fatih/color"

	"github.com/awesomechat/chatd/internal/api"
	"github.com/awesomechat/chatd/internal/auth"
	"github.com/awesomechat/chatd/internal/chat"
	"github.com/awesomechat/chatd/internal/config"
	"github.com/awesomechat/chatd/internal/httpd"
	"github.com/awesomechat/chatd/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                   _           _
  __ ___      _____  ___  ___  _ __ ___   ___  ___| |__   __ _| |_
 / _' \ \ /\ / / _ \/ __|/ _ \| '_ ' _ \ / _ \/ __| '_ \ / _' | __|
| (_| |\ V  V /  __/\__ \ (_) | | | | | |  __/ (__| | | | (_| | |_
 \__,_| \_/\_/ \___||___/\___/|_| |_| |_|\___|\___|_| |_|\__,_|\__|
`

// getConfigPath returns the path to the chatd config file.
// Priority: CHATD_CONFIG env var > ./chatd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHATD_CONFIG"); envPath != "" {
		return envPath
	}
	return "chatd.yaml"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chatd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the chat server")
		fmt.Println("  health   Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to built-in defaults when no
// file exists at the resolved path.
func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.URL)
	fmt.Println()

	logger.Info("starting chatd",
		"config", configPath,
		"addr", cfg.Server.Addr,
		"database", cfg.Database.URL,
	)

	db := store.NewConnector(cfg.Database.URL, cfg.Database.ConnectAttempts, cfg.Database.ConnectBackoff)
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	sessions := auth.NewService(db)
	messages := chat.NewService(db, cfg.Chat.HourlyMessageCap, clock.New())
	handler := api.NewHandler(sessions, messages, cfg.Request.Timeout)

	return httpd.New(cfg.Server.Addr, handler).Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %s %s", resp.Status, body)
	}

	color.Green("✓ server healthy: %s", body)
	return nil
}
