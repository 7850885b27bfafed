// ABOUTME: Single-connection SQLite connector with bounded connect retries
// ABOUTME: Exposes the Execute/Fetch/FetchOne/FetchVal primitives the chat backend builds on

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by FetchOne and FetchVal when the query matches no row
var ErrNotFound = errors.New("not found")

// Connector owns one logical connection to the backing store. Connection
// establishment is retried a bounded number of times with a fixed delay; once
// the connection is lost it is re-established lazily on the next call. All
// statement execution is serialized through an internal mutex, so the single
// connection is safe to share between concurrent request handlers.
type Connector struct {
	url      string
	attempts int
	backoff  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	db   *sql.DB
	conn *sql.Conn
}

// NewConnector creates a connector for the given SQLite DSN. No connection is
// established until the first call; use Connect to fail fast at startup.
func NewConnector(url string, attempts int, backoff time.Duration) *Connector {
	return &Connector{
		url:      url,
		attempts: attempts,
		backoff:  backoff,
		logger:   slog.Default().With("component", "store"),
	}
}

// Connect establishes the underlying connection, retrying up to the configured
// attempt count with a fixed delay between attempts. Exhausting the attempts
// returns the last connection error.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// connectLocked must be called with c.mu held.
func (c *Connector) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	if c.db == nil {
		db, err := sql.Open("sqlite", c.url)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		// One live connection at a time; the mutex serializes its use.
		db.SetMaxOpenConns(1)
		c.db = db
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		conn, err := c.db.Conn(ctx)
		if err == nil {
			if err := c.prepareConn(ctx, conn); err != nil {
				conn.Close()
				return err
			}
			c.conn = conn
			c.logger.Info("database connection established", "url", c.url, "attempt", attempt)
			return nil
		}

		lastErr = err
		c.logger.Error("database connection attempt failed", "attempt", attempt, "error", err)

		if attempt < c.attempts {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("connecting to database after %d attempts: %w", c.attempts, lastErr)
}

// prepareConn applies connection pragmas and bootstraps the schema.
func (c *Connector) prepareConn(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close releases the connection and the underlying database handle.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// Execute runs a statement that returns no rows.
func (c *Connector) Execute(ctx context.Context, query string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	if _, err := c.conn.ExecContext(ctx, query, args...); err != nil {
		c.noteFailure("execute", query, err)
		return err
	}
	return nil
}

// Fetch runs a query and invokes scan once per result row. The rows handle is
// closed before Fetch returns, so scan must copy anything it keeps.
func (c *Connector) Fetch(ctx context.Context, query string, scan func(*sql.Rows) error, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		c.noteFailure("fetch", query, err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		c.noteFailure("fetch", query, err)
		return err
	}
	return nil
}

// FetchOne runs a query expected to return at most one row and scans it into
// dests. Returns ErrNotFound when the query matches no row.
func (c *Connector) FetchOne(ctx context.Context, dests []any, query string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	err := c.conn.QueryRowContext(ctx, query, args...).Scan(dests...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		c.noteFailure("fetch one", query, err)
		return err
	}
	return nil
}

// FetchVal runs a query expected to return a single scalar and scans it into
// dest. Returns ErrNotFound when the query matches no row.
func (c *Connector) FetchVal(ctx context.Context, dest any, query string, args ...any) error {
	return c.FetchOne(ctx, []any{dest}, query, args...)
}

// noteFailure logs a backend failure and, when the connection itself is gone,
// drops it so the next call re-establishes lazily. Must be called with c.mu held.
func (c *Connector) noteFailure(op, query string, err error) {
	c.logger.Error("database "+op+" failed", "query", query, "error", err)

	if errors.Is(err, driver.ErrBadConn) && c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Warn("database connection dropped, will reconnect on next use")
	}
}
