// ABOUTME: SQLite schema for the chat backend
// ABOUTME: Created on connection establishment; all statements are idempotent

package store

// The ban columns on users and the user_complaints table exist in the schema
// for moderation tooling but are not touched by any server code path.
const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		username  TEXT NOT NULL UNIQUE,
		is_banned INTEGER NOT NULL DEFAULT 0,
		ban_until DATETIME
	);

	CREATE TABLE IF NOT EXISTS user_sessions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       INTEGER NOT NULL,
		session_token TEXT NOT NULL,
		is_active     INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_user_sessions_token
		ON user_sessions(session_token);

	CREATE TABLE IF NOT EXISTS messages (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id   INTEGER NOT NULL,
		text      TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_timestamp
		ON messages(timestamp);

	CREATE TABLE IF NOT EXISTS private_messages (
		id           INTEGER PRIMARY KEY,
		recipient_id INTEGER NOT NULL,
		FOREIGN KEY (id) REFERENCES messages(id),
		FOREIGN KEY (recipient_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_private_messages_recipient
		ON private_messages(recipient_id);

	CREATE TABLE IF NOT EXISTS message_limits (
		user_id       INTEGER PRIMARY KEY,
		message_count INTEGER NOT NULL DEFAULT 0,
		reset_time    DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS user_complaints (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		complainant_id INTEGER NOT NULL,
		offender_id    INTEGER NOT NULL,
		timestamp      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (complainant_id) REFERENCES users(id),
		FOREIGN KEY (offender_id) REFERENCES users(id)
	);
`
