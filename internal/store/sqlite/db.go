package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Statements are idempotent so Migrate can run on
// every startup.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			display_name VARCHAR(100) NOT NULL DEFAULT '',
			avatar_url TEXT DEFAULT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			kind VARCHAR(10) NOT NULL,
			conversation_key VARCHAR(100) UNIQUE NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			last_message_id TEXT DEFAULT NULL,
			last_activity_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_participants (
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role VARCHAR(10) NOT NULL DEFAULT 'member',
			joined_at DATETIME NOT NULL,
			last_seen_at DATETIME DEFAULT NULL,
			unread INTEGER NOT NULL DEFAULT 0,
			muted BOOLEAN NOT NULL DEFAULT FALSE,
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			pinned BOOLEAN NOT NULL DEFAULT FALSE,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (session_id, user_id),
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL DEFAULT '',
			group_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL,
			content TEXT NOT NULL,
			kind VARCHAR(10) NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'sent',
			reply_to_id TEXT DEFAULT NULL,
			forwarded_from TEXT DEFAULT NULL,
			read_at DATETIME DEFAULT NULL,
			is_edited BOOLEAN NOT NULL DEFAULT FALSE,
			edited_at DATETIME DEFAULT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			read_at DATETIME NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_deliveries (
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			delivered_at DATETIME NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_deletions (
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			deleted_at DATETIME NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);`,
		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			avatar_url TEXT DEFAULT NULL,
			creator_id TEXT NOT NULL,
			type VARCHAR(10) NOT NULL DEFAULT 'private',
			max_members INTEGER NOT NULL,
			invite_code VARCHAR(16) UNIQUE NOT NULL,
			members_can_invite BOOLEAN NOT NULL DEFAULT TRUE,
			require_approval BOOLEAN NOT NULL DEFAULT FALSE,
			slow_mode_seconds INTEGER NOT NULL DEFAULT 0,
			message_count INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role VARCHAR(10) NOT NULL DEFAULT 'member',
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			joined_at DATETIME NOT NULL,
			last_seen_at DATETIME DEFAULT NULL,
			PRIMARY KEY (group_id, user_id),
			FOREIGN KEY (group_id) REFERENCES groups(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_key ON chat_sessions(conversation_key);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_group ON chat_sessions(group_id);`,
		`CREATE INDEX IF NOT EXISTS idx_session_participants_user ON session_participants(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id);`,
		`CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
