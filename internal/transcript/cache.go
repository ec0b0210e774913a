// Package transcript persists synced sessions and messages to a local
// sqlite database so `tether log` can replay a conversation offline.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/tether/internal/domain"
)

type Cache struct {
	db   *sql.DB
	path string
}

func New(dataDir string) (*Cache, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tether.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	c := &Cache{db: db, path: dbPath}
	if err := c.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return c, nil
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		directory TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		author TEXT NOT NULL,
		type_tag TEXT NOT NULL,
		content TEXT NOT NULL,
		meta_json TEXT NOT NULL,
		rev INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveSession upserts session metadata.
func (c *Cache) SaveSession(ctx context.Context, sess domain.Session) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, directory, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			directory = excluded.directory,
			updated_at = excluded.updated_at
	`, sess.ID, sess.Title, sess.Directory, sess.CreatedAt, sess.UpdatedAt)
	return err
}

// Sessions lists cached sessions, most recently updated first.
func (c *Cache) Sessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, directory, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		var dir sql.NullString
		if err := rows.Scan(&s.ID, &s.Title, &dir, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Directory = dir.String
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveMessages upserts a batch of messages. A row only changes when the
// incoming revision is at least as new, matching the store's conflict
// rule.
func (c *Cache) SaveMessages(ctx context.Context, sessionID string, msgs []domain.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, session_id, author, type_tag, content, meta_json, rev, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			author = excluded.author,
			type_tag = excluded.type_tag,
			content = excluded.content,
			meta_json = excluded.meta_json,
			rev = excluded.rev,
			created_at = excluded.created_at
		WHERE excluded.rev >= messages.rev
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		metaJSON, _ := json.Marshal(m.Meta)
		if _, err := stmt.ExecContext(ctx, m.ID, sessionID, m.Author, m.Tag, m.Content, metaJSON, m.Rev, m.CreatedAt); err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Messages returns a session's cached transcript in chronological order.
// limit 0 means no limit; otherwise the newest limit messages are
// returned.
func (c *Cache) Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, author, type_tag, content, meta_json, rev, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, id
	`
	if limit > 0 {
		query = `
			SELECT id, author, type_tag, content, meta_json, rev, created_at FROM (
				SELECT id, author, type_tag, content, meta_json, rev, created_at
				FROM messages WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
			) ORDER BY created_at, id
		`
	}

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = c.db.QueryContext(ctx, query, sessionID, limit)
	} else {
		rows, err = c.db.QueryContext(ctx, query, sessionID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var metaJSON string
		if err := rows.Scan(&m.ID, &m.Author, &m.Tag, &m.Content, &metaJSON, &m.Rev, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.SessionID = sessionID
		json.Unmarshal([]byte(metaJSON), &m.Meta)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteSession removes a session and its messages from the cache.
func (c *Cache) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}
