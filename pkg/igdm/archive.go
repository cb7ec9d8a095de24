package igdm

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/util/dbutil"
)

// archiveStore is an optional local sqlite archive of ingested chats and
// messages. Writes are best-effort from the ingestion pipeline; the in-memory
// caches stay authoritative.
type archiveStore struct {
	db *dbutil.Database
}

func newArchiveStore(ctx context.Context, path string) (*archiveStore, error) {
	rawDB, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	db, err := dbutil.NewWithDB(rawDB, "sqlite3")
	if err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("wrap archive db: %w", err)
	}
	store := &archiveStore{db: db}
	if err = store.ensureSchema(ctx); err != nil {
		rawDB.Close()
		return nil, err
	}
	return store, nil
}

func (s *archiveStore) ensureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chat (
			thread_id TEXT NOT NULL PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			is_group BOOLEAN NOT NULL DEFAULT FALSE,
			pending BOOLEAN NOT NULL DEFAULT FALSE,
			last_activity_ms BIGINT NOT NULL DEFAULT 0,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			item_id TEXT NOT NULL PRIMARY KEY,
			thread_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			item_type TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			timestamp_ms BIGINT NOT NULL,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS message_thread_ts_idx
			ON message (thread_id, timestamp_ms, item_id)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to ensure archive schema: %w", err)
		}
	}
	return nil
}

func (s *archiveStore) upsertChat(ctx context.Context, chat *Chat) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat (thread_id, title, is_group, pending, last_activity_ms, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (thread_id) DO UPDATE SET
			title = excluded.title,
			is_group = excluded.is_group,
			pending = excluded.pending,
			last_activity_ms = excluded.last_activity_ms,
			updated_ts = excluded.updated_ts
	`, chat.ID, chat.Title, chat.IsGroup, chat.Pending, chat.LastActivityMS, time.Now().UnixMilli())
	return err
}

func (s *archiveStore) upsertMessage(ctx context.Context, msg *Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO message (item_id, thread_id, sender_id, item_type, text, timestamp_ms, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (item_id) DO UPDATE SET
			item_type = excluded.item_type,
			text = excluded.text,
			timestamp_ms = excluded.timestamp_ms
	`, msg.ID, msg.ChatID, msg.SenderID, msg.ItemType, msg.Text, msg.TimestampMS, time.Now().UnixMilli())
	return err
}

// recentMessages returns up to limit archived messages for one thread, newest
// first.
func (s *archiveStore) recentMessages(ctx context.Context, threadID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT item_id, thread_id, sender_id, item_type, text, timestamp_ms
		FROM message WHERE thread_id = $1
		ORDER BY timestamp_ms DESC, item_id DESC
		LIMIT $2
	`, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*Message
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.ItemType, &msg.Text, &msg.TimestampMS); err != nil {
			return nil, err
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

// RecentMessages exposes the archive to callers (the CLI history command).
// Returns nil without error when no archive is configured.
func (c *Client) RecentMessages(ctx context.Context, threadID string, limit int) ([]*Message, error) {
	if c.archive == nil {
		return nil, nil
	}
	return c.archive.recentMessages(ctx, threadID, limit)
}

func (s *archiveStore) Close() error {
	return s.db.Close()
}
