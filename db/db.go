// Package db is the optional Postgres sink: connection helpers, schema migration, and inserts
// for lives and chat messages mirrored from the CSV output.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/ytchat-collector/store"
)

// Connect opens a Postgres connection for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty database dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies idempotent schema statements. It is the fallback when versioned migrations
// cannot run (for example a database user without rights on schema_migrations).
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lives (
			video_id TEXT PRIMARY KEY,
			channel_id TEXT,
			channel TEXT,
			title TEXT,
			description TEXT,
			published_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			concurrent_viewers BIGINT,
			likes BIGINT DEFAULT 0,
			views BIGINT DEFAULT 0,
			comments BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			video_id TEXT NOT NULL REFERENCES lives(video_id),
			published_raw TEXT NOT NULL,
			published_at TIMESTAMPTZ,
			author TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lives_channel_started ON lives(channel, started_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_chat_messages_dedup ON chat_messages(video_id, published_raw, author, message)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_video_published ON chat_messages(video_id, published_at)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// Store writes collector records to Postgres. It satisfies the sink interfaces of the
// supervisor and the capture worker.
type Store struct {
	DB *sql.DB
}

// NewStore wraps db.
func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

// InsertLive upserts a live's metadata; later calls refresh the statistics.
func (s *Store) InsertLive(ctx context.Context, m store.Metadata) error {
	var viewers sql.NullInt64
	if n, ok := parseUint(m.ConcurrentViewers); ok {
		viewers = sql.NullInt64{Int64: int64(n), Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO lives (video_id, channel_id, channel, title, description, published_at, started_at, concurrent_viewers, likes, views, comments, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
		ON CONFLICT (video_id) DO UPDATE SET
			channel_id=EXCLUDED.channel_id,
			channel=EXCLUDED.channel,
			title=EXCLUDED.title,
			description=EXCLUDED.description,
			published_at=COALESCE(EXCLUDED.published_at, lives.published_at),
			started_at=COALESCE(EXCLUDED.started_at, lives.started_at),
			concurrent_viewers=COALESCE(EXCLUDED.concurrent_viewers, lives.concurrent_viewers),
			likes=EXCLUDED.likes,
			views=EXCLUDED.views,
			comments=EXCLUDED.comments,
			updated_at=NOW()`,
		m.VideoID, m.ChannelID, m.Channel, m.Title, m.Description,
		nullTime(m.PublishedAt), nullTime(m.LiveStartedAt), viewers,
		int64(m.Likes), int64(m.Views), int64(m.Comments))
	if err != nil {
		return fmt.Errorf("insert live %s: %w", m.VideoID, err)
	}
	return nil
}

// InsertChatMessages inserts msgs in one transaction, ignoring duplicates. The parent live row
// is created on demand so messages never violate the foreign key.
func (s *Store) InsertChatMessages(ctx context.Context, msgs []store.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chat insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO lives (video_id, created_at) VALUES ($1, NOW()) ON CONFLICT (video_id) DO NOTHING`, msgs[0].VideoID); err != nil {
		return fmt.Errorf("ensure live row: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chat_messages (video_id, published_raw, published_at, author, message)
		VALUES ($1,$2,$3,$4,$5) ON CONFLICT DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare chat insert: %w", err)
	}
	defer stmt.Close()
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.VideoID, m.Timestamp, nullTime(m.Timestamp), m.Author, m.Message); err != nil {
			return fmt.Errorf("insert chat message: %w", err)
		}
	}
	return tx.Commit()
}

// CountChatMessages returns how many messages are stored for videoID.
func (s *Store) CountChatMessages(ctx context.Context, videoID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE video_id=$1`, videoID).Scan(&n)
	return n, err
}

func nullTime(iso string) sql.NullTime {
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func parseUint(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}
