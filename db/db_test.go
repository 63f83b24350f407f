package db

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/ytchat-collector/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	db, err := Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	// Running twice must be harmless.
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
}

func TestStoreInsertsLiveAndDeduplicatesChat(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := Setup(ctx, db); err != nil {
		t.Fatalf("setup: %v", err)
	}
	s := NewStore(db)
	vid := "test-" + t.Name()
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM chat_messages WHERE video_id=$1`, vid)
		_, _ = db.Exec(`DELETE FROM lives WHERE video_id=$1`, vid)
	})

	msgs := []store.ChatMessage{
		{VideoID: vid, Timestamp: "2024-05-01T21:00:01Z", Author: "ana", Message: "oi"},
		{VideoID: vid, Timestamp: "2024-05-01T21:00:02Z", Author: "bia", Message: "olá"},
	}
	// Messages may arrive before the live row exists.
	if err := s.InsertChatMessages(ctx, msgs); err != nil {
		t.Fatalf("insert chat: %v", err)
	}
	if err := s.InsertChatMessages(ctx, msgs); err != nil {
		t.Fatalf("insert chat again: %v", err)
	}
	n, err := s.CountChatMessages(ctx, vid)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v; want 2", n, err)
	}

	m := store.Metadata{VideoID: vid, Channel: "Canal", Title: "Live", LiveStartedAt: "2024-05-01T21:00:00Z", ConcurrentViewers: "12", Likes: 3}
	if err := s.InsertLive(ctx, m); err != nil {
		t.Fatalf("insert live: %v", err)
	}
	m.Likes = 9
	if err := s.InsertLive(ctx, m); err != nil {
		t.Fatalf("upsert live: %v", err)
	}
	var likes int64
	var channel string
	if err := db.QueryRow(`SELECT likes, channel FROM lives WHERE video_id=$1`, vid).Scan(&likes, &channel); err != nil {
		t.Fatal(err)
	}
	if likes != 9 || channel != "Canal" {
		t.Errorf("likes=%d channel=%q", likes, channel)
	}
}

func TestNullTimeAndParseUint(t *testing.T) {
	if nt := nullTime("2024-05-01T21:00:00.123Z"); !nt.Valid {
		t.Error("expected valid time")
	}
	if nt := nullTime(""); nt.Valid {
		t.Error("empty string should be null")
	}
	if n, ok := parseUint("42"); !ok || n != 42 {
		t.Errorf("parseUint = %d, %v", n, ok)
	}
	if _, ok := parseUint(""); ok {
		t.Error("empty string should not parse")
	}
}

func TestConnectRejectsEmptyDSN(t *testing.T) {
	if _, err := Connect(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}
