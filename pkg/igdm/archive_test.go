package igdm

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestArchive(t *testing.T) *archiveStore {
	t.Helper()
	store, err := newArchiveStore(context.Background(), filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestArchiveMessageRoundTrip(t *testing.T) {
	store := newTestArchive(t)
	ctx := context.Background()

	msgs := []*Message{
		{ID: "a", ChatID: "t1", SenderID: "1", Text: "first", TimestampMS: 1000},
		{ID: "b", ChatID: "t1", SenderID: "2", Text: "second", TimestampMS: 2000},
		{ID: "c", ChatID: "t2", SenderID: "1", Text: "elsewhere", TimestampMS: 1500},
	}
	for _, msg := range msgs {
		if err := store.upsertMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.recentMessages(ctx, "t1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("messages for t1 = %d, want 2", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("order = %s,%s, want newest first", got[0].ID, got[1].ID)
	}
	if got[1].Text != "first" || got[1].SenderID != "1" {
		t.Fatalf("row did not round-trip: %+v", got[1])
	}
}

func TestArchiveMessageUpsertPatches(t *testing.T) {
	store := newTestArchive(t)
	ctx := context.Background()

	if err := store.upsertMessage(ctx, &Message{ID: "a", ChatID: "t1", SenderID: "1", Text: "v1", TimestampMS: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := store.upsertMessage(ctx, &Message{ID: "a", ChatID: "t1", SenderID: "1", Text: "v2", TimestampMS: 1001}); err != nil {
		t.Fatal(err)
	}

	got, err := store.recentMessages(ctx, "t1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1 after re-upsert", len(got))
	}
	if got[0].Text != "v2" || got[0].TimestampMS != 1001 {
		t.Fatalf("row not patched: %+v", got[0])
	}
}

func TestArchiveRecentMessagesLimit(t *testing.T) {
	store := newTestArchive(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := &Message{ID: string(rune('a' + i)), ChatID: "t1", SenderID: "1", TimestampMS: int64(1000 + i)}
		if err := store.upsertMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.recentMessages(ctx, "t1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "e" || got[1].ID != "d" {
		t.Fatalf("limited query returned %+v", got)
	}
}

func TestArchiveChatUpsert(t *testing.T) {
	store := newTestArchive(t)
	ctx := context.Background()

	chat := &Chat{ID: "t1", Title: "friends", IsGroup: true}
	if err := store.upsertChat(ctx, chat); err != nil {
		t.Fatal(err)
	}
	chat.Title = "old friends"
	if err := store.upsertChat(ctx, chat); err != nil {
		t.Fatal(err)
	}

	var title string
	row := store.db.QueryRow(ctx, "SELECT title FROM chat WHERE thread_id = $1", "t1")
	if err := row.Scan(&title); err != nil {
		t.Fatal(err)
	}
	if title != "old friends" {
		t.Fatalf("title = %q, want patched value", title)
	}
}

func TestRecentMessagesWithoutArchive(t *testing.T) {
	c := newTestClient(newFakeAPI(), &fakeStream{}, &fakePush{}, nil)
	got, err := c.RecentMessages(context.Background(), "t1", 10)
	if err != nil || got != nil {
		t.Fatalf("no-archive client should return nil, nil; got %v, %v", got, err)
	}
}
