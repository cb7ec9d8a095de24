package igdm

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/ptr"
)

// eventRecorder collects dispatched events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) record(evt any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) messageCreates() []*MessageCreateEvent {
	var out []*MessageCreateEvent
	for _, evt := range r.all() {
		if e, ok := evt.(*MessageCreateEvent); ok {
			out = append(out, e)
		}
	}
	return out
}

func nowSeconds(offset time.Duration) int64 {
	return time.Now().Add(offset).Unix()
}

func TestIngestMissingItemID(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(api, &fakeStream{}, &fakePush{}, nil)
	rec := &eventRecorder{}
	c.AddEventHandler(rec.record)

	c.ingestMessage(&MessagePayload{UserID: "1", ThreadID: "t1"}, nil)

	if c.cache.messages.Len() != 0 || c.cache.chats.Len() != 0 {
		t.Fatal("message without item_id must not mutate the cache")
	}
	if c.dedup.size() != 0 {
		t.Fatal("message without item_id must not enter the dedup window")
	}
	if len(rec.all()) != 0 {
		t.Fatal("no event should be emitted")
	}
}

func TestIngestMissingSender(t *testing.T) {
	c := newTestClient(newFakeAPI(), &fakeStream{}, &fakePush{}, nil)
	rec := &eventRecorder{}
	c.AddEventHandler(rec.record)

	c.ingestMessage(&MessagePayload{ItemID: "m1", ThreadID: "t1"}, nil)

	if c.cache.messages.Len() != 0 || len(rec.all()) != 0 {
		t.Fatal("message without sender must be dropped")
	}
}

func TestIngestRecentMessageEmitted(t *testing.T) {
	api := newFakeAPI()
	api.threads["t1"] = &ChatPayload{ThreadID: "t1", Title: ptr.Ptr("chat")}
	c := newTestClient(api, &fakeStream{}, &fakePush{}, nil)
	rec := &eventRecorder{}
	c.AddEventHandler(rec.record)

	c.ingestMessage(&MessagePayload{
		ItemID:    "m1",
		UserID:    "1",
		Text:      ptr.Ptr("hey"),
		Timestamp: nowSeconds(-5 * time.Second),
	}, &StreamContext{ThreadID: "t1"})

	msgs := rec.messageCreates()
	if len(msgs) != 1 {
		t.Fatalf("messageCreate events = %d, want 1", len(msgs))
	}
	if msgs[0].Message.Text != "hey" || msgs[0].Message.ChatID != "t1" {
		t.Fatalf("unexpected message: %+v", msgs[0].Message)
	}
	chat, ok := c.cache.chatByID("t1")
	if !ok {
		t.Fatal("owning chat should be cached")
	}
	if _, ok = chat.Messages.Get("m1"); !ok {
		t.Fatal("message should be in the chat's nested cache")
	}
}

func TestIngestStaleMessageCachedWithoutEvent(t *testing.T) {
	api := newFakeAPI()
	api.threads["t1"] = &ChatPayload{ThreadID: "t1"}
	c := newTestClient(api, &fakeStream{}, &fakePush{}, nil)
	rec := &eventRecorder{}
	c.AddEventHandler(rec.record)

	c.ingestMessage(&MessagePayload{
		ItemID:    "m1",
		UserID:    "1",
		Timestamp: nowSeconds(-30 * 24 * time.Hour),
	}, &StreamContext{ThreadID: "t1"})

	if _, ok := c.cache.messages.Get("m1"); !ok {
		t.Fatal("stale message should still be ingested into the cache")
	}
	if len(rec.messageCreates()) != 0 {
		t.Fatal("stale message must not emit a live event")
	}
}

func TestIngestDuplicateSuppressed(t *testing.T) {
	api := newFakeAPI()
	api.threads["t1"] = &ChatPayload{ThreadID: "t1"}
	c := newTestClient(api, &fakeStream{}, &fakePush{}, nil)
	rec := &eventRecorder{}
	c.AddEventHandler(rec.record)

	payload := &MessagePayload{ItemID: "m1", UserID: "1", Timestamp: nowSeconds(-time.Second)}
	c.ingestMessage(payload, &StreamContext{ThreadID: "t1"})
	c.ingestMessage(payload, &StreamContext{ThreadID: "t1"})

	if got := len(rec.messageCreates()); got != 1 {
		t.Fatalf("messageCreate events = %d, want exactly 1", got)
	}
}

func TestIngestNoThreadID(t *testing.T) {
	c := newTestClient(newFakeAPI(), &fakeStream{}, &fakePush{}, nil)
	rec := &eventRecorder{}
	c.AddEventHandler(rec.record)

	c.ingestMessage(&MessagePayload{ItemID: "m1", UserID: "1"}, &StreamContext{})

	if len(rec.all()) != 0 || c.cache.messages.Len() != 0 {
		t.Fatal("message with no resolvable thread must be dropped")
	}
}

func TestIngestPayloadThreadFallback(t *testing.T) {
	api := newFakeAPI()
	api.threads["t9"] = &ChatPayload{ThreadID: "t9"}
	c := newTestClient(api, &fakeStream{}, &fakePush{}, nil)

	c.ingestMessage(&MessagePayload{
		ItemID:    "m1",
		UserID:    "1",
		ThreadID:  "t9",
		Timestamp: nowSeconds(-time.Second),
	}, nil)

	if _, ok := c.cache.chatByID("t9"); !ok {
		t.Fatal("thread id from the payload should be used when the stream context has none")
	}
}

func TestIngestShellChatOnFetchFailure(t *testing.T) {
	api := newFakeAPI()
	api.threadErr = errors.New("fetch failed")
	c := newTestClient(api, &fakeStream{}, &fakePush{}, nil)
	rec := &eventRecorder{}
	c.AddEventHandler(rec.record)

	c.ingestMessage(&MessagePayload{
		ItemID:    "m1",
		UserID:    "1",
		Timestamp: nowSeconds(-time.Second),
	}, &StreamContext{ThreadID: "t1"})

	chat, ok := c.cache.chatByID("t1")
	if !ok {
		t.Fatal("a shell chat should be cached when the fetch fails")
	}
	if !chat.Placeholder {
		t.Fatal("shell chat should be flagged as placeholder")
	}
	if len(rec.messageCreates()) != 1 {
		t.Fatal("ingestion must not fail because chat metadata is unavailable")
	}
}

func TestNormalizeTimestampMS(t *testing.T) {
	c := newTestClient(newFakeAPI(), &fakeStream{}, &fakePush{}, nil)
	log := zerolog.Nop()

	// Microsecond-scale input (above the threshold) divides down.
	micros := int64(1_700_000_000_123_456)
	if got := c.normalizeTimestampMS(log, micros); got != micros/1000 {
		t.Fatalf("micros → %d, want %d", got, micros/1000)
	}
	// Seconds-scale input multiplies up.
	secs := int64(1_700_000_000)
	if got := c.normalizeTimestampMS(log, secs); got != secs*1000 {
		t.Fatalf("seconds → %d, want %d", got, secs*1000)
	}
	// Non-positive input falls back to the current time.
	before := time.Now().UnixMilli()
	got := c.normalizeTimestampMS(log, 0)
	if got < before || got > time.Now().UnixMilli() {
		t.Fatalf("zero timestamp should normalize to now, got %d", got)
	}
}

func TestNormalizeTimestampAmbiguityWarning(t *testing.T) {
	c := newTestClient(newFakeAPI(), &fakeStream{}, &fakePush{}, nil)
	threshold := c.config.MicroTimestampThreshold

	warnAt := func(ts int64) bool {
		var buf bytes.Buffer
		c.normalizeTimestampMS(zerolog.New(&buf), ts)
		return strings.Contains(buf.String(), "ambiguous")
	}

	// Within one order of magnitude of the threshold, either side, the
	// heuristic is a guess and must say so.
	if !warnAt(threshold / 2) {
		t.Error("value just below the threshold should be flagged")
	}
	if !warnAt(threshold * 2) {
		t.Error("value just above the threshold should be flagged")
	}
	// Far from the threshold the unit is unambiguous.
	if warnAt(threshold / 100) {
		t.Error("clear seconds-scale value should not be flagged")
	}
	if warnAt(threshold * 1000) {
		t.Error("clear microsecond-scale value should not be flagged")
	}
}
