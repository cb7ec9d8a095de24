package igdm

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// ingestMessage runs the full pipeline for one inbound message-shaped event:
// validate, dedup, resolve the owning chat, upsert into both cache views,
// filter by age, emit. Any panic inside a single message's processing is
// caught and logged so one malformed event can never take down the stream.
func (c *Client) ingestMessage(raw *MessagePayload, sctx *StreamContext) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("stack", string(debug.Stack())).
				Msgf("Panic recovered while ingesting message: %v", r)
		}
	}()
	if raw == nil {
		return
	}
	log := c.log.With().
		Str("component", "ingest").
		Str("item_id", raw.ItemID).
		Logger()

	if raw.ItemID == "" {
		log.Warn().Str("thread_id", raw.ThreadID).Msg("Dropping message without item_id")
		return
	}
	if raw.UserID == "" {
		log.Warn().Msg("Dropping message without sender")
		return
	}

	// Duplicates are expected at high frequency (stream redeliveries,
	// thread catch-up), so suppression is silent below warn level.
	if !c.dedup.isNew(raw.ItemID) {
		log.Debug().Msg("Duplicate message suppressed")
		return
	}

	threadID := ""
	if sctx != nil {
		threadID = sctx.ThreadID
	}
	if threadID == "" {
		threadID = raw.ThreadID
	}
	if threadID == "" {
		log.Warn().Msg("Dropping message with no resolvable thread id")
		return
	}

	chat := c.chatOrShell(context.Background(), log, threadID)
	msg := c.cache.upsertMessage(chat, raw)
	msg.TimestampMS = c.normalizeTimestampMS(log, raw.Timestamp)

	if c.archive != nil {
		ctx := context.Background()
		if err := c.archive.upsertChat(ctx, chat); err != nil {
			log.Warn().Err(err).Str("thread_id", chat.ID).Msg("Archive chat write failed")
		}
		if err := c.archive.upsertMessage(ctx, msg); err != nil {
			log.Warn().Err(err).Msg("Archive message write failed")
		}
	}

	// Age filter: only messages recent enough to be live traffic become
	// application events. Older ones are history backfill; they stay cached
	// but generate no notification noise.
	if msg.TimestampMS+c.config.StalenessGrace.Milliseconds() <= time.Now().UnixMilli() {
		log.Debug().Int64("timestamp_ms", msg.TimestampMS).Msg("Stale message cached without event")
		return
	}

	c.dispatchEvent(&MessageCreateEvent{Message: msg})
}

// chatOrShell resolves the owning chat: cache hit, then on-demand fetch, then
// a minimal shell keyed by the known id. Ingestion never fails just because
// thread metadata is unavailable.
func (c *Client) chatOrShell(ctx context.Context, log zerolog.Logger, threadID string) *Chat {
	if chat, ok := c.cache.chatByID(threadID); ok {
		return chat
	}
	payload, err := c.api.Thread(ctx, threadID)
	if err != nil || payload == nil || payload.ThreadID == "" {
		log.Warn().Err(err).Str("thread_id", threadID).
			Msg("Thread fetch failed, caching shell chat")
		return c.cache.placeholderChat(threadID)
	}
	return c.cache.upsertChat(payload)
}

// normalizeTimestampMS converts a platform timestamp to unix milliseconds.
// Values at or above the configured threshold are microseconds; below it,
// seconds. The threshold is a heuristic with no platform guarantee, so
// values suspiciously close under it are flagged before conversion.
func (c *Client) normalizeTimestampMS(log zerolog.Logger, ts int64) int64 {
	if ts <= 0 {
		return time.Now().UnixMilli()
	}
	threshold := c.config.MicroTimestampThreshold
	if ts >= threshold {
		if ts < threshold*10 {
			log.Warn().Int64("timestamp", ts).Int64("threshold", threshold).
				Msg("Timestamp magnitude is ambiguous, treating as microseconds")
		}
		return ts / 1000
	}
	if ts >= threshold/10 {
		log.Warn().Int64("timestamp", ts).Int64("threshold", threshold).
			Msg("Timestamp magnitude is ambiguous, treating as seconds")
	}
	return ts * 1000
}
