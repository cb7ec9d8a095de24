package igdm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/util/ptr"
)

// FetchUser resolves an account by username or id. The cache is authoritative
// unless force is set, in which case a fresh fetch patches the cached entity.
func (c *Client) FetchUser(ctx context.Context, query string, force bool) (*User, error) {
	if query == "" {
		return nil, errors.New("empty user query")
	}
	if !force {
		if user, ok := c.cache.findUser(query); ok {
			return user, nil
		}
	}
	payload, err := c.api.UserByName(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch user %q: %w", query, err)
	}
	if payload == nil || payload.ID == "" {
		return nil, fmt.Errorf("fetch user %q: empty profile", query)
	}
	return c.cache.upsertUser(payload), nil
}

// FetchChat resolves a thread by id. The cache is authoritative unless force
// is set.
func (c *Client) FetchChat(ctx context.Context, id string, force bool) (*Chat, error) {
	if id == "" {
		return nil, errors.New("empty thread id")
	}
	if !force {
		if chat, ok := c.cache.chatByID(id); ok {
			return chat, nil
		}
	}
	payload, err := c.api.Thread(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", id, err)
	}
	if payload == nil || payload.ThreadID == "" {
		return nil, fmt.Errorf("fetch thread %s: empty payload", id)
	}
	return c.cache.upsertChat(payload), nil
}

// CreateChat creates a group thread with the given participants and caches it.
func (c *Client) CreateChat(ctx context.Context, userIDs []string) (*Chat, error) {
	if len(userIDs) == 0 {
		return nil, errors.New("no participants given")
	}
	payload, err := c.api.CreateGroupThread(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("create group thread: %w", err)
	}
	if payload == nil || payload.ThreadID == "" {
		return nil, errors.New("create group thread: empty payload")
	}
	return c.cache.upsertChat(payload), nil
}

// ApproveMessageRequest accepts a pending conversation, moving it atomically
// into the main chat cache. Approving a chat that is not pending is a no-op
// returning success without emitting an event.
func (c *Client) ApproveMessageRequest(ctx context.Context, id string) (*Chat, error) {
	if _, ok := c.cache.pendingChatByID(id); !ok {
		c.log.Debug().Str("thread_id", id).Msg("Approve on non-pending thread is a no-op")
		return nil, nil
	}
	if err := c.api.ApproveThread(ctx, id); err != nil {
		return nil, fmt.Errorf("approve thread %s: %w", id, err)
	}
	chat, moved := c.cache.approvePending(id)
	if !moved {
		// A concurrent approve won the race; the platform call was still
		// idempotent, so report success without a second event.
		return nil, nil
	}
	c.log.Info().Str("thread_id", id).Msg("Message request approved")
	c.emit(&MessageRequestApprovedEvent{Chat: chat})
	return chat, nil
}

// DeclineMessageRequest rejects a pending conversation, removing it from the
// pending cache without adding it to the main cache. Declining a chat that is
// not pending is a no-op returning success.
func (c *Client) DeclineMessageRequest(ctx context.Context, id string) (*Chat, error) {
	if _, ok := c.cache.pendingChatByID(id); !ok {
		c.log.Debug().Str("thread_id", id).Msg("Decline on non-pending thread is a no-op")
		return nil, nil
	}
	if err := c.api.DeclineThread(ctx, id); err != nil {
		return nil, fmt.Errorf("decline thread %s: %w", id, err)
	}
	chat, removed := c.cache.declinePending(id)
	if !removed {
		return nil, nil
	}
	c.log.Info().Str("thread_id", id).Msg("Message request declined")
	c.emit(&MessageRequestDeclinedEvent{Chat: chat})
	return chat, nil
}

// PendingChats returns the currently cached pending conversations in
// insertion order.
func (c *Client) PendingChats() []*Chat {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	return c.cache.pendingChats.Values()
}

// pollPendingThreads fetches the pending inbox, upserts each thread into the
// pending cache, and optionally emits the raw records as a polled event.
func (c *Client) pollPendingThreads(ctx context.Context, emit bool) ([]*ChatPayload, error) {
	threads, err := c.api.PendingThreads(ctx)
	if err != nil {
		return nil, fmt.Errorf("poll pending threads: %w", err)
	}
	for _, t := range threads {
		if t == nil || t.ThreadID == "" {
			continue
		}
		if t.Pending == nil {
			t.Pending = ptr.Ptr(true)
		}
		c.cache.upsertChat(t)
	}
	if emit {
		c.emit(&MessageRequestsPolledEvent{Threads: threads})
	}
	return threads, nil
}

// StartMessageRequestsMonitor polls the pending inbox on the given interval.
// At most one monitor is active per client; starting a new one cancels the
// previous one first.
func (c *Client) StartMessageRequestsMonitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	c.monitorLock.Lock()
	if c.monitorCancel != nil {
		c.monitorCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.monitorCancel = cancel
	c.monitorLock.Unlock()

	log := c.log.With().Str("component", "requests_monitor").Logger()
	log.Info().Dur("interval", interval).Msg("Starting message requests monitor")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case <-ticker.C:
				if threads, err := c.pollPendingThreads(ctx, true); err != nil {
					log.Warn().Err(err).Msg("Pending threads poll failed")
				} else {
					log.Debug().Int("threads", len(threads)).Msg("Polled pending threads")
				}
			}
		}
	}()
}

// StopMessageRequestsMonitor cancels the active monitor, if any.
func (c *Client) StopMessageRequestsMonitor() {
	c.monitorLock.Lock()
	defer c.monitorLock.Unlock()
	if c.monitorCancel != nil {
		c.monitorCancel()
		c.monitorCancel = nil
	}
}
