package igdm

import (
	"context"

	"github.com/rs/zerolog"
)

// routeNotification dispatches an out-of-band push payload by category.
// Unknown categories are ignored without error so new platform notification
// types never break the pipeline.
func (c *Client) routeNotification(n *Notification) {
	if n == nil {
		return
	}
	log := c.log.With().
		Str("component", "push").
		Str("category", n.Category).
		Logger()

	switch n.Category {
	case notifNewFollower:
		user := c.userOrShell(context.Background(), log, n.SourceID)
		if user == nil {
			log.Warn().Msg("Follower notification without source id")
			return
		}
		c.dispatchEvent(&NewFollowerEvent{User: user})
	case notifFollowRequest:
		user := c.userOrShell(context.Background(), log, n.SourceID)
		if user == nil {
			log.Warn().Msg("Follow request notification without source id")
			return
		}
		c.dispatchEvent(&FollowRequestEvent{User: user})
	case notifPendingRequest:
		// Full thread resolution is deferred to the handler; the raw
		// notification is enough to decide whether to poll.
		c.dispatchEvent(&MessageRequestEvent{Notification: n})
	default:
		log.Debug().Msg("Ignoring unknown notification category")
	}
}

// userOrShell resolves a referenced account: cache hit, then fetch, then a
// placeholder so callers are never handed nil for a known id. Returns nil
// only when no id is known at all.
func (c *Client) userOrShell(ctx context.Context, log zerolog.Logger, id string) *User {
	if id == "" {
		return nil
	}
	if user, ok := c.cache.userByID(id); ok && !user.Placeholder {
		return user
	}
	payload, err := c.api.UserByID(ctx, id)
	if err != nil || payload == nil || payload.ID == "" {
		log.Warn().Err(err).Str("user_id", id).
			Msg("User fetch failed, caching placeholder")
		return c.cache.placeholderUser(id)
	}
	return c.cache.upsertUser(payload)
}
