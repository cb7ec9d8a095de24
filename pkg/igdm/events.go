package igdm

// Application events. Handlers registered via AddEventHandler receive these
// as `any` and type-switch on the ones they care about. All handlers run
// synchronously on the client's single dispatch goroutine, so they may touch
// client state without extra locking but must not block indefinitely.

// ReadyEvent fires once, after the stream is connected and all events that
// arrived during startup have been replayed.
type ReadyEvent struct{}

// MessageCreateEvent fires for each freshly-received live message that passed
// validation, deduplication, and the staleness filter.
type MessageCreateEvent struct {
	Message *Message
}

// DisconnectedEvent fires when the realtime stream closes.
type DisconnectedEvent struct{}

// StreamErrorEvent surfaces a transport-level stream error. The stream is not
// torn down; reconnection is the transport's concern.
type StreamErrorEvent struct {
	Err error
}

// NewFollowerEvent fires when the push channel reports a new follower.
type NewFollowerEvent struct {
	User *User
}

// FollowRequestEvent fires when the push channel reports a follow request.
type FollowRequestEvent struct {
	User *User
}

// MessageRequestEvent carries a raw pending-conversation notification; full
// thread resolution is left to the handler.
type MessageRequestEvent struct {
	Notification *Notification
}

// MessageRequestApprovedEvent fires after ApproveMessageRequest moves a chat
// out of the pending cache.
type MessageRequestApprovedEvent struct {
	Chat *Chat
}

// MessageRequestDeclinedEvent fires after DeclineMessageRequest removes a
// chat from the pending cache.
type MessageRequestDeclinedEvent struct {
	Chat *Chat
}

// MessageRequestsPolledEvent carries the raw pending-thread records from one
// monitor poll.
type MessageRequestsPolledEvent struct {
	Threads []*ChatPayload
}

// EventHandler receives every dispatched application event.
type EventHandler func(evt any)

type wrappedEventHandler struct {
	id uint32
	fn EventHandler
}

// AddEventHandler registers a handler and returns an id usable with
// RemoveEventHandler.
func (c *Client) AddEventHandler(handler EventHandler) uint32 {
	c.handlersLock.Lock()
	defer c.handlersLock.Unlock()
	c.nextHandlerID++
	c.handlers = append(c.handlers, wrappedEventHandler{id: c.nextHandlerID, fn: handler})
	return c.nextHandlerID
}

// RemoveEventHandler unregisters a previously added handler.
func (c *Client) RemoveEventHandler(id uint32) bool {
	c.handlersLock.Lock()
	defer c.handlersLock.Unlock()
	for i, h := range c.handlers {
		if h.id == id {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// dispatchEvent invokes every registered handler in registration order.
// Only ever called from the dispatch goroutine.
func (c *Client) dispatchEvent(evt any) {
	c.handlersLock.RLock()
	handlers := make([]wrappedEventHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.handlersLock.RUnlock()
	for _, h := range handlers {
		h.fn(evt)
	}
}
